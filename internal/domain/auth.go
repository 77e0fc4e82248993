package domain

import (
	"encoding/json"
	"time"
)

const (
	RoleAdmin  = "Administrador"
	RoleSeller = "Vendedor"
)

const (
	ResourceSales     = "sales"
	ResourceProducts  = "products"
	ResourceInventory = "inventory"
	ResourceReports   = "reports"
	ResourceUsers     = "users"
)

const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionCancel = "cancel"
)

// Grant is the permission entry of one resource. In stored role documents it
// is either `true` (every action) or an object of action flags.
type Grant struct {
	All     bool
	Actions map[string]bool
}

func (g Grant) MarshalJSON() ([]byte, error) {
	if g.All {
		return []byte("true"), nil
	}
	if g.Actions == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(g.Actions)
}

func (g *Grant) UnmarshalJSON(data []byte) error {
	var all bool
	if err := json.Unmarshal(data, &all); err == nil {
		*g = Grant{All: all}
		return nil
	}
	actions := map[string]bool{}
	if err := json.Unmarshal(data, &actions); err != nil {
		return err
	}
	*g = Grant{Actions: actions}
	return nil
}

type Permissions map[string]Grant

// Allows reports whether the resource grants the action. "*" in an action
// map grants every action of that resource.
func (p Permissions) Allows(resource string, action string) bool {
	grant, ok := p[resource]
	if !ok {
		return false
	}
	if grant.All {
		return true
	}
	return grant.Actions[action] || grant.Actions["*"]
}

type Role struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Permissions Permissions `json:"permissions"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           int64
	Username     string
	PasswordHash string
	FullName     string
	RoleID       int64
	RoleName     string
	Permissions  Permissions
	Active       bool
	CreatedAt    time.Time
}

type Actor struct {
	UserID      int64
	Username    string
	Role        string
	Permissions Permissions
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginResponse struct {
	AccessToken string      `json:"accessToken"`
	ExpiresAt   string      `json:"expiresAt"`
	User        UserProfile `json:"user"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"fullName" validate:"required,max=120"`
	Role     string `json:"role" validate:"required,oneof=Administrador Vendedor"`
}

type UserProfile struct {
	ID          int64       `json:"id"`
	Username    string      `json:"username"`
	FullName    string      `json:"fullName,omitempty"`
	Role        string      `json:"role"`
	Permissions Permissions `json:"permissions"`
}
