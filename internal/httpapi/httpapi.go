package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/logger"
	"sanjoseboots/backend/internal/pricing"
	"sanjoseboots/backend/internal/service"
	"sanjoseboots/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
	validate      *validator.Validate
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        log,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		validate:      newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("/api/v1/auth/register", a.requireAuth(a.handleRegister))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts))
	mux.HandleFunc("/api/v1/products/{id}", a.requireAuth(a.handleProduct))
	mux.HandleFunc("/api/v1/variants/{id}", a.requireAuth(a.handleVariant))
	mux.HandleFunc("/api/v1/categories", a.requireAuth(a.handleCategories))
	mux.HandleFunc("/api/v1/suppliers", a.requireAuth(a.handleSuppliers))
	mux.HandleFunc("/api/v1/inventory/variants/{id}/restock", a.requireAuth(a.handleRestock))

	mux.HandleFunc("/api/v1/sales", a.requireAuth(a.handleSales))
	mux.HandleFunc("/api/v1/sales/{id}", a.requireAuth(a.handleSale))
	mux.HandleFunc("/api/v1/sales/{id}/cancel", a.requireAuth(a.handleCancelSale))
	mux.HandleFunc("/api/v1/sales/summary/daily", a.requireAuth(a.handleDailySummary))

	mux.HandleFunc("/api/v1/reports/{name}", a.requireAuth(a.handleReport))

	return logger.Middleware(a.logger, a.withMiddleware(mux))
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInactiveAccount) {
				writeError(w, http.StatusUnauthorized, err)
				return
			}
			a.writeServiceError(w, r, err)
			return
		}

		ctx := service.WithActor(r.Context(), actor)
		logger.FromContext(ctx).Debug("authenticated", zap.Int64("user_id", actor.UserID), zap.String("role", actor.Role))
		next(w, r.WithContext(ctx))
	}
}

// permit rejects the request with 403 unless the actor holds the permission.
func (a *API) permit(w http.ResponseWriter, r *http.Request, resource string, action string) bool {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, service.ErrUnauthenticated)
		return false
	}
	if actor.Role == domain.RoleAdmin || actor.Permissions.Allows(resource, action) {
		return true
	}
	writeError(w, http.StatusForbidden, fmt.Errorf("%w: %s:%s", service.ErrForbidden, resource, action))
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// requestError is a malformed or invalid request body.
type requestError struct {
	msg     string
	details []fieldError
}

func (e *requestError) Error() string {
	return e.msg
}

func (e *requestError) Unwrap() error {
	return service.ErrValidation
}

func (a *API) decodeAndValidate(r *http.Request, dest any) error {
	if err := decodeJSON(r, dest); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestError{msg: "request body too large"}
		}
		return &requestError{msg: "invalid JSON body: " + err.Error()}
	}
	if err := a.validate.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &requestError{msg: err.Error()}
		}
		details := make([]fieldError, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, fieldError{Field: fieldPath(fe), Message: validationMessage(fe)})
		}
		return &requestError{msg: "request validation failed", details: details}
	}
	return nil
}

// fieldPath drops the struct name from the namespace, so lines[0].quantity
// rather than CreateSaleRequest.lines[0].quantity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if fe.Type().Kind() == reflect.String {
			return "Must be at least " + fe.Param() + " characters"
		}
		return "Must be at least " + fe.Param()
	case "max":
		if fe.Type().Kind() == reflect.String {
			return "Must be at most " + fe.Param() + " characters"
		}
		return "Must be at most " + fe.Param()
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "gte":
		return "Must be greater than or equal to " + fe.Param()
	case "gt":
		return "Must be greater than " + fe.Param()
	case "email":
		return "Must be a valid email address"
	default:
		return "Invalid value"
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &requestError{msg: fmt.Sprintf("invalid id %q", r.PathValue("id"))}
	}
	return id, nil
}

func queryID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, &requestError{msg: fmt.Sprintf("%s must be a positive integer", name)}
	}
	return id, nil
}

type errorBody struct {
	Error     string       `json:"error"`
	Kind      string       `json:"kind"`
	VariantID int64        `json:"variantId,omitempty"`
	Requested *int         `json:"requested,omitempty"`
	Available *int         `json:"available,omitempty"`
	Details   []fieldError `json:"details,omitempty"`
}

// writeServiceError maps domain and store errors onto the error envelope.
// Anything unrecognized is logged and reported as a bare 500.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr *store.InsufficientStockError
		reqErr   *requestError
	)
	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{
			Error:     err.Error(),
			Kind:      "InsufficientStock",
			VariantID: stockErr.VariantID,
			Requested: &stockErr.Requested,
			Available: &stockErr.Available,
		})
	case errors.As(err, &reqErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: reqErr.msg, Kind: "Validation", Details: reqErr.details})
	case errors.Is(err, pricing.ErrEmptyCart):
		writeErrorKind(w, http.StatusBadRequest, "EmptyCart", err)
	case errors.Is(err, store.ErrInsufficientStock):
		writeErrorKind(w, http.StatusUnprocessableEntity, "InsufficientStock", err)
	case errors.Is(err, store.ErrPriceMismatch):
		writeErrorKind(w, http.StatusUnprocessableEntity, "PriceMismatch", err)
	case errors.Is(err, store.ErrDuplicateTicket):
		writeErrorKind(w, http.StatusConflict, "DuplicateTicket", err)
	case errors.Is(err, store.ErrAlreadyCancelled):
		writeErrorKind(w, http.StatusConflict, "AlreadyCancelled", err)
	case errors.Is(err, service.ErrIdempotencyInFlight):
		writeErrorKind(w, http.StatusConflict, "IdempotencyInFlight", err)
	case errors.Is(err, ErrUsernameTaken), errors.Is(err, store.ErrConflict):
		writeErrorKind(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, store.ErrNotFound):
		writeErrorKind(w, http.StatusNotFound, "NotFound", err)
	case errors.Is(err, service.ErrValidation), errors.Is(err, store.ErrInvalidInput):
		writeErrorKind(w, http.StatusBadRequest, "Validation", err)
	case errors.Is(err, service.ErrForbidden):
		writeErrorKind(w, http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, service.ErrUnauthenticated):
		writeErrorKind(w, http.StatusUnauthorized, "Unauthorized", err)
	default:
		logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
		writeErrorKind(w, http.StatusInternalServerError, "Internal", err)
	}
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeErrorKind(w, status, kindForStatus(status), err)
}

func writeErrorKind(w http.ResponseWriter, status int, kind string, err error) {
	// 5xx bodies never carry internal detail.
	msg := err.Error()
	if status >= 500 {
		msg = "internal server error"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Validation"
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusNotFound:
		return "NotFound"
	case http.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case http.StatusTooManyRequests:
		return "RateLimited"
	default:
		if status >= 500 {
			return "Internal"
		}
		return "Error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
