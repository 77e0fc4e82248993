package main

import (
	"context"
	"testing"

	"sanjoseboots/backend/internal/config"
	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/store/memory"
)

func TestValidateSecurityConfigRejectsWeakProductionValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{Env: "production", AuthSecret: "short", AllowedOrigin: "https://pos.example"})
	if err == nil {
		t.Fatalf("expected weak secret to be rejected")
	}
	err = validateSecurityConfig(config.Config{Env: "production", AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "*"})
	if err == nil {
		t.Fatalf("expected wildcard origin to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{Env: "production", AuthSecret: "0123456789abcdef0123456789abcdef", AllowedOrigin: "https://pos.example"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
	if err := validateSecurityConfig(config.Config{Env: "development"}); err != nil {
		t.Fatalf("expected development config to pass, got %v", err)
	}
}

func TestEnsureAdminCreatesOnce(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	if err := ensureAdmin(ctx, repo, "short"); err == nil {
		t.Fatalf("expected short bootstrap password to be rejected")
	}
	if err := ensureAdmin(ctx, repo, "admin-bootstrap"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	user, err := repo.FindUserByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("find admin: %v", err)
	}
	if user.RoleName != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %q", user.RoleName)
	}
	if err := ensureAdmin(ctx, repo, ""); err != nil {
		t.Fatalf("expected existing admin to be left alone, got %v", err)
	}
}
