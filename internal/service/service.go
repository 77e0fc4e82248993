package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sanjoseboots/backend/internal/cache"
	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/logger"
	"sanjoseboots/backend/internal/pricing"
	"sanjoseboots/backend/internal/store"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	ErrValidation      = errors.New("validation failed")
	// ErrIdempotencyInFlight means another request holds the idempotency key
	// and has not finished recording its sale yet.
	ErrIdempotencyInFlight = errors.New("sale with this idempotency key is in progress")
	ErrEmptyCart           = pricing.ErrEmptyCart
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Idempotency      cache.IdempotencyStore
	Reports          cache.ReportCache
	Location         *time.Location
	TicketRetries    int
	IdempotencyTTL   time.Duration
	ReportCacheTTL   time.Duration
	LowStockFallback int
	Logger           *zap.Logger
	Now              func() time.Time
}

type Service struct {
	repo             store.Repository
	calc             *pricing.Calculator
	idempotency      cache.IdempotencyStore
	reports          cache.ReportCache
	location         *time.Location
	ticketRetries    int
	idempotencyTTL   time.Duration
	reportCacheTTL   time.Duration
	lowStockFallback int
	logger           *zap.Logger
	now              func() time.Time
}

func New(repo store.Repository, calc *pricing.Calculator, opts Options) *Service {
	if calc == nil {
		calc, _ = pricing.NewCalculator(pricing.DefaultTaxRate)
	}
	if opts.Idempotency == nil {
		opts.Idempotency = cache.NewMemoryIdempotencyStore()
	}
	if opts.Reports == nil {
		opts.Reports = cache.NoopReportCache{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TicketRetries < 1 {
		opts.TicketRetries = 3
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.LowStockFallback < 0 {
		opts.LowStockFallback = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:             repo,
		calc:             calc,
		idempotency:      opts.Idempotency,
		reports:          opts.Reports,
		location:         opts.Location,
		ticketRetries:    opts.TicketRetries,
		idempotencyTTL:   opts.IdempotencyTTL,
		reportCacheTTL:   opts.ReportCacheTTL,
		lowStockFallback: opts.LowStockFallback,
		logger:           opts.Logger,
		now:              opts.Now,
	}
}

func (s *Service) Location() *time.Location {
	return s.location
}

// authorize resolves the caller and checks one permission. Administrators
// pass every check.
func (s *Service) authorize(ctx context.Context, resource string, action string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == 0 {
		return domain.Actor{}, ErrUnauthenticated
	}
	if actor.Role == domain.RoleAdmin || actor.Permissions.Allows(resource, action) {
		return actor, nil
	}
	return domain.Actor{}, fmt.Errorf("%w: %s:%s", ErrForbidden, resource, action)
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func (s *Service) log(ctx context.Context) *zap.Logger {
	if requestID := logger.GetRequestID(ctx); requestID != "" {
		return s.logger.With(zap.String("request_id", requestID))
	}
	return s.logger
}

// audit writes one structured entry per state change.
func (s *Service) audit(ctx context.Context, action string, entityType string, entityID string, fields ...zap.Field) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	base := []zap.Field{
		zap.String("action", action),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("actor", actor.Username),
		zap.String("actor_role", actor.Role),
	}
	s.log(ctx).Info("audit", append(base, fields...)...)
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx); err != nil {
		s.log(ctx).Warn("report cache invalidation failed", zap.Error(err))
	}
}
