package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/lifecycle"
	"retailpos/backend/internal/notify"
	"retailpos/backend/internal/promotion"
	"retailpos/backend/internal/saga"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Settings struct {
	DefaultWarehouseID    string
	MaxFrozen             int
	StepTimeout           time.Duration
	VoucherValidityMonths int
}

// Deps are the collaborators of the service. Stock defaults to Repo and
// Notifier to a log sink.
type Deps struct {
	Repo     store.Repository
	Stock    store.StockLedger
	Carts    store.CartRepository
	Notifier notify.Notifier
	Logger   *zap.Logger
	Settings Settings
	Now      func() time.Time
}

type Service struct {
	repo     store.Repository
	stock    store.StockLedger
	carts    store.CartRepository
	freezer  *lifecycle.Freezer
	runner   *saga.Runner
	notifier notify.Notifier
	logger   *zap.Logger
	settings Settings
	now      func() time.Time

	terminals keyedMutex
	orders    keyedMutex

	rulesMu sync.RWMutex
	rules   map[string]compiledRule
}

type compiledRule struct {
	expression string
	rule       *promotion.Rule
}

func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Stock == nil {
		deps.Stock = deps.Repo
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLogNotifier(deps.Logger)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Settings.DefaultWarehouseID == "" {
		deps.Settings.DefaultWarehouseID = "wh-main"
	}
	if deps.Settings.MaxFrozen < 1 {
		deps.Settings.MaxFrozen = lifecycle.DefaultMaxFrozen
	}
	if deps.Settings.VoucherValidityMonths < 1 {
		deps.Settings.VoucherValidityMonths = 12
	}

	logger := deps.Logger.Named("service")
	return &Service{
		repo:     deps.Repo,
		stock:    deps.Stock,
		carts:    deps.Carts,
		freezer:  lifecycle.NewFreezer(deps.Repo, deps.Carts, deps.Settings.MaxFrozen),
		runner:   saga.NewRunner(deps.Logger.Named("saga"), deps.Settings.StepTimeout),
		notifier: deps.Notifier,
		logger:   logger,
		settings: deps.Settings,
		now:      deps.Now,
		rules:    make(map[string]compiledRule),
	}
}

func (s *Service) logAudit(ctx context.Context, terminalID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		TerminalID:    terminalID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.logger.Warn("write audit log failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireRole(ctx, domain.RoleManager, domain.RoleAdmin); err != nil {
		return nil, err
	}
	day := s.now().UTC()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidTransaction)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}

func requireRole(ctx context.Context, roles ...string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return store.ErrUnauthorized
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return fmt.Errorf("%w: role %s", store.ErrForbidden, actor.Role)
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.Username
	}
	return "system"
}

// keyedMutex serialises work per terminal or per order.
type keyedMutex struct {
	locks sync.Map
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	mu, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (k *keyedMutex) Lock(key string) func() {
	mu := k.get(key)
	mu.Lock()
	return mu.Unlock
}

// TryLock fails instead of waiting when key is busy.
func (k *keyedMutex) TryLock(key string) (func(), bool) {
	mu := k.get(key)
	if !mu.TryLock() {
		return nil, false
	}
	return mu.Unlock, true
}
