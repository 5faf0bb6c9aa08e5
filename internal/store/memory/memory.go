package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	stock           map[string]map[string]int
	orders          map[string]domain.Order
	items           map[string]domain.OrderItem
	itemOrder       map[string][]string
	payments        map[string][]domain.OrderPayment
	vouchers        map[string]domain.Voucher
	frozen          map[string]domain.FrozenCart
	promotions      map[string]domain.Promotion
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

var _ store.Repository = (*Store)(nil)

// New returns an empty store without users or products.
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		stock:           make(map[string]map[string]int),
		orders:          make(map[string]domain.Order),
		items:           make(map[string]domain.OrderItem),
		itemOrder:       make(map[string][]string),
		payments:        make(map[string][]domain.OrderPayment),
		vouchers:        make(map[string]domain.Voucher),
		frozen:          make(map[string]domain.FrozenCart),
		promotions:      make(map[string]domain.Promotion),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo products stocked in warehouseID and
// dev user accounts. Passwords come from SEED_ADMIN_PASSWORD,
// SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD when set.
func NewSeeded(warehouseID string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := New()

	products := []domain.Product{
		{ID: "TSHIRT-BASIC-M", Name: "Basic T-Shirt", Size: "M", ListPrice: price("19.90"), Active: true},
		{ID: "TSHIRT-BASIC-L", Name: "Basic T-Shirt", Size: "L", ListPrice: price("19.90"), Active: true},
		{ID: "JEANS-SLIM-32", Name: "Slim Jeans", Size: "32", ListPrice: price("59.00"), SalePrice: price("44.25"), Active: true},
		{ID: "HOODIE-ZIP-M", Name: "Zip Hoodie", Size: "M", ListPrice: price("49.00"), Active: true},
		{ID: "SOCKS-3PK", Name: "Socks 3-Pack", Size: "UNI", ListPrice: price("9.90"), Active: true},
		{ID: "CAP-LOGO", Name: "Logo Cap", Size: "UNI", ListPrice: price("14.50"), Active: true},
		{ID: "JACKET-RAIN-L", Name: "Rain Jacket", Size: "L", ListPrice: price("89.00"), SalePrice: price("71.20"), Active: true},
		{ID: "BELT-LEATHER", Name: "Leather Belt", Size: "95", ListPrice: price("29.00"), Active: true},
	}
	s.stock[warehouseID] = make(map[string]int)
	for _, p := range products {
		s.products[p.ID] = p
		s.stock[warehouseID][p.ID] = 40
	}

	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"manager", envOr("SEED_MANAGER_PASSWORD", "manager123"), domain.RoleManager},
		{"cashier", envOr("SEED_CASHIER_PASSWORD", "cashier123"), domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: time.Now().UTC(),
		}
	}
	return s
}

// SetStock overwrites a stock counter. Seeding and tests only.
func (s *Store) SetStock(productID string, warehouseID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stock[warehouseID] == nil {
		s.stock[warehouseID] = make(map[string]int)
	}
	s.stock[warehouseID][productID] = qty
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok || !p.Active {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpsertProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.ID = strings.TrimSpace(product.ID)
	if product.ID == "" || !product.ListPrice.IsPositive() || product.SalePrice.IsNegative() {
		return nil, store.ErrInvalidTransaction
	}
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) CreatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	s.promotions[promo.ID] = promo
	return &promo, nil
}

func (s *Store) GetPromotion(_ context.Context, promotionID string) (*domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promo, ok := s.promotions[promotionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &promo, nil
}

func (s *Store) ListPromotions(_ context.Context) ([]domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Promotion, 0, len(s.promotions))
	for _, promo := range s.promotions {
		result = append(result, promo)
	}
	slices.SortFunc(result, func(a, b domain.Promotion) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
