package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

const tokenIssuer = "retailpos"

var errInvalidCredentials = errors.New("invalid credentials")

type AuthManager struct {
	mu         sync.RWMutex
	secret     []byte
	tokenTTL   time.Duration
	managerPIN string
	users      store.UserStore
	cache      map[string]credential
	now        func() time.Time
}

type credential struct {
	password string
	role     string
	active   bool
	created  time.Time
}

type posClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, users store.UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	hashedPIN := ""
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		if hash, err := hashPassword(pin); err == nil {
			hashedPIN = hash
		}
	}

	manager := &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		managerPIN: hashedPIN,
		users:      users,
		cache:      make(map[string]credential),
		now:        time.Now,
	}
	return manager
}

// Preload fills the credential cache from the user store. Login refreshes it
// again on every attempt.
func (a *AuthManager) Preload(ctx context.Context) error {
	return a.refresh(ctx)
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	if err := a.refresh(ctx); err != nil {
		return domain.LoginResponse{}, err
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.cache[username]
	a.mu.RUnlock()
	if !ok || !verifyPassword(cred.password, req.Password) {
		return domain.LoginResponse{}, fmt.Errorf("%w: %v", store.ErrUnauthorized, errInvalidCredentials)
	}
	if !cred.active {
		return domain.LoginResponse{}, fmt.Errorf("%w: account is inactive", store.ErrUnauthorized)
	}

	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, cred.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		Username:    username,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, fmt.Errorf("%w: invalid or expired token", store.ErrUnauthorized)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, fmt.Errorf("%w: invalid token subject", store.ErrUnauthorized)
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateManagerPIN always fails when no PIN was configured.
func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || a.managerPIN == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(input)) == nil
}

func (a *AuthManager) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserView, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	switch {
	case len(username) < 4:
		return domain.UserView{}, fmt.Errorf("%w: username must be at least 4 characters", store.ErrInvalidTransaction)
	case strings.ContainsAny(username, " \t\r\n"):
		return domain.UserView{}, fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidTransaction)
	case len(strings.TrimSpace(req.Password)) < 6:
		return domain.UserView{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidTransaction)
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleCashier
	}
	if role != domain.RoleCashier && role != domain.RoleManager {
		return domain.UserView{}, fmt.Errorf("%w: role must be cashier or manager", store.ErrInvalidTransaction)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserView{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.now().UTC()
	account := domain.UserAccount{Username: username, Password: hash, Role: role, Active: true, CreatedAt: now}
	if err := a.users.CreateUser(ctx, account); err != nil {
		return domain.UserView{}, err
	}

	a.mu.Lock()
	a.cache[username] = credential{password: hash, role: role, active: true, created: now}
	a.mu.Unlock()
	return domain.UserView{Username: username, Role: role, Active: true, CreatedAt: now}, nil
}

func (a *AuthManager) ListUsers(ctx context.Context) ([]domain.UserView, error) {
	if err := a.refresh(ctx); err != nil {
		return nil, err
	}
	a.mu.RLock()
	out := make([]domain.UserView, 0, len(a.cache))
	for username, cred := range a.cache {
		out = append(out, domain.UserView{Username: username, Role: cred.role, Active: cred.active, CreatedAt: cred.created})
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// refresh reloads credentials so accounts created by other processes can log in.
// Accounts without a bcrypt hash are skipped.
func (a *AuthManager) refresh(ctx context.Context) error {
	if a.users == nil {
		return nil
	}
	users, err := a.users.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" || !isPasswordHash(user.Password) {
			continue
		}
		a.cache[username] = credential{
			password: user.Password,
			role:     user.Role,
			active:   user.Active,
			created:  user.CreatedAt,
		}
	}
	return nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
