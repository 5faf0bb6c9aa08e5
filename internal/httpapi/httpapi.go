package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"retailpos/backend/internal/saga"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store"
)

const managerPINHeader = "X-Manager-PIN"

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
	pinLimiter    *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        logger,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		pinLimiter:    newAttemptLimiter(8, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.securityHeaders)
	r.Use(a.requestLogger)

	r.Get("/healthz", a.handleHealth)
	r.Post("/api/v1/auth/login", a.handleLogin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Route("/terminals/{terminal}", func(r chi.Router) {
			r.Get("/cart", a.handleGetCart)
			r.Delete("/cart", a.handleResetCart)
			r.Post("/cart/lines", a.handleAddLine)
			r.Delete("/cart/lines/{line}", a.handleRemoveLine)
			r.Patch("/cart/lines/{line}/quantity", a.handleSetQuantity)
			r.Patch("/cart/lines/{line}/discount", a.handleLineDiscount)
			r.Patch("/cart/lines/{line}/total", a.handleLineTotal)
			r.Patch("/cart/lines/{line}/units/{unit}/discount", a.handleUnitDiscount)
			r.Patch("/cart/total", a.handleOrderTotal)
			r.Post("/cart/promotions/{promotion}", a.handleApplyPromotion)
			r.Post("/cart/reservation/{order}", a.handleLoadReservation)
			r.Post("/cart/checkout", a.handleCheckout)
			r.Post("/cart/freeze", a.handleFreeze)
			r.Get("/frozen", a.handleListFrozen)
			r.Post("/frozen/{frozen}/unfreeze", a.handleUnfreeze)
			r.Delete("/frozen/{frozen}", a.handleDiscardFrozen)
		})

		r.Get("/orders/{order}", a.handleGetOrder)
		r.With(a.requireManagerPIN).Post("/orders/{order}/cancel", a.handleCancelReservation)
		r.With(a.requireManagerPIN).Post("/orders/{order}/returns", a.handleProcessReturn)

		r.Get("/promotions", a.handleListPromotions)
		r.Post("/promotions", a.handleCreatePromotion)

		r.Get("/products/{product}", a.handleGetProduct)
		r.Put("/products/{product}", a.handleUpsertProduct)
		r.Post("/products/{product}/stock", a.handleReceiveStock)

		r.Get("/audit-logs", a.handleAuditLogs)
		r.Get("/users", a.handleListUsers)
		r.Post("/users", a.handleCreateUser)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})
	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

// requireManagerPIN guards supervisor operations with the bcrypt-checked PIN.
func (a *API) requireManagerPIN(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.pinLimiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many manager PIN attempts"))
			return
		}
		if !a.auth.ValidateManagerPIN(r.Header.Get(managerPINHeader)) {
			writeError(w, http.StatusForbidden, errors.New("manager PIN required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+managerPINHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrIllegalTransition),
		errors.Is(err, store.ErrFreezeLimit),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrReadOnlyLine):
		return http.StatusConflict
	case errors.Is(err, store.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// fail writes a service error. Failed workflows that left side effects are
// flagged so the client can ask a supervisor to reconcile.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := map[string]any{"error": err.Error()}

	var sagaErr *saga.Error
	if errors.As(err, &sagaErr) {
		body["step"] = sagaErr.Step
		if sagaErr.NeedsReconciliation() {
			body["reconciliation_required"] = true
			body["detail"] = saga.Describe(sagaErr)
		}
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		body["error"] = "internal server error"
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, ceiling int) int {
	limit := fallback
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if ceiling > 0 && limit > ceiling {
		return ceiling
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
		return
	}
	writeError(w, http.StatusBadRequest, err)
}
