package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/service"
)

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "order"))
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	var req domain.CancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	req.OrderID = chi.URLParam(r, "order")
	resp, err := a.service.CancelReservation(r.Context(), req)
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleProcessReturn(w http.ResponseWriter, r *http.Request) {
	var req domain.ReturnRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	req.OrderID = chi.URLParam(r, "order")
	resp, err := a.service.ProcessReturn(r.Context(), req)
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleListPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := a.service.ListPromotions(r.Context())
	a.respond(w, r, http.StatusOK, map[string]any{"promotions": promos}, err)
}

func (a *API) handleCreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req domain.PromotionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	promo, err := a.service.CreatePromotion(r.Context(), req)
	a.respond(w, r, http.StatusCreated, promo, err)
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "product"))
	a.respond(w, r, http.StatusOK, product, err)
}

func (a *API) handleUpsertProduct(w http.ResponseWriter, r *http.Request) {
	var product domain.Product
	if err := decodeJSON(r, &product); err != nil {
		writeBadRequest(w, err)
		return
	}
	product.ID = chi.URLParam(r, "product")
	saved, err := a.service.UpsertProduct(r.Context(), product)
	a.respond(w, r, http.StatusOK, saved, err)
}

func (a *API) handleReceiveStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockReceiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	productID := chi.URLParam(r, "product")
	onHand, err := a.service.ReceiveStock(r.Context(), productID, req)
	a.respond(w, r, http.StatusOK, map[string]any{"product_id": productID, "on_hand": onHand}, err)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	a.respond(w, r, http.StatusOK, map[string]any{"audit_logs": logs}, err)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if !a.isAdmin(r) {
		writeError(w, http.StatusForbidden, errors.New("admin role required"))
		return
	}
	users, err := a.auth.ListUsers(r.Context())
	a.respond(w, r, http.StatusOK, map[string]any{"users": users}, err)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if !a.isAdmin(r) {
		writeError(w, http.StatusForbidden, errors.New("admin role required"))
		return
	}
	var req domain.UserCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	a.respond(w, r, http.StatusCreated, user, err)
}

func (a *API) isAdmin(r *http.Request) bool {
	actor, ok := service.ActorFromContext(r.Context())
	return ok && actor.Role == domain.RoleAdmin
}
