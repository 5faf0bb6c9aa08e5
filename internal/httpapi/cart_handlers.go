package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"retailpos/backend/internal/domain"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.GetCart(r.Context(), chi.URLParam(r, "terminal"))
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleResetCart(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ResetCart(r.Context(), chi.URLParam(r, "terminal")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var req domain.AddLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := a.service.AddProduct(r.Context(), chi.URLParam(r, "terminal"), req)
	a.respond(w, r, http.StatusCreated, resp, err)
}

func (a *API) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.RemoveLine(r.Context(), chi.URLParam(r, "terminal"), chi.URLParam(r, "line"))
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req domain.QuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := a.service.SetQuantity(r.Context(), chi.URLParam(r, "terminal"), chi.URLParam(r, "line"), req.Quantity)
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleLineDiscount(w http.ResponseWriter, r *http.Request) {
	var req domain.PercentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := a.service.ApplyLineDiscount(r.Context(), chi.URLParam(r, "terminal"), chi.URLParam(r, "line"), req.Percent)
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleUnitDiscount(w http.ResponseWriter, r *http.Request) {
	unit, err := strconv.Atoi(chi.URLParam(r, "unit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("unit must be an integer"))
		return
	}
	var req domain.PercentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := a.service.ApplyUnitDiscount(r.Context(), chi.URLParam(r, "terminal"), chi.URLParam(r, "line"), unit, req.Percent)
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleLineTotal(w http.ResponseWriter, r *http.Request) {
	var req domain.TotalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := a.service.ApplyLineTotal(r.Context(), chi.URLParam(r, "terminal"), chi.URLParam(r, "line"), req.Total)
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleOrderTotal(w http.ResponseWriter, r *http.Request) {
	var req domain.TotalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := a.service.ApplyOrderTotal(r.Context(), chi.URLParam(r, "terminal"), req.Total)
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleApplyPromotion(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ApplyPromotion(r.Context(), chi.URLParam(r, "terminal"), chi.URLParam(r, "promotion"))
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleLoadReservation(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.LoadReservation(r.Context(), chi.URLParam(r, "terminal"), chi.URLParam(r, "order"))
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := a.service.Checkout(r.Context(), chi.URLParam(r, "terminal"), req)
	a.respond(w, r, http.StatusCreated, resp, err)
}

func (a *API) handleFreeze(w http.ResponseWriter, r *http.Request) {
	var req domain.FreezeRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	frozen, err := a.service.Freeze(r.Context(), chi.URLParam(r, "terminal"), req.Label)
	a.respond(w, r, http.StatusCreated, frozen, err)
}

func (a *API) handleListFrozen(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ListFrozen(r.Context(), chi.URLParam(r, "terminal"))
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.Unfreeze(r.Context(), chi.URLParam(r, "terminal"), chi.URLParam(r, "frozen"))
	a.respond(w, r, http.StatusOK, resp, err)
}

func (a *API) handleDiscardFrozen(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardFrozen(r.Context(), chi.URLParam(r, "terminal"), chi.URLParam(r, "frozen")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}
