package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"sanjoseboots/backend/internal/domain"
	"sanjoseboots/backend/internal/service"
	"sanjoseboots/backend/internal/store"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrInactiveAccount) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	actor, _ := service.ActorFromContext(r.Context())
	profile, err := a.auth.Profile(r.Context(), actor.UserID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.permit(w, r, domain.ResourceUsers, domain.ActionCreate) {
		return
	}

	var req domain.RegisterRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	profile, err := a.auth.Register(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": profile})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.permit(w, r, domain.ResourceProducts, domain.ActionRead) {
			return
		}
		categoryID, err := queryID(r, "categoryId")
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		supplierID, err := queryID(r, "supplierId")
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		products, err := a.service.ListProducts(r.Context(), store.ProductQuery{
			Search:     r.URL.Query().Get("q"),
			CategoryID: categoryID,
			SupplierID: supplierID,
		})
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		if !a.permit(w, r, domain.ResourceProducts, domain.ActionCreate) {
			return
		}
		var req domain.ProductRequest
		if err := a.decodeAndValidate(r, &req); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.permit(w, r, domain.ResourceProducts, domain.ActionRead) {
			return
		}
		product, err := a.service.GetProduct(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodPut:
		if !a.permit(w, r, domain.ResourceProducts, domain.ActionUpdate) {
			return
		}
		var req domain.ProductRequest
		if err := a.decodeAndValidate(r, &req); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), id, req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case http.MethodDelete:
		if !a.permit(w, r, domain.ResourceProducts, domain.ActionDelete) {
			return
		}
		if err := a.service.DeleteProduct(r.Context(), id); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleVariant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.permit(w, r, domain.ResourceProducts, domain.ActionRead) {
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	variant, err := a.service.GetVariant(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variant": variant})
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if !a.permit(w, r, domain.ResourceProducts, domain.ActionRead) {
		return
	}
	categories, err := a.service.ListCategories(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !a.permit(w, r, domain.ResourceProducts, domain.ActionRead) {
			return
		}
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		if !a.permit(w, r, domain.ResourceProducts, domain.ActionCreate) {
			return
		}
		var req domain.SupplierRequest
		if err := a.decodeAndValidate(r, &req); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleRestock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.permit(w, r, domain.ResourceInventory, domain.ActionUpdate) {
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	var req domain.RestockRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	req.Note = strings.TrimSpace(req.Note)
	if err := a.service.Restock(r.Context(), id, req); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	variant, err := a.service.GetVariant(r.Context(), id)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variant": variant})
}
