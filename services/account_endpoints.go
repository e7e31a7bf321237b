package services

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/trainhub/tms/apperr"
)

type AccountEndpoints struct {
	accounts *AccountService
}

func NewAccountEndpoints(accounts *AccountService) *AccountEndpoints {
	return &AccountEndpoints{accounts: accounts}
}

func (e *AccountEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Patch("/role", e.ChangeRoleHandler)
		r.Delete("/", e.DeleteHandler)
	})
}

func (e *AccountEndpoints) ChangeRoleHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body", err))
		return
	}
	account, err := e.accounts.ChangeRole(r.Context(), actor, chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": account})
}

func (e *AccountEndpoints) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	if err := e.accounts.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "account deleted"})
}
