package services

import (
	"encoding/json"
	"net/http"

	"github.com/trainhub/tms/apperr"
	"github.com/trainhub/tms/models"
)

type AuthEndpoints struct {
	auth     *AuthService
	accounts AccountStore
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthResponse struct {
	Account *models.Account `json:"account"`
	Tokens  *TokenPair      `json:"tokens"`
}

func NewAuthEndpoints(auth *AuthService, accounts AccountStore) *AuthEndpoints {
	return &AuthEndpoints{auth: auth, accounts: accounts}
}

func (e *AuthEndpoints) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body", err))
		return
	}
	account, tokens, err := e.auth.Register(r.Context(), req.Email, req.Password, req.FullName, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{Account: account, Tokens: tokens})
}

func (e *AuthEndpoints) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body", err))
		return
	}
	account, tokens, err := e.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Account: account, Tokens: tokens})
}

func (e *AuthEndpoints) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body", err))
		return
	}
	tokens, err := e.auth.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})
}

func (e *AuthEndpoints) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	if err := e.auth.Logout(r.Context(), actor.AccountID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (e *AuthEndpoints) MeHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	account, err := e.accounts.GetAccountByID(r.Context(), actor.AccountID)
	if err != nil {
		writeError(w, apperr.New(apperr.CodeInternal, "failed to get account", err))
		return
	}
	if account == nil {
		writeError(w, apperr.New(apperr.CodeNotFound, "account not found", nil))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": account})
}
