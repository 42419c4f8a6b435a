package handler

import (
	"net/http"

	"github.com/proanbud/proanbud-api/internal/auth"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/service"
	"go.uber.org/zap"
)

type AccountHandler struct {
	accountService *service.AccountService
	logger         *zap.Logger
}

func NewAccountHandler(accountService *service.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// accountResponse describes the authenticated caller
type accountResponse struct {
	AccountID     string      `json:"accountId"`
	Email         string      `json:"email,omitempty"`
	DisplayName   string      `json:"displayName,omitempty"`
	EmailVerified bool        `json:"emailVerified"`
	AuthMethod    auth.Method `json:"authMethod"`
}

// Me godoc
// @Summary Current account
// @Description Returns the identity resolved from the bearer token or API key
// @Tags Account
// @Produce json
// @Success 200 {object} accountResponse
// @Failure 401 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /account/me [get]
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Ikke innlogget")
		return
	}
	respondJSON(w, http.StatusOK, accountResponse{
		AccountID:     account.AccountID,
		Email:         account.Email,
		DisplayName:   account.DisplayName,
		EmailVerified: account.EmailVerified,
		AuthMethod:    account.Method,
	})
}

// Init godoc
// @Summary Initialize account
// @Description Called after login. Creates the account with default settings and an empty
// @Description analytics summary the first time, and records the login afterwards.
// @Description Name and email default to the values in the ID token.
// @Tags Account
// @Accept json
// @Produce json
// @Param request body domain.InitAccountRequest false "Profile data"
// @Success 200 {object} domain.AccountInitResult
// @Success 201 {object} domain.AccountInitResult
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /account/init [post]
func (h *AccountHandler) Init(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Ikke innlogget")
		return
	}

	var req domain.InitAccountRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if req.Email == "" {
		req.Email = account.Email
	}
	if req.Name == "" {
		req.Name = account.DisplayName
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	result, err := h.accountService.Initialize(r.Context(), account.AccountID, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "opprette konto")
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respondJSON(w, status, result)
}
