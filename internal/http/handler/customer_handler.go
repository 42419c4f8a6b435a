package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/service"
	"go.uber.org/zap"
)

type CustomerHandler struct {
	customerService *service.CustomerService
	logger          *zap.Logger
}

func NewCustomerHandler(customerService *service.CustomerService, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{
		customerService: customerService,
		logger:          logger,
	}
}

// List godoc
// @Summary List customers
// @Description Get all customers of the account ordered by name
// @Tags Customers
// @Produce json
// @Success 200 {array} domain.CustomerDTO
// @Failure 401 {object} domain.APIError
// @Failure 503 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers [get]
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	customers, err := h.customerService.List(r.Context(), acc)
	if err != nil {
		respondServiceError(w, h.logger, err, "hente kunder")
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

// Search godoc
// @Summary Search customers
// @Description Case-insensitive match on name or email
// @Tags Customers
// @Produce json
// @Param q query string true "Search text"
// @Success 200 {array} domain.CustomerDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/search [get]
func (h *CustomerHandler) Search(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}
	customers, err := h.customerService.Search(r.Context(), acc, query)
	if err != nil {
		respondServiceError(w, h.logger, err, "søke i kunder")
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

// GetByID godoc
// @Summary Get customer
// @Tags Customers
// @Produce json
// @Param id path string true "Customer ID"
// @Success 200 {object} domain.CustomerDTO
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id} [get]
func (h *CustomerHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	customer, err := h.customerService.GetByID(r.Context(), acc, chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "hente kunde")
		return
	}
	respondJSON(w, http.StatusOK, customer)
}

// Create godoc
// @Summary Create customer
// @Tags Customers
// @Accept json
// @Produce json
// @Param request body domain.CreateCustomerRequest true "Customer data"
// @Success 201 {object} domain.CustomerDTO
// @Failure 400 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers [post]
func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	var req domain.CreateCustomerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	customer, err := h.customerService.Create(r.Context(), acc, &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "opprette kunde")
		return
	}

	w.Header().Set("Location", "/api/v1/customers/"+customer.ID)
	respondJSON(w, http.StatusCreated, customer)
}

// Update godoc
// @Summary Update customer
// @Description Partial update. Renaming a customer also renames it on its quotes.
// @Tags Customers
// @Accept json
// @Produce json
// @Param id path string true "Customer ID"
// @Param request body domain.UpdateCustomerRequest true "Fields to change"
// @Success 200 {object} domain.CustomerDTO
// @Failure 400 {object} domain.APIError
// @Failure 404 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id} [put]
func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	var req domain.UpdateCustomerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	customer, err := h.customerService.Update(r.Context(), acc, chi.URLParam(r, "id"), &req)
	if err != nil {
		respondServiceError(w, h.logger, err, "oppdatere kunde")
		return
	}
	respondJSON(w, http.StatusOK, customer)
}

// Delete godoc
// @Summary Delete customer
// @Description Fails with 409 while the customer still has quotes
// @Tags Customers
// @Param id path string true "Customer ID"
// @Success 204
// @Failure 404 {object} domain.APIError
// @Failure 409 {object} domain.APIError
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/{id} [delete]
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	if err := h.customerService.Delete(r.Context(), acc, chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, h.logger, err, "slette kunde")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reconcile godoc
// @Summary Reconcile customer counters
// @Description Recount quotes and won quotes for every customer from the stored quotes
// @Tags Customers
// @Produce json
// @Success 200 {object} domain.ReconcileResult
// @Security BearerAuth
// @Security ApiKeyAuth
// @Router /customers/reconcile [post]
func (h *CustomerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	acc, ok := accountID(w, r)
	if !ok {
		return
	}
	result, err := h.customerService.Reconcile(r.Context(), acc)
	if err != nil {
		respondServiceError(w, h.logger, err, "avstemme kunder")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
