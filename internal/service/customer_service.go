package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/logger"
	"github.com/proanbud/proanbud-api/internal/mapper"
	"github.com/proanbud/proanbud-api/internal/repository"
	"go.uber.org/zap"
)

type CustomerService struct {
	store        Pinger
	customerRepo *repository.CustomerRepository
	quoteRepo    *repository.QuoteRepository
	logger       *zap.Logger
}

func NewCustomerService(
	store Pinger,
	customerRepo *repository.CustomerRepository,
	quoteRepo *repository.QuoteRepository,
	logger *zap.Logger,
) *CustomerService {
	return &CustomerService{
		store:        store,
		customerRepo: customerRepo,
		quoteRepo:    quoteRepo,
		logger:       logger,
	}
}

func (s *CustomerService) Create(ctx context.Context, accountID string, req *domain.CreateCustomerRequest) (*domain.CustomerDTO, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}

	customer := &domain.Customer{
		Name:      name,
		Email:     NormalizeEmail(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Addresses: []string{},
	}
	if address := JoinAddress(req.Address, req.PostalCode, req.City); address != "" {
		customer.Addresses = append(customer.Addresses, address)
	}

	if err := s.customerRepo.Create(ctx, accountID, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	created, err := s.customerRepo.GetByID(ctx, accountID, customer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	logger.WithAccount(s.logger, accountID, "").Info("customer created",
		zap.String("customer_id", created.ID))

	dto := mapper.ToCustomerDTO(created)
	return &dto, nil
}

func (s *CustomerService) GetByID(ctx context.Context, accountID, id string) (*domain.CustomerDTO, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	customer, err := s.get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	dto := mapper.ToCustomerDTO(customer)
	return &dto, nil
}

// List returns every customer ordered by name
func (s *CustomerService) List(ctx context.Context, accountID string) ([]domain.CustomerDTO, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	customers, err := s.customerRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return toCustomerDTOs(customers), nil
}

// Search matches name or email case-insensitively
func (s *CustomerService) Search(ctx context.Context, accountID, query string) ([]domain.CustomerDTO, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	customers, err := s.customerRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to search customers: %w", err)
	}

	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return toCustomerDTOs(customers), nil
	}
	matches := make([]domain.Customer, 0)
	for _, c := range customers {
		if strings.Contains(strings.ToLower(c.Name), term) || strings.Contains(strings.ToLower(c.Email), term) {
			matches = append(matches, c)
		}
	}
	return toCustomerDTOs(matches), nil
}

// Update applies a partial update. A new name is copied onto every quote of the
// customer.
func (s *CustomerService) Update(ctx context.Context, accountID, id string, req *domain.UpdateCustomerRequest) (*domain.CustomerDTO, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	customer, err := s.get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	renamed := false
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
		}
		if name != customer.Name {
			fields["name"] = name
			renamed = true
		}
	}
	if req.Email != nil {
		fields["email"] = NormalizeEmail(*req.Email)
	}
	if req.Phone != nil {
		fields["phone"] = strings.TrimSpace(*req.Phone)
	}
	if req.Addresses != nil {
		addresses := make([]string, 0, len(*req.Addresses))
		for _, a := range *req.Addresses {
			if a = strings.TrimSpace(a); a != "" {
				addresses = append(addresses, a)
			}
		}
		fields["addresses"] = addresses
	}

	if len(fields) > 0 {
		if err := s.customerRepo.Patch(ctx, accountID, id, fields); err != nil {
			return nil, fmt.Errorf("failed to update customer: %w", err)
		}
	}
	if renamed {
		if err := s.propagateName(ctx, accountID, id, fields["name"].(string)); err != nil {
			return nil, err
		}
	}

	updated, err := s.get(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	dto := mapper.ToCustomerDTO(updated)
	return &dto, nil
}

// Delete removes a customer that no quote references
func (s *CustomerService) Delete(ctx context.Context, accountID, id string) error {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return err
	}
	customer, err := s.get(ctx, accountID, id)
	if err != nil {
		return err
	}
	quotes, err := s.quoteRepo.List(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to list quotes: %w", err)
	}
	for i := range quotes {
		if s.owns(customer, &quotes[i]) {
			return fmt.Errorf("%w: %s", ErrCustomerHasQuotes, customer.Name)
		}
	}

	if err := s.customerRepo.Delete(ctx, accountID, id); err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	return nil
}

// ApplyQuoteTransition is the only code path that changes customer counters.
// before is nil for a new quote and after is nil for a deleted one. Both quotes
// must carry their resolved customer id.
func (s *CustomerService) ApplyQuoteTransition(ctx context.Context, accountID string, before, after *domain.Quote) error {
	type delta struct{ quotes, won int }
	deltas := map[string]*delta{}
	var order []string
	add := func(q *domain.Quote, sign int) {
		if q == nil || q.CustomerID == "" {
			return
		}
		d, ok := deltas[q.CustomerID]
		if !ok {
			d = &delta{}
			deltas[q.CustomerID] = d
			order = append(order, q.CustomerID)
		}
		d.quotes += sign
		if q.IsWon() {
			d.won += sign
		}
	}
	add(before, -1)
	add(after, +1)

	log := logger.WithAccount(s.logger, accountID, "")
	var errs []error
	for _, customerID := range order {
		d := deltas[customerID]
		if d.quotes == 0 && d.won == 0 {
			continue
		}
		customer, err := s.customerRepo.GetByID(ctx, accountID, customerID)
		if errors.Is(err, repository.ErrNotFound) {
			log.Warn("quote references missing customer, counters not updated",
				zap.String("customer_id", customerID))
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to get customer %s: %w", customerID, err))
			continue
		}
		if err := s.customerRepo.SetCounters(ctx, accountID, customerID,
			customer.QuoteCount+d.quotes, customer.WonCount+d.won, true); err != nil {
			errs = append(errs, fmt.Errorf("failed to update counters of %s: %w", customerID, err))
			continue
		}
		log.Debug("customer counters updated",
			zap.String("customer_id", customerID),
			zap.Int("quote_delta", d.quotes),
			zap.Int("won_delta", d.won))
	}
	return errors.Join(errs...)
}

// Reconcile recomputes every customer's counters from the stored quotes and
// corrects the ones that drifted.
func (s *CustomerService) Reconcile(ctx context.Context, accountID string) (*domain.ReconcileResult, error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}
	customers, err := s.customerRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	quotes, err := s.quoteRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}

	type counts struct{ quotes, won int }
	truth := make(map[string]*counts, len(customers))
	for _, c := range customers {
		truth[c.ID] = &counts{}
	}
	log := logger.WithAccount(s.logger, accountID, "")
	for i := range quotes {
		q := &quotes[i]
		owner := q.CustomerID
		if owner == "" {
			if c := findByName(customers, q.CustomerName); c != nil {
				owner = c.ID
			}
		}
		tc, ok := truth[owner]
		if !ok {
			log.Debug("quote without known customer ignored by reconciliation", zap.String("quote_id", q.ID))
			continue
		}
		tc.quotes++
		if q.IsWon() {
			tc.won++
		}
	}

	result := &domain.ReconcileResult{Checked: len(customers)}
	for _, c := range customers {
		tc := truth[c.ID]
		if tc.quotes == c.QuoteCount && tc.won == c.WonCount {
			continue
		}
		if err := s.customerRepo.SetCounters(ctx, accountID, c.ID, tc.quotes, tc.won, false); err != nil {
			return result, fmt.Errorf("failed to correct counters of %s: %w", c.ID, err)
		}
		log.Info("customer counters corrected",
			zap.String("customer_id", c.ID),
			zap.Int("quote_count", tc.quotes),
			zap.Int("won_count", tc.won),
			zap.Int("previous_quote_count", c.QuoteCount),
			zap.Int("previous_won_count", c.WonCount))
		result.Corrected++
	}
	return result, nil
}

// resolveForQuote returns the customer a quote belongs to. Quotes written before
// customer ids existed fall back to a case-insensitive name match.
func (s *CustomerService) resolveForQuote(ctx context.Context, accountID, customerID, legacyName string) (*domain.Customer, error) {
	if customerID != "" {
		return s.get(ctx, accountID, customerID)
	}
	if strings.TrimSpace(legacyName) == "" {
		return nil, fmt.Errorf("%w: quote has no customer", ErrCustomerNotFound)
	}
	customers, err := s.customerRepo.List(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	c := findByName(customers, legacyName)
	if c == nil {
		return nil, fmt.Errorf("%w: %q", ErrCustomerNotFound, legacyName)
	}
	logger.WithAccount(s.logger, accountID, "").Info("resolved legacy quote customer by name",
		zap.String("customer_name", legacyName),
		zap.String("customer_id", c.ID))
	return c, nil
}

func (s *CustomerService) get(ctx context.Context, accountID, id string) (*domain.Customer, error) {
	customer, err := s.customerRepo.GetByID(ctx, accountID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return customer, nil
}

func (s *CustomerService) owns(customer *domain.Customer, q *domain.Quote) bool {
	if q.CustomerID != "" {
		return q.CustomerID == customer.ID
	}
	return strings.EqualFold(strings.TrimSpace(q.CustomerName), strings.TrimSpace(customer.Name))
}

func (s *CustomerService) propagateName(ctx context.Context, accountID, customerID, name string) error {
	quotes, err := s.quoteRepo.List(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to list quotes: %w", err)
	}
	updated := 0
	for i := range quotes {
		if quotes[i].CustomerID != customerID {
			continue
		}
		if err := s.quoteRepo.Patch(ctx, accountID, quotes[i].ID, map[string]any{"customerName": name}); err != nil {
			return fmt.Errorf("failed to rename customer on quote %s: %w", quotes[i].ID, err)
		}
		updated++
	}
	logger.WithAccount(s.logger, accountID, "").Info("customer renamed",
		zap.String("customer_id", customerID),
		zap.Int("quotes_updated", updated))
	return nil
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// JoinAddress formats "address, postalCode city" from the parts that are present
func JoinAddress(address, postalCode, city string) string {
	var parts []string
	if a := strings.TrimSpace(address); a != "" {
		parts = append(parts, a)
	}
	if tail := strings.TrimSpace(strings.TrimSpace(postalCode) + " " + strings.TrimSpace(city)); tail != "" {
		parts = append(parts, tail)
	}
	return strings.Join(parts, ", ")
}

func findByName(customers []domain.Customer, name string) *domain.Customer {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	for i := range customers {
		if strings.EqualFold(strings.TrimSpace(customers[i].Name), name) {
			return &customers[i]
		}
	}
	return nil
}

func toCustomerDTOs(customers []domain.Customer) []domain.CustomerDTO {
	dtos := make([]domain.CustomerDTO, len(customers))
	for i := range customers {
		dtos[i] = mapper.ToCustomerDTO(&customers[i])
	}
	return dtos
}
