package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/proanbud/proanbud-api/internal/analytics"
	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/repository"
)

// Common service errors
var (
	// ErrPermissionDenied is returned when the account may not perform an action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when an operation conflicts with stored data
	ErrConflict = errors.New("resource conflict")

	// ErrUnauthorized is returned when no account is authenticated
	ErrUnauthorized = errors.New("unauthorized")

	// ErrQuoteNotFound is returned when a quote is not found
	ErrQuoteNotFound = errors.New("quote not found")

	// ErrCustomerNotFound is returned when a customer is not found
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrCustomerHasQuotes is returned when deleting a customer that quotes still reference
	ErrCustomerHasQuotes = errors.New("customer has quotes")

	// ErrSettingsNotFound is returned when the account has no stored settings
	ErrSettingsNotFound = errors.New("settings not found")
)

// Categorize maps store and service errors to the category shown to the user
func Categorize(err error) domain.ErrorCategory {
	var validationErrs validator.ValidationErrors
	switch {
	case err == nil:
		return ""
	case errors.Is(err, docstore.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.CategoryConnectivity
	case errors.Is(err, docstore.ErrPermissionDenied),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrUnauthorized):
		return domain.CategoryAuthorization
	case errors.Is(err, docstore.ErrInvalidData),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, analytics.ErrUnknownMonth),
		errors.As(err, &validationErrs):
		return domain.CategoryInvalidInput
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrQuoteNotFound),
		errors.Is(err, ErrCustomerNotFound),
		errors.Is(err, ErrSettingsNotFound):
		return domain.CategoryNotFound
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrCustomerHasQuotes):
		return domain.CategoryConflict
	default:
		return domain.CategoryGeneric
	}
}

// Pinger probes store connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// ensureConnected fails fast when the store cannot be reached. Operations are
// never retried.
func ensureConnected(ctx context.Context, store Pinger) error {
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	return nil
}

func requireAccount(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("%w: missing account", ErrUnauthorized)
	}
	return nil
}

// precheck runs the checks shared by every public service operation
func precheck(ctx context.Context, store Pinger, accountID string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	return ensureConnected(ctx, store)
}
