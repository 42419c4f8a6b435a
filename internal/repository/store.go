package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/proanbud/proanbud-api/internal/docstore"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a document does not exist
var ErrNotFound = errors.New("document not found")

const (
	accountsCollection  = "accounts"
	quotesCollection    = "quotes"
	customersCollection = "customers"
	metaCollection      = "meta"

	analyticsDoc        = "analytics"
	businessSettingsDoc = "businessSettings"
	userSettingsDoc     = "userSettings"
)

// AccountsPath is the collection holding one profile document per account
func AccountsPath() docstore.Path {
	return docstore.NewPath(accountsCollection)
}

// AccountPath is the profile document of an account
func AccountPath(accountID string) docstore.Path {
	return docstore.NewPath(accountsCollection, accountID)
}

// QuotesPath is the quote collection of an account
func QuotesPath(accountID string) docstore.Path {
	return AccountPath(accountID).Child(quotesCollection)
}

// CustomersPath is the customer collection of an account
func CustomersPath(accountID string) docstore.Path {
	return AccountPath(accountID).Child(customersCollection)
}

func metaPath(accountID, doc string) docstore.Path {
	return AccountPath(accountID).Child(metaCollection, doc)
}

// toFields converts a record into a field map so that timestamp placeholders can
// be set on individual fields.
func toFields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// readDocument decodes the document at p into out. A missing document yields
// ErrNotFound.
func readDocument(ctx context.Context, store docstore.Store, p docstore.Path, out any) error {
	snap, err := store.Read(ctx, p)
	if err != nil {
		return err
	}
	if !snap.Exists() {
		return ErrNotFound
	}
	return snap.Decode(out)
}

// decodeChildren decodes every document of a collection snapshot. Documents that
// do not decode are logged and skipped; setID receives the document key.
func decodeChildren[T any](snap docstore.Snapshot, logger *zap.Logger, setID func(*T, string)) ([]T, error) {
	children, err := snap.Children()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(children))
	for id := range children {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]T, 0, len(children))
	for _, id := range ids {
		var item T
		if err := json.Unmarshal(children[id], &item); err != nil {
			logger.Warn("skipping malformed document",
				zap.String("path", snap.Path.Child(id).String()),
				zap.Error(err))
			continue
		}
		setID(&item, id)
		out = append(out, item)
	}
	return out, nil
}

// watchCollection subscribes to a collection and hands every decoded snapshot to
// onChange. A snapshot that is not a collection is reported as an error.
func watchCollection[T any](ctx context.Context, store docstore.Store, p docstore.Path, logger *zap.Logger,
	setID func(*T, string), onChange func([]T, error)) (docstore.Subscription, error) {
	sub, err := store.Subscribe(ctx, p, func(snap docstore.Snapshot) {
		items, err := decodeChildren(snap, logger, setID)
		if err != nil {
			onChange(nil, fmt.Errorf("decode %s: %w", p, err))
			return
		}
		onChange(items, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", p, err)
	}
	return sub, nil
}
