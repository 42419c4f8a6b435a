// Package docstore defines the hierarchical document store the API persists to and
// the backends that implement it.
//
// A Path alternates collection and document segments. A path with an odd number of
// segments names a collection whose value is an object mapping document ids to
// documents; an even number of segments names a single document. Documents are JSON
// objects.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable is returned when the backend cannot be reached
	ErrUnavailable = errors.New("document store unavailable")
	// ErrPermissionDenied is returned when the backend refuses the operation
	ErrPermissionDenied = errors.New("document store permission denied")
	// ErrInvalidData is returned for malformed paths or values
	ErrInvalidData = errors.New("invalid document data")
)

// Store is a hierarchical document store with change subscriptions
type Store interface {
	// Ping verifies that the backend is reachable
	Ping(ctx context.Context) error
	// Read returns the current value at path
	Read(ctx context.Context, path Path) (Snapshot, error)
	// Write replaces the value at path
	Write(ctx context.Context, path Path, value any) error
	// Patch merges fields into the document at path. A nil field value removes the field.
	Patch(ctx context.Context, path Path, fields map[string]any) error
	// Remove deletes the node at path and everything below it
	Remove(ctx context.Context, path Path) error
	// Subscribe calls onChange with the current value and again after every change.
	// Callbacks for one subscription are never run concurrently.
	Subscribe(ctx context.Context, path Path, onChange func(Snapshot)) (Subscription, error)
	// GenerateID returns a new unique document id for the collection at path
	GenerateID(path Path) string
	Close() error
}

// Subscription is an open change feed
type Subscription interface {
	// Unsubscribe stops delivery. No callback runs after it returns.
	Unsubscribe()
}

// Path addresses a node in the store
type Path []string

// NewPath builds a path from segments
func NewPath(segments ...string) Path {
	return Path(segments)
}

// ParsePath splits a slash separated path
func ParsePath(s string) (Path, error) {
	p := Path(strings.Split(strings.Trim(s, "/"), "/"))
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects empty paths and segments that cannot be stored
func (p Path) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidData)
	}
	for _, s := range p {
		if s == "" || strings.ContainsAny(s, "/\x00") || s == "." || s == ".." {
			return fmt.Errorf("%w: invalid path segment %q in %q", ErrInvalidData, s, p.String())
		}
	}
	return nil
}

// IsCollection reports whether the path names a collection
func (p Path) IsCollection() bool {
	return len(p)%2 == 1
}

// Child appends segments to a copy of p
func (p Path) Child(segments ...string) Path {
	out := make(Path, 0, len(p)+len(segments))
	out = append(out, p...)
	return append(out, segments...)
}

// Parent returns the path without its last segment
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[: len(p)-1 : len(p)-1]
}

// ID returns the last segment
func (p Path) ID() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// HasPrefix reports whether prefix is p or an ancestor of p
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal compares two paths segment by segment
func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

// Snapshot is the value of a node at one point in time
type Snapshot struct {
	Path Path
	// Raw holds the JSON value, nil when nothing exists at Path
	Raw json.RawMessage
}

// Exists reports whether a value was present
func (s Snapshot) Exists() bool {
	return len(s.Raw) > 0 && !bytes.Equal(s.Raw, []byte("null"))
}

// Decode unmarshals the value into v
func (s Snapshot) Decode(v any) error {
	if !s.Exists() {
		return fmt.Errorf("%w: no value at %s", ErrInvalidData, s.Path)
	}
	if err := json.Unmarshal(s.Raw, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrInvalidData, s.Path, err)
	}
	return nil
}

// Children splits a collection value into its documents. A missing collection
// has no children.
func (s Snapshot) Children() (map[string]json.RawMessage, error) {
	if !s.Exists() {
		return map[string]json.RawMessage{}, nil
	}
	var children map[string]json.RawMessage
	if err := json.Unmarshal(s.Raw, &children); err != nil {
		return nil, fmt.Errorf("%w: %s is not a collection: %v", ErrInvalidData, s.Path, err)
	}
	return children, nil
}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the write time in unix milliseconds when stored
var ServerTimestamp any = serverTimestamp{}

var serverTimestampJSON = []byte(`{".sv":"timestamp"}`)

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return serverTimestampJSON, nil
}

// IsServerTimestamp reports whether a decoded value is the timestamp placeholder
func IsServerTimestamp(v any) bool {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return false
	}
	return m[".sv"] == "timestamp"
}

// toDocument converts value into a generic JSON object, replacing every
// ServerTimestamp placeholder with resolve(). Numbers are kept as json.Number.
func toDocument(value any, resolve func() any) (map[string]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return nil, fmt.Errorf("%w: documents must be JSON objects", ErrInvalidData)
	}
	for k, v := range doc {
		doc[k] = resolvePlaceholders(v, resolve)
	}
	return doc, nil
}

// toCollection converts a collection value (id to document) into documents
func toCollection(value any, resolve func() any) (map[string]map[string]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	var children map[string]json.RawMessage
	if err := json.Unmarshal(raw, &children); err != nil {
		return nil, fmt.Errorf("%w: collections must be JSON objects", ErrInvalidData)
	}
	out := make(map[string]map[string]any, len(children))
	for id, child := range children {
		doc, err := toDocument(child, resolve)
		if err != nil {
			return nil, err
		}
		out[id] = doc
	}
	return out, nil
}

// patchFields prepares a Patch field map; nil values stay nil to mark removal
func patchFields(fields map[string]any, resolve func() any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "" || strings.ContainsAny(k, "/.") {
			return nil, fmt.Errorf("%w: invalid field name %q", ErrInvalidData, k)
		}
		if v == nil {
			out[k] = nil
			continue
		}
		wrapped, err := toDocument(map[string]any{"v": v}, resolve)
		if err != nil {
			return nil, err
		}
		out[k] = wrapped["v"]
	}
	return out, nil
}

// mergeFields applies prepared patch fields onto doc
func mergeFields(doc, fields map[string]any) map[string]any {
	if doc == nil {
		doc = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	return doc
}

func resolvePlaceholders(v any, resolve func() any) any {
	switch t := v.(type) {
	case map[string]any:
		if IsServerTimestamp(t) {
			return resolve()
		}
		for k, child := range t {
			t[k] = resolvePlaceholders(child, resolve)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = resolvePlaceholders(child, resolve)
		}
		return t
	default:
		return v
	}
}

func requireDocument(p Path) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.IsCollection() {
		return fmt.Errorf("%w: %s is a collection, not a document", ErrInvalidData, p)
	}
	return nil
}

func requireCollection(p Path) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !p.IsCollection() {
		return fmt.Errorf("%w: %s is a document, not a collection", ErrInvalidData, p)
	}
	return nil
}
