package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemoryStore keeps documents in process memory. It backs tests and single-node
// development setups.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]any
	now    func() time.Time
	hub    *hub
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	s := &MemoryStore{
		docs: make(map[string]map[string]any),
		now:  time.Now,
	}
	s.hub = newHub(logger, s.Read)
	return s
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", ErrUnavailable)
	}
	return ctx.Err()
}

func (s *MemoryStore) Read(ctx context.Context, p Path) (Snapshot, error) {
	if err := p.Validate(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, fmt.Errorf("%w: store closed", ErrUnavailable)
	}

	var value any
	if p.IsCollection() {
		children := make(map[string]any)
		prefix := p.String() + "/"
		for key, doc := range s.docs {
			rest, ok := strings.CutPrefix(key, prefix)
			if ok && !strings.Contains(rest, "/") {
				children[rest] = doc
			}
		}
		if len(children) == 0 {
			return Snapshot{Path: p}, nil
		}
		value = children
	} else {
		doc, ok := s.docs[p.String()]
		if !ok {
			return Snapshot{Path: p}, nil
		}
		value = doc
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return Snapshot{Path: p, Raw: raw}, nil
}

func (s *MemoryStore) Write(ctx context.Context, p Path, value any) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.resolver()

	var c change
	if p.IsCollection() {
		docs, err := toCollection(value, now)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return fmt.Errorf("%w: store closed", ErrUnavailable)
		}
		s.removeLocked(p)
		for id, doc := range docs {
			s.docs[p.Child(id).String()] = doc
		}
		s.mu.Unlock()
		c = change{Path: p, Subtree: true}
	} else {
		doc, err := toDocument(value, now)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return fmt.Errorf("%w: store closed", ErrUnavailable)
		}
		s.docs[p.String()] = doc
		s.mu.Unlock()
		c = change{Path: p}
	}
	s.hub.publish(c)
	return nil
}

func (s *MemoryStore) Patch(ctx context.Context, p Path, fields map[string]any) error {
	if err := requireDocument(p); err != nil {
		return err
	}
	prepared, err := patchFields(fields, s.resolver())
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: store closed", ErrUnavailable)
	}
	key := p.String()
	s.docs[key] = mergeFields(s.docs[key], prepared)
	s.mu.Unlock()
	s.hub.publish(change{Path: p})
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, p Path) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: store closed", ErrUnavailable)
	}
	s.removeLocked(p)
	s.mu.Unlock()
	s.hub.publish(change{Path: p, Subtree: true})
	return nil
}

func (s *MemoryStore) removeLocked(p Path) {
	key := p.String()
	prefix := key + "/"
	for k := range s.docs {
		if k == key || strings.HasPrefix(k, prefix) {
			delete(s.docs, k)
		}
	}
}

func (s *MemoryStore) Subscribe(ctx context.Context, p Path, onChange func(Snapshot)) (Subscription, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, p, onChange), nil
}

func (s *MemoryStore) GenerateID(Path) string {
	return uuid.NewString()
}

// Close stops every subscription; later calls fail with ErrUnavailable
func (s *MemoryStore) Close() error {
	s.hub.closeAll()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Paths lists every stored document path in order, mainly for debugging and tests
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for k := range s.docs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) resolver() func() any {
	ms := s.now().UnixMilli()
	return func() any { return ms }
}
