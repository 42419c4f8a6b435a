package docstore

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// change describes a mutation at path. subtree marks removals and collection
// rewrites that also affect every node below path.
type change struct {
	Path    Path `json:"path"`
	Subtree bool `json:"subtree,omitempty"`
}

func (c change) affects(p Path) bool {
	if c.Path.Equal(p) {
		return true
	}
	if p.IsCollection() && !c.Path.IsCollection() && c.Path.Parent().Equal(p) {
		return true
	}
	return c.Subtree && p.HasPrefix(c.Path)
}

// hub fans change notifications out to local subscribers. Each subscriber has its
// own goroutine that re-reads the subscribed path, so slow callbacks never block
// writers and notifications that pile up collapse into one delivery.
type hub struct {
	logger *zap.Logger
	read   func(ctx context.Context, p Path) (Snapshot, error)

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newHub(logger *zap.Logger, read func(ctx context.Context, p Path) (Snapshot, error)) *hub {
	return &hub{
		logger: logger,
		read:   read,
		subs:   make(map[*subscriber]struct{}),
	}
}

type subscriber struct {
	hub      *hub
	path     Path
	onChange func(Snapshot)
	notify   chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (h *hub) subscribe(ctx context.Context, p Path, onChange func(Snapshot)) *subscriber {
	ctx, cancel := context.WithCancel(ctx)
	s := &subscriber{
		hub:      h,
		path:     append(Path(nil), p...),
		onChange: onChange,
		notify:   make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	s.notify <- struct{}{}
	go s.run(ctx)
	return s
}

func (h *hub) publish(c change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		if !c.affects(s.path) {
			continue
		}
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// count returns the number of open subscriptions
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (s *subscriber) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}
		snap, err := s.hub.read(ctx, s.path)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.hub.logger.Warn("subscription read failed",
				zap.String("path", s.path.String()),
				zap.Error(err))
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.onChange(snap)
	}
}

// Unsubscribe stops delivery and waits for a running callback to return. It must
// not be called from inside the callback.
func (s *subscriber) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		s.cancel()
		<-s.done
	})
}
