package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisKeyNamespace = "proanbud"
	redisChangeTopic  = "changes"
	redisScanCount    = 200
)

// RedisCommands is the subset of the go-redis client the store uses
type RedisCommands interface {
	Ping(context.Context) *redis.StatusCmd
	HGet(context.Context, string, string) *redis.StringCmd
	HGetAll(context.Context, string) *redis.MapStringStringCmd
	HSet(context.Context, string, ...any) *redis.IntCmd
	HDel(context.Context, string, ...string) *redis.IntCmd
	Del(context.Context, ...string) *redis.IntCmd
	Scan(context.Context, uint64, string, int64) *redis.ScanCmd
	Publish(context.Context, string, any) *redis.IntCmd
}

// RedisOptions configures the Redis backend
type RedisOptions struct {
	URL          string
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore keeps every collection in one hash keyed by document id. Changes are
// announced on a pub/sub channel so that every API instance can notify its own
// subscribers.
type RedisStore struct {
	store  RedisCommands
	raw    *redis.Client
	pubsub *redis.PubSub
	logger *zap.Logger
	hub    *hub
	origin string
	now    func() time.Time
	stop   context.CancelFunc
	done   chan struct{}
}

type redisChange struct {
	change
	Origin string `json:"origin"`
}

// NewRedisStore connects to Redis, verifies connectivity and starts listening for
// changes made by other instances.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	options, err := redisOptions(opts)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(options)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", classifyRedisError(err))
	}

	s := newRedisStore(raw, logger)
	s.raw = raw
	s.pubsub = raw.Subscribe(ctx, s.channel())
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		_ = raw.Close()
		return nil, fmt.Errorf("subscribe to redis changes: %w", classifyRedisError(err))
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})
	go s.listen(listenCtx)
	return s, nil
}

// NewRedisStoreFromCommands builds a store over an existing command client. Only
// changes made through this store reach its subscribers.
func NewRedisStoreFromCommands(cmd RedisCommands, logger *zap.Logger) *RedisStore {
	return newRedisStore(cmd, logger)
}

func newRedisStore(cmd RedisCommands, logger *zap.Logger) *RedisStore {
	s := &RedisStore{
		store:  cmd,
		logger: logger,
		origin: uuid.NewString(),
		now:    time.Now,
	}
	s.hub = newHub(logger, s.Read)
	return s
}

func redisOptions(cfg RedisOptions) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.Password == "" {
		opts.Password = cfg.Password
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx).Err(); err != nil {
		return classifyRedisError(err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, p Path) (Snapshot, error) {
	if err := p.Validate(); err != nil {
		return Snapshot{}, err
	}
	if p.IsCollection() {
		fields, err := s.store.HGetAll(ctx, s.key(p)).Result()
		if err != nil {
			return Snapshot{}, classifyRedisError(err)
		}
		if len(fields) == 0 {
			return Snapshot{Path: p}, nil
		}
		children := make(map[string]json.RawMessage, len(fields))
		for id, doc := range fields {
			children[id] = json.RawMessage(doc)
		}
		raw, err := json.Marshal(children)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrInvalidData, p, err)
		}
		return Snapshot{Path: p, Raw: raw}, nil
	}

	doc, err := s.store.HGet(ctx, s.key(p.Parent()), p.ID()).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{Path: p}, nil
	}
	if err != nil {
		return Snapshot{}, classifyRedisError(err)
	}
	return Snapshot{Path: p, Raw: json.RawMessage(doc)}, nil
}

func (s *RedisStore) Write(ctx context.Context, p Path, value any) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.resolver()

	if p.IsCollection() {
		docs, err := toCollection(value, now)
		if err != nil {
			return err
		}
		if err := s.removeTree(ctx, p); err != nil {
			return err
		}
		if len(docs) > 0 {
			args := make([]any, 0, 2*len(docs))
			for id, doc := range docs {
				raw, err := json.Marshal(doc)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrInvalidData, err)
				}
				args = append(args, id, string(raw))
			}
			if err := s.store.HSet(ctx, s.key(p), args...).Err(); err != nil {
				return classifyRedisError(err)
			}
		}
		return s.announce(ctx, change{Path: p, Subtree: true})
	}

	doc, err := toDocument(value, now)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := s.store.HSet(ctx, s.key(p.Parent()), p.ID(), string(raw)).Err(); err != nil {
		return classifyRedisError(err)
	}
	return s.announce(ctx, change{Path: p})
}

// Patch reads, merges and writes back the document. Concurrent patches of the
// same document may overwrite each other's fields.
func (s *RedisStore) Patch(ctx context.Context, p Path, fields map[string]any) error {
	if err := requireDocument(p); err != nil {
		return err
	}
	prepared, err := patchFields(fields, s.resolver())
	if err != nil {
		return err
	}

	var doc map[string]any
	current, err := s.store.HGet(ctx, s.key(p.Parent()), p.ID()).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return classifyRedisError(err)
	default:
		if err := decodeDocument([]byte(current), &doc); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidData, p, err)
		}
	}

	raw, err := json.Marshal(mergeFields(doc, prepared))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := s.store.HSet(ctx, s.key(p.Parent()), p.ID(), string(raw)).Err(); err != nil {
		return classifyRedisError(err)
	}
	return s.announce(ctx, change{Path: p})
}

func (s *RedisStore) Remove(ctx context.Context, p Path) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if !p.IsCollection() {
		if err := s.store.HDel(ctx, s.key(p.Parent()), p.ID()).Err(); err != nil {
			return classifyRedisError(err)
		}
	}
	if err := s.removeTree(ctx, p); err != nil {
		return err
	}
	return s.announce(ctx, change{Path: p, Subtree: true})
}

// removeTree deletes the collection hash at p (if p is a collection) and every
// collection hash below p.
func (s *RedisStore) removeTree(ctx context.Context, p Path) error {
	keys := []string{}
	if p.IsCollection() {
		keys = append(keys, s.key(p))
	}
	var cursor uint64
	for {
		batch, next, err := s.store.Scan(ctx, cursor, s.key(p)+"/*", redisScanCount).Result()
		if err != nil {
			return classifyRedisError(err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			break
		}
		cursor = next
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.store.Del(ctx, keys...).Err(); err != nil {
		return classifyRedisError(err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, p Path, onChange func(Snapshot)) (Subscription, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, p, onChange), nil
}

func (s *RedisStore) GenerateID(Path) string {
	return uuid.NewString()
}

func (s *RedisStore) Close() error {
	s.hub.closeAll()
	if s.stop != nil {
		s.stop()
	}
	var errs []error
	if s.pubsub != nil {
		errs = append(errs, s.pubsub.Close())
	}
	if s.done != nil {
		<-s.done
	}
	if s.raw != nil {
		errs = append(errs, s.raw.Close())
	}
	return errors.Join(errs...)
}

// announce notifies local subscribers and publishes the change for other instances
func (s *RedisStore) announce(ctx context.Context, c change) error {
	s.hub.publish(c)
	msg, err := json.Marshal(redisChange{change: c, Origin: s.origin})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := s.store.Publish(ctx, s.channel(), string(msg)).Err(); err != nil {
		s.logger.Warn("failed to publish change",
			zap.String("path", c.Path.String()),
			zap.Error(err))
	}
	return nil
}

func (s *RedisStore) listen(ctx context.Context) {
	defer close(s.done)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(msg.Payload)
		}
	}
}

func (s *RedisStore) handleMessage(payload string) {
	var rc redisChange
	if err := json.Unmarshal([]byte(payload), &rc); err != nil {
		s.logger.Warn("ignoring malformed change message", zap.Error(err))
		return
	}
	if rc.Origin == s.origin {
		return
	}
	if err := rc.Path.Validate(); err != nil {
		s.logger.Warn("ignoring change for invalid path", zap.Error(err))
		return
	}
	s.hub.publish(rc.change)
}

func (s *RedisStore) key(p Path) string {
	return redisKeyNamespace + ":" + p.String()
}

func (s *RedisStore) channel() string {
	return redisKeyNamespace + ":" + redisChangeTopic
}

func (s *RedisStore) resolver() func() any {
	ms := s.now().UnixMilli()
	return func() any { return ms }
}

func decodeDocument(raw []byte, doc *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(doc)
}

func classifyRedisError(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr), errors.Is(err, redis.ErrClosed):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case strings.HasPrefix(err.Error(), "NOAUTH"), strings.HasPrefix(err.Error(), "NOPERM"), strings.HasPrefix(err.Error(), "WRONGPASS"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return err
	}
}
