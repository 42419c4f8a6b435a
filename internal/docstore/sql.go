package docstore

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultNotifyChannel is the postgres channel used for change notifications
const DefaultNotifyChannel = "proanbud_changes"

// Document is one stored document row
type Document struct {
	Collection string    `gorm:"primaryKey;size:512"`
	ID         string    `gorm:"primaryKey;size:255"`
	Data       string    `gorm:"type:text;not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName pins the table created by the migrations
func (Document) TableName() string {
	return "documents"
}

// SQLOptions configures the SQL backend
type SQLOptions struct {
	// ListenDSN enables LISTEN/NOTIFY change feeds on postgres. Without it only
	// changes made through this process reach subscribers.
	ListenDSN string
	Channel   string
}

// SQLStore keeps documents in a single table keyed by collection path and id. It
// runs on postgres in production and sqlite in tests and local development.
type SQLStore struct {
	db       *gorm.DB
	logger   *zap.Logger
	hub      *hub
	origin   string
	channel  string
	listener *pq.Listener
	now      func() time.Time
	stop     context.CancelFunc
	done     chan struct{}
	// closeDB is set when the store owns the connection
	closeDB func() error
}

type sqlChange struct {
	change
	Origin string `json:"origin"`
}

// NewSQLStore wraps an open gorm connection. On postgres with a ListenDSN it also
// listens for changes committed by other instances.
func NewSQLStore(db *gorm.DB, opts SQLOptions, logger *zap.Logger) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		logger:  logger,
		origin:  uuid.NewString(),
		channel: opts.Channel,
		now:     time.Now,
	}
	if s.channel == "" {
		s.channel = DefaultNotifyChannel
	}
	s.hub = newHub(logger, s.Read)

	if opts.ListenDSN != "" && s.isPostgres() {
		listener := pq.NewListener(opts.ListenDSN, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
			}
		})
		if err := listener.Listen(s.channel); err != nil {
			_ = listener.Close()
			return nil, fmt.Errorf("failed to listen on %s: %w", s.channel, classifySQLError(err))
		}
		s.listener = listener
		ctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		s.done = make(chan struct{})
		go s.listen(ctx)
	}
	return s, nil
}

func (s *SQLStore) isPostgres() bool {
	return s.db.Dialector.Name() == "postgres"
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return classifySQLError(err)
	}
	return nil
}

func (s *SQLStore) Read(ctx context.Context, p Path) (Snapshot, error) {
	if err := p.Validate(); err != nil {
		return Snapshot{}, err
	}
	var rows []Document
	q := s.db.WithContext(ctx)
	if p.IsCollection() {
		q = q.Where("collection = ?", p.String())
	} else {
		q = q.Where("collection = ? AND id = ?", p.Parent().String(), p.ID()).Limit(1)
	}
	if err := q.Find(&rows).Error; err != nil {
		return Snapshot{}, classifySQLError(err)
	}
	if len(rows) == 0 {
		return Snapshot{Path: p}, nil
	}
	if !p.IsCollection() {
		return Snapshot{Path: p, Raw: json.RawMessage(rows[0].Data)}, nil
	}

	children := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		children[row.ID] = json.RawMessage(row.Data)
	}
	raw, err := json.Marshal(children)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrInvalidData, p, err)
	}
	return Snapshot{Path: p, Raw: raw}, nil
}

func (s *SQLStore) Write(ctx context.Context, p Path, value any) error {
	if err := p.Validate(); err != nil {
		return err
	}
	now := s.now()
	resolve := func() any { return now.UnixMilli() }

	if p.IsCollection() {
		docs, err := toCollection(value, resolve)
		if err != nil {
			return err
		}
		rows := make([]Document, 0, len(docs))
		for id, doc := range docs {
			raw, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidData, err)
			}
			rows = append(rows, Document{Collection: p.String(), ID: id, Data: string(raw), UpdatedAt: now})
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := deleteTree(tx, p); err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			return tx.Create(&rows).Error
		})
		if err != nil {
			return classifySQLError(err)
		}
		s.announce(ctx, change{Path: p, Subtree: true})
		return nil
	}

	doc, err := toDocument(value, resolve)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := upsert(s.db.WithContext(ctx), Document{Collection: p.Parent().String(), ID: p.ID(), Data: string(raw), UpdatedAt: now}); err != nil {
		return classifySQLError(err)
	}
	s.announce(ctx, change{Path: p})
	return nil
}

func (s *SQLStore) Patch(ctx context.Context, p Path, fields map[string]any) error {
	if err := requireDocument(p); err != nil {
		return err
	}
	now := s.now()
	prepared, err := patchFields(fields, func() any { return now.UnixMilli() })
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("collection = ? AND id = ?", p.Parent().String(), p.ID()).Limit(1)
		if s.isPostgres() {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var rows []Document
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		var doc map[string]any
		if len(rows) > 0 {
			if err := decodeDocument([]byte(rows[0].Data), &doc); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidData, p, err)
			}
		}
		raw, err := json.Marshal(mergeFields(doc, prepared))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		return upsert(tx, Document{Collection: p.Parent().String(), ID: p.ID(), Data: string(raw), UpdatedAt: now})
	})
	if err != nil {
		return classifySQLError(err)
	}
	s.announce(ctx, change{Path: p})
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, p Path) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := deleteTree(s.db.WithContext(ctx), p); err != nil {
		return classifySQLError(err)
	}
	s.announce(ctx, change{Path: p, Subtree: true})
	return nil
}

func upsert(tx *gorm.DB, row Document) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
}

// deleteTree removes the node at p and every collection below it
func deleteTree(tx *gorm.DB, p Path) error {
	below := p.String() + "/"
	n := utf8.RuneCountInString(below)
	if p.IsCollection() {
		return tx.Where("collection = ? OR substr(collection, 1, ?) = ?", p.String(), n, below).
			Delete(&Document{}).Error
	}
	return tx.Where("(collection = ? AND id = ?) OR substr(collection, 1, ?) = ?", p.Parent().String(), p.ID(), n, below).
		Delete(&Document{}).Error
}

func (s *SQLStore) Subscribe(ctx context.Context, p Path, onChange func(Snapshot)) (Subscription, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return s.hub.subscribe(ctx, p, onChange), nil
}

func (s *SQLStore) GenerateID(Path) string {
	return uuid.NewString()
}

// Close stops subscriptions and the change listener. The gorm connection is only
// closed when the store was created by Open.
func (s *SQLStore) Close() error {
	s.hub.closeAll()
	var errs []error
	if s.stop != nil {
		s.stop()
		errs = append(errs, s.listener.Close())
		<-s.done
	}
	if s.closeDB != nil {
		errs = append(errs, s.closeDB())
	}
	return errors.Join(errs...)
}

// announce notifies local subscribers and, on postgres, other instances
func (s *SQLStore) announce(ctx context.Context, c change) {
	s.hub.publish(c)
	if !s.isPostgres() {
		return
	}
	payload, err := json.Marshal(sqlChange{change: c, Origin: s.origin})
	if err != nil {
		s.logger.Warn("failed to encode change", zap.Error(err))
		return
	}
	if err := s.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", s.channel, string(payload)).Error; err != nil {
		s.logger.Warn("failed to notify change",
			zap.String("path", c.Path.String()),
			zap.Error(err))
	}
}

func (s *SQLStore) listen(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// reconnected; notifications may have been missed
				s.hub.publish(change{Path: Path{}, Subtree: true})
				continue
			}
			var sc sqlChange
			if err := json.Unmarshal([]byte(n.Extra), &sc); err != nil {
				s.logger.Warn("ignoring malformed change notification", zap.Error(err))
				continue
			}
			if sc.Origin == s.origin {
				continue
			}
			s.hub.publish(sc.change)
		case <-time.After(90 * time.Second):
			go func() {
				if err := s.listener.Ping(); err != nil {
					s.logger.Warn("postgres listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func classifySQLError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidData) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrPermissionDenied) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	code := ""
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	}
	switch {
	case code == "42501" || strings.HasPrefix(code, "28"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.HasPrefix(code, "08") || strings.HasPrefix(code, "57P"):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case strings.HasPrefix(code, "22") || strings.HasPrefix(code, "23"):
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return err
}
