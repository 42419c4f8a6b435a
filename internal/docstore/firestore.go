package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const firestoreHealthCollection = "_health"

// FirestoreOptions configures the Firestore backend
type FirestoreOptions struct {
	ProjectID       string
	DatabaseID      string
	CredentialsFile string
	CredentialsJSON string
}

// FirestoreStore maps store paths one to one onto Firestore collections and
// documents. Server timestamps are stored as Firestore timestamps and read back as
// unix milliseconds.
type FirestoreStore struct {
	client *firestore.Client
	logger *zap.Logger
}

// NewFirestoreStore opens a Firestore client for the configured project
func NewFirestoreStore(ctx context.Context, opts FirestoreOptions, logger *zap.Logger) (*FirestoreStore, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("firestore project id is required")
	}
	var clientOpts []option.ClientOption
	switch {
	case opts.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(opts.CredentialsJSON)))
	case opts.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	databaseID := opts.DatabaseID
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, opts.ProjectID, databaseID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", classifyFirestoreError(err))
	}
	return &FirestoreStore{client: client, logger: logger}, nil
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection(firestoreHealthCollection).Doc("ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return classifyFirestoreError(err)
	}
	return nil
}

func (s *FirestoreStore) Read(ctx context.Context, p Path) (Snapshot, error) {
	if err := p.Validate(); err != nil {
		return Snapshot{}, err
	}
	if p.IsCollection() {
		docs, err := s.client.Collection(p.String()).Documents(ctx).GetAll()
		if err != nil {
			return Snapshot{}, classifyFirestoreError(err)
		}
		return collectionSnapshot(p, docs)
	}

	doc, err := s.client.Doc(p.String()).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Snapshot{Path: p}, nil
	}
	if err != nil {
		return Snapshot{}, classifyFirestoreError(err)
	}
	return documentSnapshot(p, doc)
}

func (s *FirestoreStore) Write(ctx context.Context, p Path, value any) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.IsCollection() {
		docs, err := toCollection(value, firestoreTimestamp)
		if err != nil {
			return err
		}
		if err := s.deleteCollection(ctx, s.client.Collection(p.String())); err != nil {
			return err
		}
		coll := s.client.Collection(p.String())
		for id, doc := range docs {
			if _, err := coll.Doc(id).Set(ctx, fromJSONNumbers(doc)); err != nil {
				return classifyFirestoreError(err)
			}
		}
		return nil
	}

	doc, err := toDocument(value, firestoreTimestamp)
	if err != nil {
		return err
	}
	if _, err := s.client.Doc(p.String()).Set(ctx, fromJSONNumbers(doc)); err != nil {
		return classifyFirestoreError(err)
	}
	return nil
}

func (s *FirestoreStore) Patch(ctx context.Context, p Path, fields map[string]any) error {
	if err := requireDocument(p); err != nil {
		return err
	}
	prepared, err := patchFields(fields, firestoreTimestamp)
	if err != nil {
		return err
	}
	data := make(map[string]any, len(prepared))
	for k, v := range prepared {
		if v == nil {
			data[k] = firestore.Delete
			continue
		}
		data[k] = fromJSONNumbers(v)
	}
	if _, err := s.client.Doc(p.String()).Set(ctx, data, firestore.MergeAll); err != nil {
		return classifyFirestoreError(err)
	}
	return nil
}

func (s *FirestoreStore) Remove(ctx context.Context, p Path) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.IsCollection() {
		return s.deleteCollection(ctx, s.client.Collection(p.String()))
	}
	return s.deleteDocument(ctx, s.client.Doc(p.String()))
}

// deleteDocument removes a document together with its subcollections, which
// Firestore would otherwise keep.
func (s *FirestoreStore) deleteDocument(ctx context.Context, doc *firestore.DocumentRef) error {
	colls, err := doc.Collections(ctx).GetAll()
	if err != nil {
		return classifyFirestoreError(err)
	}
	for _, coll := range colls {
		if err := s.deleteCollection(ctx, coll); err != nil {
			return err
		}
	}
	if _, err := doc.Delete(ctx); err != nil {
		return classifyFirestoreError(err)
	}
	return nil
}

func (s *FirestoreStore) deleteCollection(ctx context.Context, coll *firestore.CollectionRef) error {
	refs, err := coll.DocumentRefs(ctx).GetAll()
	if err != nil {
		return classifyFirestoreError(err)
	}
	for _, ref := range refs {
		if err := s.deleteDocument(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

func (s *FirestoreStore) Subscribe(ctx context.Context, p Path, onChange func(Snapshot)) (Subscription, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &firestoreSubscription{cancel: cancel, done: make(chan struct{})}

	if p.IsCollection() {
		it := s.client.Collection(p.String()).Snapshots(ctx)
		go func() {
			defer close(sub.done)
			defer it.Stop()
			for {
				qs, err := it.Next()
				if err != nil {
					s.subscriptionEnded(ctx, p, err)
					return
				}
				docs, err := qs.Documents.GetAll()
				if err != nil {
					s.logger.Warn("failed to read collection snapshot", zap.String("path", p.String()), zap.Error(err))
					continue
				}
				snap, err := collectionSnapshot(p, docs)
				if err != nil {
					s.logger.Warn("failed to convert collection snapshot", zap.String("path", p.String()), zap.Error(err))
					continue
				}
				if ctx.Err() != nil {
					return
				}
				onChange(snap)
			}
		}()
		return sub, nil
	}

	it := s.client.Doc(p.String()).Snapshots(ctx)
	go func() {
		defer close(sub.done)
		defer it.Stop()
		for {
			ds, err := it.Next()
			if err != nil && status.Code(err) != codes.NotFound {
				s.subscriptionEnded(ctx, p, err)
				return
			}
			snap := Snapshot{Path: p}
			if err == nil && ds.Exists() {
				if snap, err = documentSnapshot(p, ds); err != nil {
					s.logger.Warn("failed to convert document snapshot", zap.String("path", p.String()), zap.Error(err))
					continue
				}
			}
			if ctx.Err() != nil {
				return
			}
			onChange(snap)
		}
	}()
	return sub, nil
}

func (s *FirestoreStore) subscriptionEnded(ctx context.Context, p Path, err error) {
	if ctx.Err() != nil || status.Code(err) == codes.Canceled {
		return
	}
	s.logger.Error("firestore subscription ended", zap.String("path", p.String()), zap.Error(err))
}

func (s *FirestoreStore) GenerateID(p Path) string {
	if p.Validate() == nil && p.IsCollection() {
		return s.client.Collection(p.String()).NewDoc().ID
	}
	return uuid.NewString()
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

type firestoreSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (f *firestoreSubscription) Unsubscribe() {
	f.once.Do(func() {
		f.cancel()
		<-f.done
	})
}

func firestoreTimestamp() any {
	return firestore.ServerTimestamp
}

func collectionSnapshot(p Path, docs []*firestore.DocumentSnapshot) (Snapshot, error) {
	if len(docs) == 0 {
		return Snapshot{Path: p}, nil
	}
	children := make(map[string]any, len(docs))
	for _, doc := range docs {
		children[doc.Ref.ID] = toJSONValue(doc.Data())
	}
	raw, err := json.Marshal(children)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrInvalidData, p, err)
	}
	return Snapshot{Path: p, Raw: raw}, nil
}

func documentSnapshot(p Path, doc *firestore.DocumentSnapshot) (Snapshot, error) {
	raw, err := json.Marshal(toJSONValue(doc.Data()))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrInvalidData, p, err)
	}
	return Snapshot{Path: p, Raw: raw}, nil
}

// toJSONValue converts Firestore values into JSON friendly ones
func toJSONValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli()
	case *firestore.DocumentRef:
		if t == nil {
			return nil
		}
		return t.Path
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = toJSONValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = toJSONValue(child)
		}
		return out
	default:
		return v
	}
}

// fromJSONNumbers turns json.Number values into int64 or float64 so Firestore
// stores them as numbers
func fromJSONNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, child := range t {
			t[k] = fromJSONNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = fromJSONNumbers(child)
		}
		return t
	default:
		return v
	}
}

func classifyFirestoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	default:
		return err
	}
}
