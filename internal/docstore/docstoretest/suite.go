// Package docstoretest holds the behaviour every docstore backend must share
package docstoretest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// Run exercises a fresh store from newStore in every subtest
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s docstore.Store)
	}{
		{"DocumentRoundTrip", testDocumentRoundTrip},
		{"MissingValues", testMissingValues},
		{"CollectionChildren", testCollectionChildren},
		{"PatchMerges", testPatchMerges},
		{"ServerTimestamp", testServerTimestamp},
		{"RemoveSubtree", testRemoveSubtree},
		{"WriteCollectionReplaces", testWriteCollectionReplaces},
		{"InvalidInput", testInvalidInput},
		{"GenerateID", testGenerateID},
		{"SubscribeCollection", testSubscribeCollection},
		{"SubscribeDocument", testSubscribeDocument},
		{"UnsubscribeStopsDelivery", testUnsubscribeStopsDelivery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

type quoteDoc struct {
	Project string `json:"project"`
	Amount  int64  `json:"amount"`
	Status  string `json:"status"`
	Notes   string `json:"notes,omitempty"`
}

func quotes(account string) docstore.Path {
	return docstore.NewPath("accounts", account, "quotes")
}

func testDocumentRoundTrip(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	p := quotes("a1").Child("q1")
	in := quoteDoc{Project: "Nytt bad", Amount: 9007199254740993, Status: "pending"}

	require.NoError(t, s.Write(ctx, p, in))

	snap, err := s.Read(ctx, p)
	require.NoError(t, err)
	require.True(t, snap.Exists())
	var out quoteDoc
	require.NoError(t, snap.Decode(&out))
	assert.Equal(t, in, out)
}

func testMissingValues(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	doc, err := s.Read(ctx, quotes("nobody").Child("nothing"))
	require.NoError(t, err)
	assert.False(t, doc.Exists())

	coll, err := s.Read(ctx, quotes("nobody"))
	require.NoError(t, err)
	assert.False(t, coll.Exists())
	children, err := coll.Children()
	require.NoError(t, err)
	assert.Empty(t, children)
}

func testCollectionChildren(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, quotes("a1").Child("q1"), quoteDoc{Project: "A", Amount: 1}))
	require.NoError(t, s.Write(ctx, quotes("a1").Child("q2"), quoteDoc{Project: "B", Amount: 2}))
	require.NoError(t, s.Write(ctx, quotes("a2").Child("q3"), quoteDoc{Project: "C", Amount: 3}))
	require.NoError(t, s.Write(ctx, docstore.NewPath("accounts", "a1"), map[string]any{"createdAt": 1}))

	snap, err := s.Read(ctx, quotes("a1"))
	require.NoError(t, err)
	children, err := snap.Children()
	require.NoError(t, err)
	require.Len(t, children, 2)

	var q2 quoteDoc
	require.NoError(t, json.Unmarshal(children["q2"], &q2))
	assert.Equal(t, "B", q2.Project)

	accounts, err := s.Read(ctx, docstore.NewPath("accounts"))
	require.NoError(t, err)
	accountDocs, err := accounts.Children()
	require.NoError(t, err)
	assert.Len(t, accountDocs, 1, "only documents written directly into the collection are children")
}

func testPatchMerges(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	p := quotes("a1").Child("q1")
	require.NoError(t, s.Write(ctx, p, quoteDoc{Project: "A", Amount: 100, Status: "pending", Notes: "ring først"}))

	require.NoError(t, s.Patch(ctx, p, map[string]any{"status": "won", "notes": nil}))

	var out quoteDoc
	snap, err := s.Read(ctx, p)
	require.NoError(t, err)
	require.NoError(t, snap.Decode(&out))
	assert.Equal(t, quoteDoc{Project: "A", Amount: 100, Status: "won"}, out)

	created := docstore.NewPath("accounts", "a9")
	require.NoError(t, s.Patch(ctx, created, map[string]any{"lastLogin": 5}))
	snap, err = s.Read(ctx, created)
	require.NoError(t, err)
	assert.True(t, snap.Exists(), "patching a missing document creates it")
}

func testServerTimestamp(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	p := docstore.NewPath("accounts", "a1")
	before := time.Now().Add(-time.Second).UnixMilli()

	require.NoError(t, s.Write(ctx, p, map[string]any{"createdAt": docstore.ServerTimestamp}))
	require.NoError(t, s.Patch(ctx, p, map[string]any{"lastLogin": docstore.ServerTimestamp}))

	after := time.Now().Add(time.Second).UnixMilli()
	var out struct {
		CreatedAt int64 `json:"createdAt"`
		LastLogin int64 `json:"lastLogin"`
	}
	snap, err := s.Read(ctx, p)
	require.NoError(t, err)
	require.NoError(t, snap.Decode(&out))
	assert.GreaterOrEqual(t, out.CreatedAt, before)
	assert.LessOrEqual(t, out.CreatedAt, after)
	assert.GreaterOrEqual(t, out.LastLogin, out.CreatedAt)
}

func testRemoveSubtree(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	account := docstore.NewPath("accounts", "a1")
	require.NoError(t, s.Write(ctx, account, map[string]any{"createdAt": 1}))
	require.NoError(t, s.Write(ctx, quotes("a1").Child("q1"), quoteDoc{Project: "A"}))
	require.NoError(t, s.Write(ctx, quotes("a10").Child("q1"), quoteDoc{Project: "other account"}))

	require.NoError(t, s.Remove(ctx, quotes("a1").Child("q1")))
	snap, err := s.Read(ctx, quotes("a1").Child("q1"))
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	require.NoError(t, s.Write(ctx, quotes("a1").Child("q2"), quoteDoc{Project: "B"}))
	require.NoError(t, s.Remove(ctx, account))

	snap, err = s.Read(ctx, account)
	require.NoError(t, err)
	assert.False(t, snap.Exists())
	snap, err = s.Read(ctx, quotes("a1"))
	require.NoError(t, err)
	assert.False(t, snap.Exists(), "removing a document removes its subcollections")

	snap, err = s.Read(ctx, quotes("a10").Child("q1"))
	require.NoError(t, err)
	assert.True(t, snap.Exists(), "siblings sharing a name prefix survive")
}

func testWriteCollectionReplaces(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, quotes("a1").Child("old"), quoteDoc{Project: "old"}))

	require.NoError(t, s.Write(ctx, quotes("a1"), map[string]quoteDoc{
		"n1": {Project: "new 1"},
		"n2": {Project: "new 2"},
	}))

	snap, err := s.Read(ctx, quotes("a1"))
	require.NoError(t, err)
	children, err := snap.Children()
	require.NoError(t, err)
	assert.Len(t, children, 2)
	assert.NotContains(t, children, "old")
}

func testInvalidInput(t *testing.T, s docstore.Store) {
	ctx := context.Background()

	_, err := s.Read(ctx, docstore.NewPath())
	assert.True(t, errors.Is(err, docstore.ErrInvalidData))

	_, err = s.Read(ctx, docstore.NewPath("accounts", "", "quotes"))
	assert.True(t, errors.Is(err, docstore.ErrInvalidData))

	err = s.Patch(ctx, quotes("a1"), map[string]any{"x": 1})
	assert.True(t, errors.Is(err, docstore.ErrInvalidData), "patching a collection is rejected")

	err = s.Write(ctx, quotes("a1").Child("q1"), []int{1, 2})
	assert.True(t, errors.Is(err, docstore.ErrInvalidData), "documents must be objects")
}

func testGenerateID(t *testing.T, s docstore.Store) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := s.GenerateID(quotes("a1"))
		require.NotEmpty(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}

// recorder collects snapshots delivered to a subscription
type recorder struct {
	mu    sync.Mutex
	snaps []docstore.Snapshot
}

func (r *recorder) record(s docstore.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() docstore.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return docstore.Snapshot{}
	}
	return r.snaps[len(r.snaps)-1]
}

func childCount(snap docstore.Snapshot) int {
	children, err := snap.Children()
	if err != nil {
		return -1
	}
	return len(children)
}

func testSubscribeCollection(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, quotes("a1").Child("q1"), quoteDoc{Project: "A"}))

	rec := &recorder{}
	sub, err := s.Subscribe(ctx, quotes("a1"), rec.record)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, waitFor, 10*time.Millisecond,
		"current value is delivered on subscribe")
	assert.Equal(t, 1, childCount(rec.last()))

	require.NoError(t, s.Write(ctx, quotes("a1").Child("q2"), quoteDoc{Project: "B"}))
	require.Eventually(t, func() bool { return childCount(rec.last()) == 2 }, waitFor, 10*time.Millisecond)

	require.NoError(t, s.Remove(ctx, quotes("a1").Child("q1")))
	require.Eventually(t, func() bool { return childCount(rec.last()) == 1 }, waitFor, 10*time.Millisecond)
}

func testSubscribeDocument(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	p := docstore.NewPath("accounts", "a1", "meta", "analytics")

	rec := &recorder{}
	sub, err := s.Subscribe(ctx, p, rec.record)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return rec.count() >= 1 }, waitFor, 10*time.Millisecond)
	assert.False(t, rec.last().Exists())

	require.NoError(t, s.Write(ctx, p, map[string]any{"totalQuotes": 3}))
	require.Eventually(t, func() bool { return rec.last().Exists() }, waitFor, 10*time.Millisecond)

	require.NoError(t, s.Remove(ctx, docstore.NewPath("accounts", "a1")))
	require.Eventually(t, func() bool { return !rec.last().Exists() }, waitFor, 10*time.Millisecond,
		"removing an ancestor notifies document subscribers")
}

func testUnsubscribeStopsDelivery(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	rec := &recorder{}
	sub, err := s.Subscribe(ctx, quotes("a1"), rec.record)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() >= 1 }, waitFor, 10*time.Millisecond)

	sub.Unsubscribe()
	sub.Unsubscribe()
	delivered := rec.count()

	require.NoError(t, s.Write(ctx, quotes("a1").Child("q1"), quoteDoc{Project: "A"}))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, delivered, rec.count())
}
