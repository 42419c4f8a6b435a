package docstore_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/proanbud/proanbud-api/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		input   string
		want    docstore.Path
		wantErr bool
	}{
		{input: "accounts/a1/quotes", want: docstore.NewPath("accounts", "a1", "quotes")},
		{input: "/accounts/a1/", want: docstore.NewPath("accounts", "a1")},
		{input: "", wantErr: true},
		{input: "accounts//quotes", wantErr: true},
		{input: "accounts/../secrets", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := docstore.ParsePath(tt.input)
			if tt.wantErr {
				assert.True(t, errors.Is(err, docstore.ErrInvalidData))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPath_Navigation(t *testing.T) {
	account := docstore.NewPath("accounts", "a1")
	quotes := account.Child("quotes")
	quote := quotes.Child("q1")

	assert.False(t, account.IsCollection())
	assert.True(t, quotes.IsCollection())
	assert.Equal(t, "accounts/a1/quotes/q1", quote.String())
	assert.Equal(t, "q1", quote.ID())
	assert.True(t, quote.Parent().Equal(quotes))
	assert.True(t, quote.HasPrefix(account))
	assert.False(t, account.HasPrefix(quote))
	assert.False(t, docstore.NewPath("accounts", "a10").HasPrefix(account))

	// Child must not share the parent's backing array
	other := quotes.Child("q2")
	assert.Equal(t, "q1", quote.ID())
	assert.Equal(t, "q2", other.ID())
}

func TestSnapshot(t *testing.T) {
	p := docstore.NewPath("accounts", "a1", "customers")

	missing := docstore.Snapshot{Path: p}
	assert.False(t, missing.Exists())
	children, err := missing.Children()
	require.NoError(t, err)
	assert.Empty(t, children)
	assert.True(t, errors.Is(missing.Decode(&struct{}{}), docstore.ErrInvalidData))

	null := docstore.Snapshot{Path: p, Raw: json.RawMessage("null")}
	assert.False(t, null.Exists())

	snap := docstore.Snapshot{Path: p, Raw: json.RawMessage(`{"c1":{"name":"Kari"},"c2":{"name":"Ola"}}`)}
	children, err = snap.Children()
	require.NoError(t, err)
	assert.Len(t, children, 2)
	assert.JSONEq(t, `{"name":"Kari"}`, string(children["c1"]))

	notCollection := docstore.Snapshot{Path: p, Raw: json.RawMessage(`[1,2]`)}
	_, err = notCollection.Children()
	assert.True(t, errors.Is(err, docstore.ErrInvalidData))
}

func TestServerTimestamp(t *testing.T) {
	raw, err := json.Marshal(map[string]any{"updatedAt": docstore.ServerTimestamp})
	require.NoError(t, err)
	assert.JSONEq(t, `{"updatedAt":{".sv":"timestamp"}}`, string(raw))
	assert.True(t, docstore.IsServerTimestamp(docstore.ServerTimestamp))
	assert.False(t, docstore.IsServerTimestamp(int64(1)))
}
