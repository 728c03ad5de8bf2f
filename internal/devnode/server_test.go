package devnode

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookfeed/internal/common"
	"bookfeed/internal/node"
)

func startServer(t *testing.T, opts Options) (*Server, *node.HTTPClient) {
	t.Helper()
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	token, err := s.Token()
	require.NoError(t, err)
	return s, node.NewHTTPClient(ts.URL, token)
}

func TestPostAndListRoundTrip(t *testing.T) {
	_, c := startServer(t, Options{})
	ctx := context.Background()

	id1, err := c.PostToGroup(ctx, "g1", &node.Content{ID: "o1", Type: "Note", Content: "a"})
	require.NoError(t, err)
	id2, err := c.PostToGroup(ctx, "g1", &node.Content{ID: "o2", Type: "Note", Content: "b"})
	require.NoError(t, err)

	all, err := c.GetContentSince(ctx, "g1", node.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, id1, all[0].ID)
	assert.Equal(t, id2, all[1].ID)

	content, err := node.DecodeContent(all[0].Data)
	require.NoError(t, err)
	assert.Equal(t, "o1", content.ID)

	// Cursor pagination: strictly after id1.
	rest, err := c.GetContentSince(ctx, "g1", node.ListOptions{AfterTrxID: id1})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, id2, rest[0].ID)

	// Other groups see nothing.
	other, err := c.GetContentSince(ctx, "g2", node.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestConfirmDelayGatesVisibility(t *testing.T) {
	_, c := startServer(t, Options{ConfirmDelay: 50 * time.Millisecond})
	ctx := context.Background()

	trxID, err := c.PostToGroup(ctx, "g1", &node.Content{ID: "o1", Type: "Note"})
	require.NoError(t, err)

	// Not retrievable or listable until confirmed.
	_, err = c.GetTrx(ctx, "g1", trxID)
	require.ErrorIs(t, err, common.ErrNotFound)

	listed, err := c.GetContentSince(ctx, "g1", node.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.Eventually(t, func() bool {
		_, err := c.GetTrx(ctx, "g1", trxID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	listed, err = c.GetContentSince(ctx, "g1", node.ListOptions{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, trxID, listed[0].ID)
}

func TestAckTrxs(t *testing.T) {
	s, c := startServer(t, Options{})
	ctx := context.Background()

	trxID, err := c.PostToGroup(ctx, "g1", &node.Content{ID: "o1", Type: "Note"})
	require.NoError(t, err)

	require.NoError(t, c.AckTrxs(ctx, []string{trxID}))
	assert.True(t, s.Acked(trxID))
	assert.False(t, s.Acked("unknown"))
}

func TestAuthRejectsBadTokens(t *testing.T) {
	s := New(Options{Secret: []byte("dev-secret")})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	ctx := context.Background()

	// No token.
	_, err := node.NewHTTPClient(ts.URL, "").GetContentSince(ctx, "g1", node.ListOptions{})
	require.Error(t, err)

	// Token signed with a different key.
	other := New(Options{Secret: []byte("wrong")})
	badToken, err := other.Token()
	require.NoError(t, err)
	_, err = node.NewHTTPClient(ts.URL, badToken).GetContentSince(ctx, "g1", node.ListOptions{})
	require.Error(t, err)

	// Proper token.
	token, err := s.Token()
	require.NoError(t, err)
	_, err = node.NewHTTPClient(ts.URL, token).GetContentSince(ctx, "g1", node.ListOptions{})
	require.NoError(t, err)
}
