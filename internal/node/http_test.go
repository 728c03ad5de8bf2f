package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookfeed/internal/common"
)

func TestHTTPClient_PostToGroup(t *testing.T) {
	var gotBody postContentRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/group/content", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(postContentResponse{TrxID: "trx-1"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok")
	trxID, err := c.PostToGroup(context.Background(), "g1", &Content{
		ID:   "obj-1",
		Type: "File",
		Name: "seg-1",
		File: &FilePayload{MediaType: "application/octet-stream", Content: []byte{1, 2, 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "trx-1", trxID)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "Add", gotBody.Type)
	assert.Equal(t, "Group", gotBody.Target.Type)
	assert.Equal(t, "g1", gotBody.Target.ID)
	require.NotNil(t, gotBody.Object)
	assert.Equal(t, "obj-1", gotBody.Object.ID)
	assert.Equal(t, []byte{1, 2, 3}, gotBody.Object.File.Content)
}

func TestHTTPClient_GetContentSince(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/group/g1/content", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("num"))
		assert.Equal(t, "trx-5", r.URL.Query().Get("starttrx"))
		assert.Empty(t, r.URL.Query().Get("includestarttrx"))
		_ = json.NewEncoder(w).Encode([]Transaction{{ID: "trx-6", GroupID: "g1"}})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	trxs, err := c.GetContentSince(context.Background(), "g1", ListOptions{Count: 100, AfterTrxID: "trx-5"})
	require.NoError(t, err)
	require.Len(t, trxs, 1)
	assert.Equal(t, "trx-6", trxs[0].ID)
}

func TestHTTPClient_GetTrx_NotFoundUntilConfirmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.GetTrx(context.Background(), "g1", "trx-1")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestHTTPClient_ServerErrorsAreUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.GetContentSince(context.Background(), "g1", ListOptions{})
	require.ErrorIs(t, err, common.ErrUnavailable)
}

func TestHTTPClient_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // shut down before use

	c := NewHTTPClient(srv.URL, "")
	_, err := c.GetContentSince(context.Background(), "g1", ListOptions{})
	require.ErrorIs(t, err, common.ErrUnavailable)
}

func TestHTTPClient_AckTrxs_EmptyIsNoop(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	require.NoError(t, c.AckTrxs(context.Background(), nil))
	assert.False(t, called)

	require.NoError(t, c.AckTrxs(context.Background(), []string{"trx-1"}))
	assert.True(t, called)
}

func TestContent_EncodeDecodeRoundTrip(t *testing.T) {
	c := &Content{
		ID:   "obj-1",
		Type: "File",
		Name: "fileinfo",
		File: &FilePayload{Compression: "zstd", MediaType: "application/json", Content: []byte("payload")},
	}
	data, err := EncodeContent(c)
	require.NoError(t, err)

	got, err := DecodeContent(data)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}
