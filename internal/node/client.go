// Package node defines the boundary to the external p2p node process and an
// HTTP implementation of it. The node is a black box that accepts signed
// transactions for a group, lists them from a cursor, and serves individual
// transactions once they are durably confirmed.
package node

import (
	"context"
	"encoding/json"
)

// Transaction is one signed, ordered entry in a group's log. Immutable once
// returned by the node; arrival order is not guaranteed to equal causal
// order and duplicates may be redelivered.
type Transaction struct {
	ID        string `json:"trx_id"`
	GroupID   string `json:"group_id"`
	Sender    string `json:"sender_pubkey"`
	Data      []byte `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Signature []byte `json:"signature"`
}

// FilePayload carries binary content inside a Content object. Content is
// base64 on the wire (handled by encoding/json); Compression names the
// algorithm applied to it, empty for none.
type FilePayload struct {
	Compression string `json:"compression"`
	MediaType   string `json:"mediaType"`
	Content     []byte `json:"content"`
}

// Content is the application-level payload of a transaction. ID is the
// logical identifier chosen by the publisher: republishing under the same ID
// supersedes the previous record. Name distinguishes manifests ("fileinfo")
// from segments (the segment id).
type Content struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Name    string       `json:"name,omitempty"`
	Content string       `json:"content,omitempty"`
	File    *FilePayload `json:"file,omitempty"`
}

// DecodeContent parses transaction data back into a Content.
func DecodeContent(data []byte) (*Content, error) {
	var c Content
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// EncodeContent renders a Content the way it travels inside a transaction.
func EncodeContent(c *Content) ([]byte, error) {
	return json.Marshal(c)
}

// ListOptions bounds a GetContentSince call. AfterTrxID empty means from the
// beginning of the log.
type ListOptions struct {
	Count        int
	AfterTrxID   string
	IncludeStart bool
}

// Client is the node boundary consumed by the sync engine and the publish
// pipeline.
type Client interface {
	// PostToGroup submits an "Add object" transaction and returns its id.
	PostToGroup(ctx context.Context, groupID string, content *Content) (string, error)

	// GetContentSince lists up to opts.Count transactions strictly after
	// opts.AfterTrxID in log order.
	GetContentSince(ctx context.Context, groupID string, opts ListOptions) ([]Transaction, error)

	// GetTrx fetches one transaction by id. Returns common.ErrNotFound until
	// the transaction is durably confirmed; used for confirm polling.
	GetTrx(ctx context.Context, groupID, trxID string) (*Transaction, error)

	// AckTrxs acknowledges processed transactions. Fire-and-forget.
	AckTrxs(ctx context.Context, trxIDs []string) error
}
