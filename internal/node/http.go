package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"bookfeed/internal/common"
)

const defaultRequestTimeout = 12 * time.Second

// HTTPClient talks to the node's local HTTP JSON API. Every request carries
// the node's JWT as a bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

type postContentRequest struct {
	Type   string      `json:"type"`
	Object *Content    `json:"object"`
	Target contentDest `json:"target"`
}

type contentDest struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type postContentResponse struct {
	TrxID string `json:"trx_id"`
}

func (c *HTTPClient) PostToGroup(ctx context.Context, groupID string, content *Content) (string, error) {
	body := postContentRequest{
		Type:   "Add",
		Object: content,
		Target: contentDest{ID: groupID, Type: "Group"},
	}

	var resp postContentResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/group/content", body, &resp); err != nil {
		return "", err
	}
	return resp.TrxID, nil
}

func (c *HTTPClient) GetContentSince(ctx context.Context, groupID string, opts ListOptions) ([]Transaction, error) {
	q := url.Values{}
	if opts.Count > 0 {
		q.Set("num", strconv.Itoa(opts.Count))
	}
	if opts.AfterTrxID != "" {
		q.Set("starttrx", opts.AfterTrxID)
	}
	if opts.IncludeStart {
		q.Set("includestarttrx", "true")
	}

	path := "/api/v1/group/" + url.PathEscape(groupID) + "/content"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var trxs []Transaction
	if err := c.do(ctx, http.MethodGet, path, nil, &trxs); err != nil {
		return nil, err
	}
	return trxs, nil
}

func (c *HTTPClient) GetTrx(ctx context.Context, groupID, trxID string) (*Transaction, error) {
	path := "/api/v1/trx/" + url.PathEscape(groupID) + "/" + url.PathEscape(trxID)

	var trx Transaction
	if err := c.do(ctx, http.MethodGet, path, nil, &trx); err != nil {
		return nil, err
	}
	return &trx, nil
}

type ackRequest struct {
	TrxIDs []string `json:"trx_ids"`
}

func (c *HTTPClient) AckTrxs(ctx context.Context, trxIDs []string) error {
	if len(trxIDs) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/api/v1/trx/ack", ackRequest{TrxIDs: trxIDs}, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// mapStatus converts HTTP failures to the shared error taxonomy so callers
// can branch with errors.Is.
func mapStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: node returned %s", common.ErrUnavailable, resp.Status)
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("node error: %s: %s", resp.Status, string(b))
	}
}
