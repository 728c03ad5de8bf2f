// Package records persists content records: the local materialization of
// group transactions. At most one record per (group, logical object id) is
// live at a time.
package records

import "context"

// Status of a content record. A record created optimistically by the publish
// pipeline starts as Syncing and flips to Synced exactly once, when the sync
// engine observes the same transaction id coming back from the node.
type Status string

const (
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
)

// ContentRecord is one local store row. ObjectID is the application-level
// logical identifier chosen by the publisher (not the transaction id); Name
// distinguishes manifests from segments; Content is the raw payload JSON.
type ContentRecord struct {
	LocalID   int64
	GroupID   string
	TrxID     string
	Publisher string
	TypeURL   string
	Timestamp int64
	ObjectID  string
	Name      string
	Content   []byte
	Status    Status
}

// Repository is the store boundary. Lookups return common.ErrNotFound when
// no row matches; deletes are idempotent.
type Repository interface {
	Add(ctx context.Context, rec *ContentRecord) error
	GetByTrxID(ctx context.Context, groupID, trxID string) (*ContentRecord, error)
	GetByObjectID(ctx context.Context, groupID, objectID string) (*ContentRecord, error)
	ListByGroup(ctx context.Context, groupID string) ([]ContentRecord, error)
	ListByName(ctx context.Context, groupID, name string) ([]ContentRecord, error)
	DeleteByObjectID(ctx context.Context, groupID, objectID string) error
	DeleteByGroup(ctx context.Context, groupID string) error
	UpdateStatus(ctx context.Context, groupID, trxID string, status Status) error
}
