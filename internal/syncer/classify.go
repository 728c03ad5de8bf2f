// Package syncer turns the node's transaction stream into consistent local
// store mutations with at-most-once visible effects. One Engine polls one
// group; a Registry owns the engines for all open groups.
package syncer

import (
	"bookfeed/internal/common"
	"bookfeed/internal/node"
	"bookfeed/internal/repositories/records"
)

// ActionKind enumerates the store mutations a transaction can map to.
type ActionKind int

const (
	// ActionNoop: the transaction has no visible local effect (duplicate
	// echo of an already-synced record, or a tombstone for an unknown id).
	ActionNoop ActionKind = iota

	// ActionFlipStatus: the transaction is the echo of our own optimistic
	// write; flip the existing record from Syncing to Synced in place.
	ActionFlipStatus

	// ActionInsert: no record exists for this logical id; insert as Synced.
	ActionInsert

	// ActionReplaceAndInsert: a record with the same logical id exists under
	// a different transaction; delete it and insert the incoming one.
	ActionReplaceAndInsert

	// ActionReplaceAndTombstone: the incoming content is a tombstone; delete
	// the existing record and materialize nothing.
	ActionReplaceAndTombstone
)

func (k ActionKind) String() string {
	switch k {
	case ActionNoop:
		return "noop"
	case ActionFlipStatus:
		return "flip-status"
	case ActionInsert:
		return "insert"
	case ActionReplaceAndInsert:
		return "replace-and-insert"
	case ActionReplaceAndTombstone:
		return "replace-and-tombstone"
	default:
		return "unknown"
	}
}

// Classify decides how one incoming transaction mutates the store, given the
// record already stored under its transaction id (byTrx) and the record live
// under its logical object id (byObject); either may be nil.
//
// The function is pure so the one subtle algorithm of the sync engine stays
// unit-testable without a store. Applying the returned action must be
// idempotent: reprocessing a window after a crash yields the same state.
func Classify(byTrx, byObject *records.ContentRecord, incoming *node.Content) ActionKind {
	if byTrx != nil {
		if byTrx.Status == records.StatusSyncing {
			return ActionFlipStatus
		}
		return ActionNoop
	}

	tombstone := incoming.Content == common.ObjectStatusDeleted

	if byObject != nil {
		if tombstone {
			return ActionReplaceAndTombstone
		}
		return ActionReplaceAndInsert
	}

	if tombstone {
		// Nothing to delete and tombstones are never materialized; treating
		// this as a noop keeps window reprocessing idempotent.
		return ActionNoop
	}
	return ActionInsert
}
