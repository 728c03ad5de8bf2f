// Package resolver turns the flat record store back into books: it pairs
// each fileinfo manifest with the segment records it declares, tracks which
// books are complete, and reassembles and verifies whole files on demand.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bookfeed/internal/chunker"
	"bookfeed/internal/common"
	"bookfeed/internal/compressx"
	"bookfeed/internal/epub"
	"bookfeed/internal/logging"
	"bookfeed/internal/node"
	"bookfeed/internal/publish"
	"bookfeed/internal/repositories/records"
)

type BookStatus string

const (
	// StatusReady means every declared segment is present and the whole
	// file verified against the manifest digest.
	StatusReady BookStatus = "ready"
	// StatusPending means at least one declared segment has not arrived.
	// Normal while the group is still syncing.
	StatusPending BookStatus = "pending"
	// StatusCorrupt means a present segment or the reassembled file failed
	// digest verification. Other books are unaffected.
	StatusCorrupt BookStatus = "corrupt"
)

// Book is one manifest as seen through the store, with its sync status.
type Book struct {
	GroupID  string
	ObjectID string
	TrxID    string
	FileInfo epub.FileInfo
	Status   BookStatus

	// SegmentsHave / SegmentsWant describe completion for pending books.
	SegmentsHave int
	SegmentsWant int

	// Err carries the verification failure for corrupt books.
	Err error
}

type Resolver struct {
	records records.Repository
	log     logging.Logger
}

func New(recs records.Repository, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.NewNoop()
	}
	return &Resolver{records: recs, log: log.With("component", "resolver")}
}

// List returns every book known to the group, sorted by title, each with
// its completion status. A corrupt book is reported as such and never hides
// the rest of the list.
func (r *Resolver) List(ctx context.Context, groupID string) ([]Book, error) {
	manifests, err := r.records.ListByName(ctx, groupID, common.FileInfoName)
	if err != nil {
		return nil, err
	}

	books := make([]Book, 0, len(manifests))
	for i := range manifests {
		rec := &manifests[i]
		fi, err := publish.DecodeFileInfo(rec.Content)
		if err != nil {
			r.log.Warn(ctx, "skipping unreadable manifest", "object", rec.ObjectID, "error", err)
			continue
		}

		book := Book{
			GroupID:      groupID,
			ObjectID:     rec.ObjectID,
			TrxID:        rec.TrxID,
			FileInfo:     *fi,
			SegmentsWant: len(fi.Segments),
		}

		segs, err := r.collect(ctx, groupID, fi)
		switch {
		case err != nil && errors.Is(err, common.ErrCorrupted):
			book.Status = StatusCorrupt
			book.Err = err
			book.SegmentsHave = len(segs)
		case err != nil:
			return nil, err
		case len(segs) < len(fi.Segments):
			book.Status = StatusPending
			book.SegmentsHave = len(segs)
		default:
			book.SegmentsHave = len(segs)
			if _, err := chunker.Reassemble(segs, fi.SHA256); err != nil {
				book.Status = StatusCorrupt
				book.Err = err
			} else {
				book.Status = StatusReady
			}
		}
		books = append(books, book)
	}

	sort.Slice(books, func(i, j int) bool {
		if books[i].FileInfo.Title != books[j].FileInfo.Title {
			return books[i].FileInfo.Title < books[j].FileInfo.Title
		}
		return books[i].ObjectID < books[j].ObjectID
	})
	return books, nil
}

// Get returns one book's status by the manifest's logical id.
func (r *Resolver) Get(ctx context.Context, groupID, objectID string) (*Book, error) {
	books, err := r.List(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for i := range books {
		if books[i].ObjectID == objectID {
			return &books[i], nil
		}
	}
	return nil, fmt.Errorf("book %s: %w", objectID, common.ErrNotFound)
}

// Assemble reconstructs the whole file for the book identified by the
// manifest's logical id, verifying every segment digest and the whole-file
// digest. Returns ErrIncomplete while segments are still missing and
// ErrCorrupted on any digest mismatch.
func (r *Resolver) Assemble(ctx context.Context, groupID, objectID string) ([]byte, *epub.FileInfo, error) {
	rec, err := r.records.GetByObjectID(ctx, groupID, objectID)
	if err != nil {
		return nil, nil, err
	}
	fi, err := publish.DecodeFileInfo(rec.Content)
	if err != nil {
		return nil, nil, err
	}

	segs, err := r.collect(ctx, groupID, fi)
	if err != nil {
		return nil, nil, err
	}
	if len(segs) < len(fi.Segments) {
		return nil, nil, fmt.Errorf("%s: %d of %d segments: %w",
			fi.Title, len(segs), len(fi.Segments), common.ErrIncomplete)
	}

	buf, err := chunker.Reassemble(segs, fi.SHA256)
	if err != nil {
		return nil, nil, err
	}
	return buf, fi, nil
}

// collect gathers the present segments for a manifest, in declared order.
// Missing segments are simply absent from the result; a present segment
// whose payload does not match its declared digest yields ErrCorrupted.
func (r *Resolver) collect(ctx context.Context, groupID string, fi *epub.FileInfo) ([]chunker.Segment, error) {
	segs := make([]chunker.Segment, 0, len(fi.Segments))
	for _, ref := range fi.Segments {
		// Segments published by this client carry a deterministic logical id
		// derived from the file digest; try that first.
		rec, err := r.records.GetByObjectID(ctx, groupID, fi.SHA256+"."+ref.ID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}

		if rec != nil {
			buf, err := decodePayload(rec)
			if err != nil {
				return segs, fmt.Errorf("segment %s: %v: %w", ref.ID, err, common.ErrCorrupted)
			}
			if chunker.Digest(buf) != ref.SHA256 {
				return segs, fmt.Errorf("segment %s: digest mismatch: %w", ref.ID, common.ErrCorrupted)
			}
			segs = append(segs, chunker.Segment{ID: ref.ID, SHA256: ref.SHA256, Buffer: buf})
			continue
		}

		// Fall back to matching by content name among records of the group;
		// other publishers may use different logical ids.
		candidates, err := r.records.ListByName(ctx, groupID, ref.ID)
		if err != nil {
			return nil, err
		}
		if seg, ok := matchByDigest(candidates, ref); ok {
			segs = append(segs, seg)
		}
	}
	return segs, nil
}

// matchByDigest picks the candidate record whose decoded payload matches the
// declared segment digest. Candidates that fail to decode or belong to a
// different book are skipped.
func matchByDigest(candidates []records.ContentRecord, ref epub.SegmentRef) (chunker.Segment, bool) {
	for i := range candidates {
		buf, err := decodePayload(&candidates[i])
		if err != nil {
			continue
		}
		if chunker.Digest(buf) == ref.SHA256 {
			return chunker.Segment{ID: ref.ID, SHA256: ref.SHA256, Buffer: buf}, true
		}
	}
	return chunker.Segment{}, false
}

func decodePayload(rec *records.ContentRecord) ([]byte, error) {
	content, err := node.DecodeContent(rec.Content)
	if err != nil {
		return nil, err
	}
	if content.File == nil {
		return nil, fmt.Errorf("record %s carries no file payload", rec.ObjectID)
	}
	return compressx.Decompress(content.File.Compression, content.File.Content)
}
