// Package chunker splits binary blobs into fixed-size, content-addressed
// segments and reassembles them with digest verification. Segment ids are
// stable strings of the form "seg-<n>" assigned in split order; reassembly
// concatenates segments in ascending order.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bookfeed/internal/common"
)

// DefaultChunkSize is the reference segment size used when publishing books.
const DefaultChunkSize = 150 * 1024

// Segment is one chunk of a larger blob, addressed by its SHA-256 digest.
type Segment struct {
	ID     string `json:"id"`
	SHA256 string `json:"sha256"`
	Buffer []byte `json:"buf,omitempty"`
}

// Digest returns the lowercase hex SHA-256 of buf.
func Digest(buf []byte) string {
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Split partitions buf into consecutive chunks of size bytes; the last chunk
// may be shorter. An input that is an exact multiple of size produces no
// trailing empty segment. An empty input yields a single empty segment so
// that even a zero-byte file has an addressable identity.
func Split(buf []byte, size int) []Segment {
	if size <= 0 {
		size = DefaultChunkSize
	}

	if len(buf) == 0 {
		return []Segment{{ID: SegmentID(0), SHA256: Digest(nil)}}
	}

	segments := make([]Segment, 0, (len(buf)+size-1)/size)
	for n := 0; n*size < len(buf); n++ {
		start := n * size
		end := start + size
		if end > len(buf) {
			end = len(buf)
		}
		chunk := buf[start:end]
		segments = append(segments, Segment{
			ID:     SegmentID(n),
			SHA256: Digest(chunk),
			Buffer: chunk,
		})
	}
	return segments
}

// SegmentID returns the id for the segment with zero-based order n.
func SegmentID(n int) string {
	return fmt.Sprintf("seg-%d", n+1)
}

// SegmentOrder parses a segment id back to its zero-based order.
// Returns -1 for ids that are not of the seg-<n> form.
func SegmentOrder(id string) int {
	num, ok := strings.CutPrefix(id, "seg-")
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return -1
	}
	return n - 1
}

// Verify checks the segment's buffer against its declared digest.
func Verify(s Segment) error {
	if got := Digest(s.Buffer); got != s.SHA256 {
		return fmt.Errorf("%w: segment %s: digest %s, declared %s", common.ErrCorrupted, s.ID, got, s.SHA256)
	}
	return nil
}

// Reassemble concatenates segments in ascending id order after verifying
// each segment's digest, then checks the whole against wholeSHA256.
func Reassemble(segments []Segment, wholeSHA256 string) ([]byte, error) {
	ordered := make([]Segment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool {
		return SegmentOrder(ordered[i].ID) < SegmentOrder(ordered[j].ID)
	})

	var total int
	for _, s := range ordered {
		total += len(s.Buffer)
	}

	buf := make([]byte, 0, total)
	for _, s := range ordered {
		if err := Verify(s); err != nil {
			return nil, err
		}
		buf = append(buf, s.Buffer...)
	}

	if got := Digest(buf); got != wholeSHA256 {
		return nil, fmt.Errorf("%w: reassembled file: digest %s, declared %s", common.ErrCorrupted, got, wholeSHA256)
	}
	return buf, nil
}
