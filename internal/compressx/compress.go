// Package compressx implements the payload compression algorithms allowed
// by the wire format's file.compression field. Digests always cover the
// uncompressed bytes, so callers compress after hashing and decompress
// before verifying.
package compressx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Algorithm names accepted on the wire. Empty means no compression.
const (
	None = ""
	Gzip = "gzip"
	Zstd = "zstd"
)

// Compress encodes buf with the named algorithm.
func Compress(algorithm string, buf []byte) ([]byte, error) {
	switch algorithm {
	case None:
		return buf, nil
	case Gzip:
		var out bytes.Buffer
		w := gzip.NewWriter(&out)
		if _, err := w.Write(buf); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return out.Bytes(), nil
	case Zstd:
		w, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		defer w.Close()
		return w.EncodeAll(buf, nil), nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm: %q", algorithm)
	}
}

// Decompress decodes buf that was encoded with the named algorithm.
func Decompress(algorithm string, buf []byte) ([]byte, error) {
	switch algorithm {
	case None:
		return buf, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip read: %w", err)
		}
		return out, nil
	case Zstd:
		r, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer r.Close()
		out, err := r.DecodeAll(buf, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm: %q", algorithm)
	}
}

// Valid reports whether the algorithm name is one we can encode and decode.
func Valid(algorithm string) bool {
	switch algorithm {
	case None, Gzip, Zstd:
		return true
	}
	return false
}
