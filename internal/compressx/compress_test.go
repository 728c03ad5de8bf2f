package compressx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("book bytes "), 4096)

	for _, alg := range []string{None, Gzip, Zstd} {
		t.Run("alg="+alg, func(t *testing.T) {
			packed, err := Compress(alg, payload)
			require.NoError(t, err)

			got, err := Decompress(alg, packed)
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			if alg != None {
				assert.Less(t, len(packed), len(payload))
			}
		})
	}
}

func TestCompress_UnknownAlgorithm(t *testing.T) {
	_, err := Compress("lz77", []byte("x"))
	assert.Error(t, err)

	_, err = Decompress("lz77", []byte("x"))
	assert.Error(t, err)
}

func TestDecompress_GarbageInput(t *testing.T) {
	_, err := Decompress(Gzip, []byte("definitely not gzip"))
	assert.Error(t, err)

	_, err = Decompress(Zstd, []byte("definitely not zstd"))
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(""))
	assert.True(t, Valid("gzip"))
	assert.True(t, Valid("zstd"))
	assert.False(t, Valid("brotli"))
}
