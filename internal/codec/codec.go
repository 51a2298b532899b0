// Package codec compresses and decompresses the opaque byte blobs persisted
// by the report store. Frames are self-describing: a recognized zstd frame
// carries its decoded size in the header so the decoder can pre-size its
// output buffer, and any input that isn't a recognized frame is returned
// unchanged so legacy uncompressed rows keep reading correctly.
package codec

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Level is the compression level used for all persisted blobs. Level 1
// favors encode throughput over ratio, appropriate for a write-heavy store
// where the corpus is already mostly incompressible binary report data.
const Level = zstd.SpeedFastest

var (
	encoderPool = sync.Pool{
		New: func() any {
			enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(Level))
			if err != nil {
				panic(fmt.Sprintf("codec: building encoder: %v", err))
			}
			return enc
		},
	}
	decoderPool = sync.Pool{
		New: func() any {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				panic(fmt.Sprintf("codec: building decoder: %v", err))
			}
			return dec
		},
	}
)

// Compress returns the zstd-compressed form of src. The frame embeds src's
// length so Decompress can pre-allocate its output.
func Compress(src []byte) []byte {
	enc := encoderPool.Get().(*zstd.Encoder)
	defer encoderPool.Put(enc)

	// EncodeAll resets internal state itself, so pooled encoders are safe
	// to reuse across calls without per-call allocation.
	return enc.EncodeAll(src, make([]byte, 0, len(src)/2+16))
}

// Decompress returns the decoded form of src. If src is not a recognized
// zstd frame, it is returned unchanged — this tolerates legacy rows written
// before the codec existed, per the store's self-describing blob contract.
func Decompress(src []byte) ([]byte, error) {
	if !looksLikeFrame(src) {
		return src, nil
	}

	dec := decoderPool.Get().(*zstd.Decoder)
	defer decoderPool.Put(dec)

	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: decompress: %w", err)
	}
	return out, nil
}

// zstdMagic is the four-byte magic number at the start of every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

func looksLikeFrame(src []byte) bool {
	return len(src) >= 4 && bytes.Equal(src[:4], zstdMagic)
}
