// Package decode defines the decoder black box: something that turns
// an encoded network frame into a fixed-size planar YUV 4:2:0 pixel
// buffer. The ingest worker depends only on the Decoder interface;
// concrete implementations live in this package behind build tags.
package decode

import "errors"

// ErrSizeMismatch is a ProtocolError per spec.md §7: the decoder
// produced (or was asked to produce into) a buffer of the wrong size
// for the configured layout.
var ErrSizeMismatch = errors.New("decode: output buffer size mismatch")

// Decoder transforms one encoded frame into the caller-supplied
// output buffer, which must already be sized W*H*3/2 for the run's
// layout. Implementations must not retain encoded or out beyond the
// call.
type Decoder interface {
	// Decode decodes encoded into out in place. Returns
	// ErrSizeMismatch if out is not sized for this decoder's
	// configured layout, or a decoder-specific error on malformed
	// input.
	Decode(encoded []byte, out []byte) error

	// Close releases any resources (codec contexts, pipelines) held
	// by the decoder.
	Close() error
}

// Params configures a decoder instance for one camera's stream.
type Params struct {
	Codec  string
	Width  int
	Height int
}

func (p Params) frameBytes() int {
	return p.Width * p.Height * 3 / 2
}
