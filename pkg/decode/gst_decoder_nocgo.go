//go:build !cgo

// Package decode: stub GStreamer decoder for builds without CGO. The
// real implementation lives in gst_decoder.go and requires CGO for
// the go-gst bindings (cf. api/pkg/desktop/gst_pipeline_nocgo.go).
package decode

import "errors"

// ErrCGORequired is returned by NewGstDecoder when CGO is disabled.
var ErrCGORequired = errors.New("decode: GStreamer decoder requires CGO")

// GstDecoder is an unusable stub when CGO is disabled.
type GstDecoder struct{}

// NewGstDecoder always fails when CGO is disabled.
func NewGstDecoder(params Params) (*GstDecoder, error) {
	return nil, ErrCGORequired
}

func (d *GstDecoder) Decode(encoded []byte, out []byte) error { return ErrCGORequired }
func (d *GstDecoder) Close() error                             { return nil }
