//go:build cgo

// Package decode: GStreamer-backed implementation using go-gst
// appsrc/appsink, the same binding the teacher uses for desktop
// capture pipelines (see api/pkg/desktop/gst_pipeline.go), here run
// in "push one buffer, pull one buffer" mode rather than streaming.
package decode

import (
	"fmt"
	"sync"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
)

var gstInitOnce sync.Once

func initGStreamer() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// GstDecoder decodes one camera's encoded stream (H.264 by default)
// into I420 planar frames via a GStreamer pipeline driven by appsrc
// on the input side and appsink on the output side.
type GstDecoder struct {
	params   Params
	pipeline *gst.Pipeline
	src      *app.Source
	sink     *app.Sink
}

// NewGstDecoder builds a decodebin-based pipeline for params.Codec
// and starts it in the Playing state, ready to receive buffers via
// Decode.
func NewGstDecoder(params Params) (*GstDecoder, error) {
	initGStreamer()

	pipelineStr := fmt.Sprintf(
		"appsrc name=src format=time is-live=true ! %s ! decodebin ! videoconvert ! video/x-raw,format=I420,width=%d,height=%d ! appsink name=sink sync=false",
		gstParseCapsForCodec(params.Codec), params.Width, params.Height,
	)

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return nil, fmt.Errorf("decode: parse pipeline: %w", err)
	}

	srcElem, err := pipeline.GetElementByName("src")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("decode: get appsrc: %w", err)
	}
	sinkElem, err := pipeline.GetElementByName("sink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("decode: get appsink: %w", err)
	}

	d := &GstDecoder{
		params:   params,
		pipeline: pipeline,
		src:      app.SrcFromElement(srcElem),
		sink:     app.SinkFromElement(sinkElem),
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("decode: set playing: %w", err)
	}

	return d, nil
}

func gstParseCapsForCodec(codec string) string {
	switch codec {
	case "h265", "hevc":
		return "video/x-h265,stream-format=byte-stream"
	default:
		return "video/x-h264,stream-format=byte-stream"
	}
}

// Decode pushes encoded into the pipeline and pulls the next decoded
// I420 sample out, copying it into out. out must be sized
// W*H*3/2 for this decoder's configured layout.
func (d *GstDecoder) Decode(encoded []byte, out []byte) error {
	if len(out) != d.params.frameBytes() {
		return ErrSizeMismatch
	}

	buf := gst.NewBufferFromBytes(encoded)
	if ret := d.src.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("decode: push buffer: flow return %v", ret)
	}

	sample := d.sink.PullSample()
	if sample == nil {
		return fmt.Errorf("decode: no sample produced")
	}
	gbuf := sample.GetBuffer()
	if gbuf == nil {
		return fmt.Errorf("decode: empty sample buffer")
	}
	mapInfo := gbuf.Map(gst.MapRead)
	if mapInfo == nil {
		return fmt.Errorf("decode: failed to map sample buffer")
	}
	defer gbuf.Unmap()

	data := mapInfo.Bytes()
	if len(data) != len(out) {
		return ErrSizeMismatch
	}
	copy(out, data)
	return nil
}

// Close tears down the pipeline.
func (d *GstDecoder) Close() error {
	if d.pipeline != nil {
		return d.pipeline.SetState(gst.StateNull)
	}
	return nil
}
