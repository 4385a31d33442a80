package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/pithecene-io/dbviz/types"
)

func ptr[T any](v T) *T { return &v }

func TestFrameRoundTrip_ProgressThenResult(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	if err := enc.WriteFrame(types.ProgressFrame{Type: types.ProgressType, Stage: "tables", Done: 3, Total: 10}); err != nil {
		t.Fatalf("WriteFrame(progress): %v", err)
	}
	result := types.ConversionResultFrame{
		Type: types.ConversionResultType,
		Outcome: types.ConversionResultOutcome{
			Status:    types.ConversionError,
			Message:   ptr("table users: bad row"),
			ErrorType: ptr(types.ErrorTypeInvalidData),
			Causes:    []string{"row 12: unexpected NULL"},
		},
	}
	if err := enc.WriteFrame(result); err != nil {
		t.Fatalf("WriteFrame(result): %v", err)
	}

	dec := NewFrameDecoder(&buf)

	payload, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	v, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	progress, ok := v.(*types.ProgressFrame)
	if !ok {
		t.Fatalf("frame 1 = %T, want *types.ProgressFrame", v)
	}
	if progress.Done != 3 || progress.Total != 10 || progress.Stage != "tables" {
		t.Errorf("progress = %+v", progress)
	}

	payload, err = dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	v, err = DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	got, ok := v.(*types.ConversionResultFrame)
	if !ok {
		t.Fatalf("frame 2 = %T, want *types.ConversionResultFrame", v)
	}
	if got.Outcome.Status != types.ConversionError {
		t.Errorf("status = %q", got.Outcome.Status)
	}
	if got.Outcome.ErrorType == nil || *got.Outcome.ErrorType != types.ErrorTypeInvalidData {
		t.Errorf("error_type = %v", got.Outcome.ErrorType)
	}
	if len(got.Outcome.Causes) != 1 {
		t.Errorf("causes = %v", got.Outcome.Causes)
	}

	if _, err := dec.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame at end: err = %v, want io.EOF", err)
	}
}

func TestFrameDecoder_PartialPrefix(t *testing.T) {
	dec := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x01}))
	_, err := dec.ReadFrame()

	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorPartial {
		t.Fatalf("err = %v, want FrameErrorPartial", err)
	}
	if !IsFatalFrameError(err) {
		t.Error("partial prefix should be fatal")
	}
}

func TestFrameDecoder_PartialPayload(t *testing.T) {
	buf := make([]byte, LengthPrefixSize+2)
	binary.BigEndian.PutUint32(buf, 10)

	_, err := NewFrameDecoder(bytes.NewReader(buf)).ReadFrame()
	if !IsFatalFrameError(err) {
		t.Fatalf("err = %v, want fatal partial frame", err)
	}
}

func TestFrameDecoder_TooLarge(t *testing.T) {
	buf := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(buf, MaxPayloadSize+1)

	_, err := NewFrameDecoder(bytes.NewReader(buf)).ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Fatalf("err = %v, want FrameErrorTooLarge", err)
	}
}

func TestDecodeFrame_UnknownType(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFrameEncoder(&buf).WriteFrame(map[string]any{"type": "heartbeat"}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	payload, err := NewFrameDecoder(&buf).ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	_, err = DecodeFrame(payload)
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
		t.Fatalf("err = %v, want FrameErrorDecode", err)
	}
	if IsFatalFrameError(err) {
		t.Error("decode errors must not be fatal")
	}
}

func TestDecodeFrame_Garbage(t *testing.T) {
	if _, err := DecodeFrame([]byte{0xc1}); err == nil {
		t.Error("DecodeFrame accepted invalid msgpack")
	}
}
