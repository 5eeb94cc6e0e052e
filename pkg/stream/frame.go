package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Frame is the wire envelope for one event. Frames are encoded as a single
// line of JSON terminated by '\n'.
type Frame struct {
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewFrame builds a frame with the payload marshaled and the server timestamp
// set to now.
func NewFrame(kind Kind, payload interface{}) (*Frame, error) {
	f := &Frame{
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
		}
		f.Payload = data
	}
	return f, nil
}

// Encode serializes the frame as one newline-terminated JSON line.
func (f *Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return append(data, '\n'), nil
}

// ParsePayload unmarshals the frame payload into v. A frame without a
// payload leaves v untouched.
func (f *Frame) ParsePayload(v interface{}) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}

// DecodeFrame parses a single encoded frame. Trailing newline is optional so
// callers can pass either raw websocket messages or lines from a Decoder.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(bytes.TrimRight(data, "\n"), &f); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if f.Kind == "" {
		return nil, fmt.Errorf("frame has no kind")
	}
	return &f, nil
}

// Decoder reads newline-delimited frames from a stream.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: sc}
}

// Next returns the next frame, or io.EOF when the stream ends.
func (d *Decoder) Next() (*Frame, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return DecodeFrame(line)
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
