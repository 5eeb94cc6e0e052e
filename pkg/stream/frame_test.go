package stream

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncodeDecode(t *testing.T) {
	frame, err := NewFrame(KindSessionChanged, SessionChangedPayload{
		ProjectID: "p1",
		SessionID: "s1",
	})
	require.NoError(t, err)

	data, err := frame.Encode()
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1], "encoded frame must be newline-terminated")

	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, KindSessionChanged, decoded.Kind)
	assert.False(t, decoded.Timestamp.IsZero())

	var payload SessionChangedPayload
	require.NoError(t, decoded.ParsePayload(&payload))
	assert.Equal(t, "p1", payload.ProjectID)
	assert.Equal(t, "s1", payload.SessionID)
}

func TestFrameWithoutPayload(t *testing.T) {
	frame, err := NewFrame(KindHeartbeat, nil)
	require.NoError(t, err)
	assert.Empty(t, frame.Payload)

	data, err := frame.Encode()
	require.NoError(t, err)

	decoded, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, decoded.Kind)

	var ignored struct{}
	assert.NoError(t, decoded.ParsePayload(&ignored))
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	_, err := DecodeFrame([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`{"payload":{}}`))
	assert.Error(t, err, "frame without kind must be rejected")
}

func TestDecoderReadsFramesPerLine(t *testing.T) {
	var buf bytes.Buffer
	for _, kind := range []Kind{KindConnect, KindHeartbeat, KindSchedulerJobsChanged} {
		frame, err := NewFrame(kind, nil)
		require.NoError(t, err)
		data, err := frame.Encode()
		require.NoError(t, err)
		buf.Write(data)
	}
	// Blank lines between frames are tolerated.
	buf.WriteString("\n")

	dec := NewDecoder(&buf)

	var kinds []Kind
	for {
		frame, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, frame.Kind)
	}
	assert.Equal(t, []Kind{KindConnect, KindHeartbeat, KindSchedulerJobsChanged}, kinds)
}
