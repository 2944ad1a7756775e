package viewer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrips(t *testing.T) {
	f, err := newFrame(FrameHelloAck, HelloAck{WorldID: "w1", Tick: 42, SchemaVersion: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, FrameHelloAck, got.Type)

	var hello HelloAck
	require.NoError(t, unmarshalPayload(got, &hello))
	require.Equal(t, "w1", hello.WorldID)
	require.Equal(t, uint64(42), hello.Tick)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x7F, 0xFF, 0xFF, 0xFF})
	_, err := ReadFrame(&buf)
	require.Error(t, err)
}
