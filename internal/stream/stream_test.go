package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/eventcam/internal/device"
	"github.com/banshee-data/eventcam/internal/events"
)

func testContainer(t *testing.T, source int16, baseTS int32, n int32) *events.EventPacketContainer {
	t.Helper()
	pp, err := events.AllocatePolarityPacket(n, source, 0)
	require.NoError(t, err)
	for i := int32(0); i < n; i++ {
		ev, ok := pp.Event(i)
		require.True(t, ok)
		ev.SetTimestamp(baseTS + i)
		ev.SetX(uint16(i))
		ev.SetY(uint16(i * 2))
		ev.SetPolarity(i%2 == 0)
		ev.Validate()
	}
	c := events.NewContainer()
	c.AddPacket(&pp.Packet)
	return c
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 7)
	require.NoError(t, err)

	first := testContainer(t, 7, 100, 4)
	second := testContainer(t, 7, 500, 2)
	require.NoError(t, w.WriteContainer(first))
	require.NoError(t, w.WriteContainer(second))

	r, err := NewReader(&buf)
	require.NoError(t, err)
	assert.Equal(t, int16(7), r.SourceID())

	got, err := r.ReadContainer()
	require.NoError(t, err)
	require.Equal(t, int32(1), got.PacketCount())

	// Forwarding is byte-identical.
	orig, _ := first.FindPacketByType(events.TypePolarity)
	pkt := got.PacketAt(0)
	assert.Equal(t, orig.Bytes(), pkt.Bytes())

	pp, ok := pkt.AsPolarity()
	require.True(t, ok)
	ev, _ := pp.Event(3)
	assert.Equal(t, int32(103), ev.Timestamp())
	assert.Equal(t, uint16(3), ev.X())

	got, err = r.ReadContainer()
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.LowestTimestamp())

	_, err = r.ReadContainer()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderRejectsBadMagic(t *testing.T) {
	var pre [preambleSize]byte
	binary.LittleEndian.PutUint32(pre[0:], 0xDEADBEEF)
	_, err := NewReader(bytes.NewReader(pre[:]))
	assert.ErrorIs(t, err, device.ErrUnsupportedFormat)
}

func TestReaderRejectsUnknownVersion(t *testing.T) {
	var pre [preambleSize]byte
	binary.LittleEndian.PutUint32(pre[0:], Magic)
	binary.LittleEndian.PutUint16(pre[4:], uint16(FormatVersion+1))
	_, err := NewReader(bytes.NewReader(pre[:]))
	assert.ErrorIs(t, err, device.ErrUnsupportedFormat)
}

func TestReaderRejectsTruncatedPacket(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 1)
	require.NoError(t, err)
	require.NoError(t, w.WriteContainer(testContainer(t, 1, 0, 4)))

	// Chop the last packet short.
	data := buf.Bytes()[:buf.Len()-5]
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	_, err = r.ReadContainer()
	assert.Error(t, err)
}

func TestReaderRejectsOversizedCount(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf, 1)
	require.NoError(t, err)
	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(maxPacketsPerContainer+1))
	buf.Write(count[:])

	r, err := NewReader(&buf)
	require.NoError(t, err)
	_, err = r.ReadContainer()
	assert.Error(t, err)
}

// queueSource plays back a fixed set of containers, then blocks on ctx.
type queueSource struct {
	containers []*events.EventPacketContainer
}

func (s *queueSource) NextContainer(ctx context.Context) (*events.EventPacketContainer, error) {
	if len(s.containers) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	c := s.containers[0]
	s.containers = s.containers[1:]
	return c, nil
}

func TestServerForwardsToSubscriber(t *testing.T) {
	src := &queueSource{containers: []*events.EventPacketContainer{
		testContainer(t, 3, 0, 4),
		testContainer(t, 3, 100, 4),
	}}
	srv, err := NewServer("127.0.0.1:0", 3, src)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	r, conn, err := Dial(srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, int16(3), r.SourceID())

	for i := 0; i < 2; i++ {
		c, err := r.ReadContainer()
		require.NoError(t, err)
		assert.Equal(t, int64(4), c.ValidEventCount())
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
