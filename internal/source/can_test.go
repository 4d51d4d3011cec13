package source

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/nanocat/internal/clock"
	"github.com/coffersTech/nanocat/internal/parser"
)

func frame(id uint32, data ...byte) []byte {
	f := make([]byte, canFrameLen)
	binary.NativeEndian.PutUint32(f[0:4], id)
	f[4] = byte(len(data))
	copy(f[8:], data)
	return f
}

func TestFrameReaderRendersCandumpLines(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(frame(0x123, 0xde, 0xad, 0xbe, 0xef))
	stream.Write(frame(0x1abcdef0|canEFFFlag, 0x01))
	stream.Write(frame(0x7ff | canRTRFlag))

	at := time.Unix(1700000000, 123456000)
	r := newFrameReader(io.NopCloser(&stream), "vcan0", clock.Fake(at))
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t,
		"(1700000000.123456) vcan0 123#DEADBEEF\n"+
			"(1700000000.123456) vcan0 1ABCDEF0#01\n"+
			"(1700000000.123456) vcan0 7FF#R\n",
		string(out))
}

func TestFrameReaderOutputParses(t *testing.T) {
	r := newFrameReader(io.NopCloser(bytes.NewReader(frame(0x42, 0x00, 0xff))), "can0", clock.Fake(time.Unix(5, 0)))
	out, err := io.ReadAll(r)
	require.NoError(t, err)

	recs := parser.New(parser.CAN{}).Feed(nil, out)
	require.Len(t, recs, 1)
	assert.Equal(t, "0x42", recs[0].Tag)
	assert.Equal(t, "can0", recs[0].Process)
	assert.Equal(t, "  00 ff", recs[0].Message)
	assert.Equal(t, "5.000000", recs[0].Time)
}

func TestFrameReaderSmallBuffer(t *testing.T) {
	r := newFrameReader(io.NopCloser(bytes.NewReader(frame(0x1, 0x02))), "c", clock.Fake(time.Unix(0, 0)))
	var out []byte
	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			break
		}
	}
	assert.Equal(t, "(0.000000) c 001#02\n", string(out))
}

func TestFrameReaderShortFrame(t *testing.T) {
	r := newFrameReader(io.NopCloser(bytes.NewReader([]byte{1, 2, 3})), "c", clock.Real())
	_, err := r.Read(make([]byte, 64))
	assert.ErrorContains(t, err, "short CAN frame")
}
