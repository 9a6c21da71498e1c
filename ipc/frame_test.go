package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenReadFrame_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))

	result, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.False(t, result.IsEOF)
	require.Equal(t, []byte("hello"), result.Payload)
}

func TestReadFrame_CleanEOFBeforeAnyBytes(t *testing.T) {
	result, err := ReadFrame(bytes.NewReader(nil))
	require.NoError(t, err)
	require.True(t, result.IsEOF)
}

func TestReadFrame_EOFMidLengthPrefixIsUnexpected(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x01}))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnexpectedEOF))
}

func TestReadFrame_EOFMidPayloadIsUnexpected(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 10)
	buf := bytes.NewBuffer(lenBuf[:])
	buf.Write([]byte("short"))

	_, err := ReadFrame(buf)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnexpectedEOF))
}

func TestReadFrame_ZeroLengthRejected(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 0)

	_, err := ReadFrame(bytes.NewReader(lenBuf[:]))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidFrameLength))
}

func TestReadFrame_OverMaxLengthRejected(t *testing.T) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], MaxFrameSize+1)

	_, err := ReadFrame(bytes.NewReader(lenBuf[:]))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidFrameLength))
}

func TestWriteFrame_RejectsEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidFrameLength))
}

func TestWriteFrame_RejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxFrameSize+1))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidFrameLength))
}

func TestWriteFrame_AcceptsExactlyMaxFrameSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, MaxFrameSize)))

	result, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Len(t, result.Payload, MaxFrameSize)
}

func TestReadFrame_MultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("one")))
	require.NoError(t, WriteFrame(&buf, []byte("two")))

	first, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), first.Payload)

	second, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), second.Payload)

	third, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.True(t, third.IsEOF)
}

