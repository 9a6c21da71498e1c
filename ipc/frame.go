// Package ipc implements the wire framing used by out-of-process
// components attached to the orchestrator core (SPEC_FULL.md §4.14):
// a 4-byte big-endian length prefix followed by that many payload bytes.
// It contains no business logic — only the frame codec.
package ipc

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/beadwright/orchestrator/oerr"
)

// MaxFrameSize is the largest payload a single frame may carry.
const MaxFrameSize = 1 << 20 // 1 MiB

// lengthPrefixSize is the width of the frame's length prefix in bytes.
const lengthPrefixSize = 4

// ReadResult carries a decoded frame's payload plus whether the reader
// reported end-of-stream. IsEOF is true only when r returned io.EOF before
// the first byte of a new frame. There is no separate "unknown" result:
// ReadFrame takes r's io.EOF at face value, so a source that returns
// io.EOF while merely empty (a bytes.Buffer, for instance) is reported as
// IsEOF even if more data is written to it later.
type ReadResult struct {
	Payload []byte
	IsEOF   bool
}

// ReadFrame decodes one frame from r. A clean EOF before any bytes are
// read is reported as ReadResult{IsEOF: true}, nil. An EOF after the
// length prefix (or partway through the payload) is a protocol error:
// ErrUnexpectedEOF. A length of 0 or greater than MaxFrameSize is
// rejected with ErrInvalidFrameLength.
func ReadFrame(r io.Reader) (ReadResult, error) {
	var lenBuf [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.EOF {
			return ReadResult{IsEOF: true}, nil
		}
		return ReadResult{}, oerr.New(oerr.Durability, "reading frame length prefix").
			Wrap(ErrUnexpectedEOF)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 || length > MaxFrameSize {
		return ReadResult{}, oerr.New(oerr.Validation, "invalid frame length %d (max %d)", length, MaxFrameSize).
			Wrap(ErrInvalidFrameLength)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return ReadResult{}, oerr.New(oerr.Durability, "reading frame payload (%d bytes)", length).
			Wrap(ErrUnexpectedEOF)
	}

	return ReadResult{Payload: payload}, nil
}

// WriteFrame encodes payload as a single frame and writes it to w.
// Rejects the same length range ReadFrame rejects, so a writer never
// produces a frame its own reader would refuse.
func WriteFrame(w io.Writer, payload []byte) error {
	length := len(payload)
	if length == 0 || length > MaxFrameSize {
		return oerr.New(oerr.Validation, "invalid frame length %d (max %d)", length, MaxFrameSize).
			Wrap(ErrInvalidFrameLength)
	}

	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(length))

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return oerr.New(oerr.Durability, "writing frame length prefix").Wrap(err)
	}
	if _, err := bw.Write(payload); err != nil {
		return oerr.New(oerr.Durability, "writing frame payload").Wrap(err)
	}
	return bw.Flush()
}
