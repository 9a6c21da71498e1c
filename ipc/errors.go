package ipc

import "errors"

// ErrUnexpectedEOF is returned when the stream ends in the middle of a
// frame (length prefix or payload), as opposed to cleanly between frames.
var ErrUnexpectedEOF = errors.New("ipc: unexpected EOF mid-frame")

// ErrInvalidFrameLength is returned for a frame whose declared length is
// zero or exceeds MaxFrameSize.
var ErrInvalidFrameLength = errors.New("ipc: invalid frame length")
