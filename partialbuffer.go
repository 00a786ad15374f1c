package remotezip

import (
	"bytes"
	"fmt"
	"io"

	"github.com/valyala/bytebufferpool"
)

// PartialBuffer is a bounded window [offset, offset+size) over the
// logical remote file. It is produced by a RangeFetcher on every
// successful fetch and owned exclusively by the RemoteIO that requested
// it; RemoteIO closes it when replaced or when RemoteIO itself closes.
//
// Two backing flavors exist, selected by stream:
//   - stream=false: the response body was read fully into memory up
//     front, so the window supports arbitrary in-window seeks.
//   - stream=true: the underlying byte source is a one-shot,
//     forward-only stream; seeking backwards within it is impossible,
//     and seeking forwards consumes and discards bytes. The default
//     httpRangeFetcher does not hand the live response body through: it
//     copies the whole body into memory first and wraps that copy as the
//     forward-only source.
type PartialBuffer struct {
	offset   int64
	size     int64
	position int64
	stream   bool

	mem    *bytes.Reader
	pooled *bytebufferpool.ByteBuffer

	body   io.ReadCloser
	cursor int64 // bytes consumed from body, relative to offset
}

// newMemPartialBuffer builds a fully-buffered, randomly-seekable window.
// pooled may be nil if data isn't backed by a pooled buffer.
func newMemPartialBuffer(data []byte, offset int64, pooled *bytebufferpool.ByteBuffer) *PartialBuffer {
	return &PartialBuffer{
		offset:   offset,
		size:     int64(len(data)),
		position: offset,
		stream:   false,
		mem:      bytes.NewReader(data),
		pooled:   pooled,
	}
}

// newStreamPartialBuffer builds a forward-only window over body, which
// is expected to yield exactly size bytes before EOF.
func newStreamPartialBuffer(body io.ReadCloser, offset, size int64) *PartialBuffer {
	return &PartialBuffer{
		offset:   offset,
		size:     size,
		position: offset,
		stream:   true,
		body:     body,
	}
}

// Offset returns the absolute start of the window.
func (pb *PartialBuffer) Offset() int64 { return pb.offset }

// Size returns the number of bytes the window covers.
func (pb *PartialBuffer) Size() int64 { return pb.size }

// Tell returns the current absolute logical position of the next byte
// to be read.
func (pb *PartialBuffer) Tell() int64 { return pb.position }

// relative reports how far into the window the current position is.
func (pb *PartialBuffer) relative() int64 { return pb.position - pb.offset }

// Read reads up to n bytes starting at the current position. If n==0 it
// reads to the end of the window. It returns fewer bytes than requested
// iff the window is exhausted; a genuine transport failure surfaces as
// ErrRemoteIO.
func (pb *PartialBuffer) Read(n int) ([]byte, error) {
	remaining := pb.size - pb.relative()
	if remaining < 0 {
		remaining = 0
	}

	want := int64(n)
	if want == 0 || want > remaining {
		want = remaining
	}
	if want == 0 {
		return nil, nil
	}

	buf := make([]byte, want)
	var got int
	var err error
	if pb.stream {
		got, err = io.ReadFull(pb.body, buf)
		pb.cursor += int64(got)
	} else {
		got, err = io.ReadFull(pb.mem, buf)
	}
	pb.position += int64(got)

	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return buf[:got], fmt.Errorf("%w: %v", ErrRemoteIO, err)
	}
	if err != nil && int64(got) < want {
		// The source ended before filling the window it was supposed to
		// cover: the server truncated the response.
		return buf[:got], fmt.Errorf("%w: range source ended early: %v", ErrRemoteIO, err)
	}
	return buf[:got], nil
}

// Seek implements the three standard whence modes against the window's
// logical position space:
//
//	whence=0: position = offset (absolute logical position)
//	whence=1: position += offset (relative to current position)
//	whence=2: position = window.offset + window.size + offset
//
// A target outside [window.offset, window.offset+window.size) fails
// with *OutOfBoundError; the logical position is still updated (needed
// by RemoteIO's deferred-fetch recovery), only the relative/in-window
// operation is skipped.
func (pb *PartialBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		pb.position = offset
	case 1:
		pb.position += offset
	case 2:
		pb.position = pb.offset + pb.size + offset
	default:
		return pb.position, fmt.Errorf("remotezip: invalid whence %d", whence)
	}

	r := pb.relative()
	if r < 0 || r >= pb.size {
		return pb.position, windowBoundError(pb.position)
	}

	if !pb.stream {
		if _, err := pb.mem.Seek(r, io.SeekStart); err != nil {
			return pb.position, fmt.Errorf("%w: %v", ErrRemoteIO, err)
		}
		return pb.position, nil
	}

	if r < pb.cursor {
		return pb.position, negativeSeekError(pb.position)
	}
	if r == pb.cursor {
		return pb.position, nil
	}
	skip := r - pb.cursor
	if _, err := io.CopyN(io.Discard, pb.body, skip); err != nil {
		return pb.position, fmt.Errorf("%w: %v", ErrRemoteIO, err)
	}
	pb.cursor = r
	return pb.position, nil
}

// Close releases the underlying source: the pooled buffer (if any) goes
// back to probeBufferPool, or the stream body is closed, releasing its
// connection.
func (pb *PartialBuffer) Close() error {
	if pb.pooled != nil {
		putProbeBuffer(pb.pooled)
		pb.pooled = nil
		pb.mem = nil
		return nil
	}
	if pb.body != nil {
		err := pb.body.Close()
		pb.body = nil
		return err
	}
	return nil
}
