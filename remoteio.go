package remotezip

import (
	"errors"
	"io"
	"log"
	"sync"
)

// SeekableReader is the duck-typed "file object" contract the ZIP parser
// actually needs: read, seek, tell, seekable, close. RemoteIO implements
// it (plus io.ReaderAt, for archive/zip.NewReader); a test double can
// implement the same interface to stand in for a real archive.
type SeekableReader interface {
	io.Reader
	io.Seeker
	io.Closer
	Tell() int64
	Seekable() bool
}

// RemoteIO is the seek-aware virtual I/O layer: it presents the whole
// logical remote file as a normal seekable stream to a ZIP parser, while
// issuing only as many, and as small, range fetches as the parser's
// access pattern demands.
type RemoteIO struct {
	mu sync.Mutex

	fetch             RangeFetcher
	initialBufferSize int64
	debugOut          *log.Logger

	buffer   *PartialBuffer
	fileSize *int64

	positionToSize map[int64]int64 // nil until installed by the facade
	lastMemberPos  *int64

	seekSucceeded bool
}

// NewRemoteIO builds a RemoteIO over fetch. No network request is made
// until the first seek or read.
func NewRemoteIO(fetch RangeFetcher, initialBufferSize int64, debugOut *log.Logger) *RemoteIO {
	if debugOut == nil {
		debugOut = discardLogger()
	}
	if initialBufferSize <= 0 {
		initialBufferSize = defaultInitialBufferSize
	}
	return &RemoteIO{
		fetch:             fetch,
		initialBufferSize: initialBufferSize,
		debugOut:          debugOut,
	}
}

// SetPositionToSize installs the per-member position→size map built by
// the facade from the parsed central directory. Once installed, reads
// that start at a member's header offset are bounded to that member;
// reads that don't land on a known offset and aren't a continuation of
// the member currently being streamed fail with *OutOfBoundError.
func (rio *RemoteIO) SetPositionToSize(m map[int64]int64) {
	rio.mu.Lock()
	defer rio.mu.Unlock()
	rio.positionToSize = m
}

// Seekable always reports true: RemoteIO looks like a seekable file to
// every caller, even before the first fetch has happened.
func (rio *RemoteIO) Seekable() bool { return true }

// Tell returns the current absolute logical position.
func (rio *RemoteIO) Tell() int64 {
	rio.mu.Lock()
	defer rio.mu.Unlock()
	if rio.buffer == nil {
		return 0
	}
	return rio.buffer.Tell()
}

// Close releases the current window and its underlying connection.
func (rio *RemoteIO) Close() error {
	rio.mu.Lock()
	defer rio.mu.Unlock()
	if rio.buffer == nil {
		return nil
	}
	err := rio.buffer.Close()
	rio.buffer = nil
	return err
}

// Seek delegates to the current window's Seek. The first call with
// whence=io.SeekEnd bootstraps file_size via a suffix-range probe fetch.
//
// A seek landing outside the current window is not surfaced as an
// error: RemoteIO records that the next read must fetch a new window
// and returns the updated logical position — the ZIP parser routinely
// seeks speculatively and may seek again before ever reading.
func (rio *RemoteIO) Seek(offset int64, whence int) (int64, error) {
	rio.mu.Lock()
	defer rio.mu.Unlock()
	return rio.seekLocked(offset, whence)
}

func (rio *RemoteIO) seekLocked(offset int64, whence int) (int64, error) {
	if whence == io.SeekEnd && rio.fileSize == nil {
		pb, err := rio.fetch.Fetch(SuffixRange(rio.initialBufferSize), false)
		if err != nil {
			return 0, err
		}
		rio.buffer = pb
		fs := pb.Offset() + pb.Size()
		rio.fileSize = &fs
		rio.debugOut.Printf("bootstrap: file_size=%d\n", fs)
	}

	if rio.buffer == nil {
		// Nothing bootstrapped yet and the caller didn't seek from the
		// end first: fetch the same suffix-range probe the seek-from-end
		// branch above would have, purely to learn file_size and obtain
		// a starting window. If offset/whence don't land inside it,
		// the seek below is deferred to the next read, same as any
		// other out-of-window seek.
		pb, err := rio.fetch.Fetch(SuffixRange(rio.initialBufferSize), false)
		if err != nil {
			return 0, err
		}
		rio.buffer = pb
		if rio.fileSize == nil {
			fs := pb.Offset() + pb.Size()
			rio.fileSize = &fs
		}
	}

	pos, err := rio.buffer.Seek(offset, whence)
	var oob *OutOfBoundError
	if errors.As(err, &oob) {
		rio.seekSucceeded = false
		rio.debugOut.Printf("seek to %d deferred: %v\n", pos, err)
		return pos, nil
	}
	if err != nil {
		return pos, err
	}
	rio.seekSucceeded = true
	return pos, nil
}

// Read implements io.Reader. Short reads signal true end of file (or of
// the bounded member, once a position-to-size map is installed); a
// RemoteIOError or *OutOfBoundError surfaces any other failure.
func (rio *RemoteIO) Read(p []byte) (int, error) {
	rio.mu.Lock()
	defer rio.mu.Unlock()

	data, err := rio.readWindowLocked(len(p))
	n := copy(p, data)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return n, io.EOF
	}
	return n, nil
}

// ReadAt implements io.ReaderAt so RemoteIO can be handed directly to
// archive/zip.NewReader. RemoteIO is not safe for concurrent use: callers
// must not issue overlapping ReadAt calls against the same RemoteIO,
// matching the single active central-directory parse or single active
// member stream the engine is designed around.
func (rio *RemoteIO) ReadAt(p []byte, off int64) (int, error) {
	rio.mu.Lock()
	defer rio.mu.Unlock()

	if _, err := rio.seekLocked(off, io.SeekStart); err != nil {
		return 0, err
	}

	total := 0
	for total < len(p) {
		data, err := rio.readWindowLocked(len(p) - total)
		total += copy(p[total:], data)
		if err != nil {
			return total, err
		}
		if len(data) == 0 {
			return total, io.EOF
		}
		if total < len(p) {
			if _, err := rio.seekLocked(off+int64(total), io.SeekStart); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// readWindowLocked is the heart of the engine. Must be called with
// rio.mu held.
func (rio *RemoteIO) readWindowLocked(n int) ([]byte, error) {
	if rio.buffer == nil {
		// A read before any seek starts at position 0, after the same
		// bootstrap probe a first seek would have issued.
		if _, err := rio.seekLocked(0, io.SeekStart); err != nil {
			return nil, err
		}
	}

	size := n
	if size == 0 && rio.fileSize != nil && rio.buffer != nil {
		size = int(*rio.fileSize - rio.buffer.Tell())
	}

	if rio.seekSucceeded {
		return rio.buffer.Read(size)
	}

	p := rio.buffer.Tell()

	var fetchSize int64
	var stream bool

	if rio.positionToSize == nil {
		// Probe mode: parsing headers or the central directory. Small,
		// fully-buffered fetch of exactly the requested size.
		fetchSize = int64(size)
		stream = false
	} else if sz, ok := rio.positionToSize[p]; ok {
		// Start of a known member: bound the fetch to that member and
		// stream it, since member reads are long and sequential.
		fetchSize = sz
		pos := p
		rio.lastMemberPos = &pos
		stream = true
	} else if rio.lastMemberPos != nil && *rio.lastMemberPos < p &&
		p < *rio.lastMemberPos+rio.positionToSize[*rio.lastMemberPos] {
		// A seek within the member currently being streamed.
		fetchSize = rio.positionToSize[*rio.lastMemberPos] - (p - *rio.lastMemberPos)
		stream = true
	} else {
		return nil, memberBoundError(p)
	}

	if rio.buffer != nil {
		rio.buffer.Close()
	}

	rio.debugOut.Printf("fetching new window at %d size=%d stream=%v\n", p, fetchSize, stream)
	newBuf, err := rio.fetch.Fetch(AbsoluteRange(p, p+fetchSize-1), stream)
	if err != nil {
		return nil, err
	}
	rio.buffer = newBuf
	rio.seekSucceeded = true

	return rio.buffer.Read(size)
}

var _ SeekableReader = (*RemoteIO)(nil)
var _ io.ReaderAt = (*RemoteIO)(nil)
