// Package remotezip provides random-access read of entries inside a ZIP
// archive hosted on a remote HTTP server that supports byte-range
// requests, without downloading the whole archive.
package remotezip

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"

	"github.com/klauspost/compress/flate"
)

func init() {
	// Swap in klauspost/compress's flate for member decompression: a
	// drop-in faster decoder behind the same zip.RegisterDecompressor
	// seam, without touching how archive/zip itself parses the archive.
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
}

// RemoteZip is the facade: it opens a ZIP archive hosted at url without
// downloading it, exposing each member through the standard library's
// own archive/zip.File.
type RemoteZip struct {
	rio    *RemoteIO
	reader *zip.Reader
}

// Open constructs a RemoteZip over url. It performs the minimum number
// of range fetches needed to locate and parse the central directory: a
// suffix-range probe for the end-of-central-directory record, then
// however many probe fetches archive/zip's own parse needs to walk the
// directory itself, plus the probe fetches of a second walk of our own
// over the end-of-central-directory record and the directory, which
// recovers each entry's local header offset (see cdscan.go).
func Open(url string, opts ...Option) (*RemoteZip, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.fetcher == nil {
		o.fetcher = newHTTPRangeFetcher(url, o)
	}
	return openWithOptions(o)
}

// OpenWithFetcher constructs a RemoteZip over a caller-supplied
// RangeFetcher instead of the default fasthttp transport. This is the
// seam tests use to substitute a local-file-backed fetcher; it's
// exported because any caller who already owns a different transport
// (an S3 presigned-URL client, a custom auth wrapper around fasthttp)
// can use it the same way.
func OpenWithFetcher(fetch RangeFetcher, opts ...Option) (*RemoteZip, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	o.fetcher = fetch
	return openWithOptions(o)
}

func openWithOptions(o *options) (*RemoteZip, error) {
	rio := NewRemoteIO(o.fetcher, int64(o.initialBufferSize), o.debugOut)

	// Bootstrap file_size the same way the first ZIP-parser seek would,
	// so scanCentralDirectory has a size to search backwards from before
	// archive/zip.NewReader ever gets involved.
	if _, err := rio.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("remotezip: opening archive: %w", err)
	}
	size := *rio.fileSize

	reader, err := zip.NewReader(rio, size)
	if err != nil {
		rio.Close()
		return nil, fmt.Errorf("remotezip: parsing central directory: %w", err)
	}

	offsets, cdStart, err := scanCentralDirectory(rio, size)
	if err != nil {
		rio.Close()
		return nil, fmt.Errorf("remotezip: %w", err)
	}
	if len(offsets) != len(reader.File) {
		rio.Close()
		return nil, fmt.Errorf("remotezip: central directory entry count mismatch: archive/zip saw %d, scan saw %d", len(reader.File), len(offsets))
	}

	rio.SetPositionToSize(buildPositionToSize(offsets, cdStart))

	return &RemoteZip{rio: rio, reader: reader}, nil
}

// Names returns every member's path, in central-directory order.
func (z *RemoteZip) Names() []string {
	names := make([]string, len(z.reader.File))
	for i, f := range z.reader.File {
		names[i] = f.Name
	}
	return names
}

// Stat returns the fs.FileInfo for the named member, and whether it was
// found.
func (z *RemoteZip) Stat(name string) (fs.FileInfo, bool) {
	for _, f := range z.reader.File {
		if f.Name == name {
			return f.FileInfo(), true
		}
	}
	return nil, false
}

// Open opens the named member for streaming, reading exactly the bytes
// that member occupies (bounded by the position-to-size map installed
// at construction) and decompressing them as archive/zip normally
// would.
func (z *RemoteZip) Open(name string) (io.ReadCloser, error) {
	for _, f := range z.reader.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("remotezip: no such member: %s", name)
}

// TestZip walks every member, decompressing and discarding its content
// to exercise the CRC validation the reader from archive/zip.File.Open
// performs when a member is read to its end, and returns the first error
// encountered, if any. progress,
// if non-nil, is called with each member's name before it's opened.
func (z *RemoteZip) TestZip(progress func(name string)) error {
	for _, f := range z.reader.File {
		if progress != nil {
			progress(f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("remotezip: opening %s: %w", f.Name, err)
		}
		_, err = io.Copy(io.Discard, rc)
		closeErr := rc.Close()
		if err != nil {
			return fmt.Errorf("remotezip: reading %s: %w", f.Name, err)
		}
		if closeErr != nil {
			return fmt.Errorf("remotezip: closing %s: %w", f.Name, closeErr)
		}
	}
	return nil
}

// Close releases the underlying RemoteIO's connection. Idempotent: it
// is always safe to call, even if no member was ever read.
func (z *RemoteZip) Close() error {
	return z.rio.Close()
}
