package remotezip

import (
	"bytes"
	"fmt"
	"io"
)

// fakeRangeFetcher serves ranges out of an in-memory byte slice so
// every other component can be exercised without a real HTTP server.
type fakeRangeFetcher struct {
	data []byte
}

func (f *fakeRangeFetcher) Fetch(rng Range, stream bool) (*PartialBuffer, error) {
	fsize := int64(len(f.data))

	var min, max int64
	switch {
	case rng.isSuffix():
		n := -rng.start
		min = fsize - n
		if min < 0 {
			min = 0
		}
		max = fsize - 1
	case rng.end < 0:
		min, max = rng.start, fsize-1
	default:
		min, max = rng.start, rng.end
	}
	if max >= fsize {
		max = fsize - 1
	}
	if min < 0 || min > max {
		return nil, fmt.Errorf("fakeRangeFetcher: invalid range %d-%d over %d bytes", min, max, fsize)
	}

	body := append([]byte(nil), f.data[min:max+1]...)
	if stream {
		return newStreamPartialBuffer(io.NopCloser(bytes.NewReader(body)), min, int64(len(body))), nil
	}
	return newMemPartialBuffer(body, min, nil), nil
}
