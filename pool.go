package remotezip

import "github.com/valyala/bytebufferpool"

// probeBufferPool pools the []byte backing non-streaming PartialBuffers —
// the "probe" fetches RemoteIO issues while locating the
// end-of-central-directory record and walking the central directory.
// Probe fetches are small, numerous and short-lived, which is exactly
// the allocation pattern bytebufferpool targets, so we reuse it
// directly rather than hand-rolling a sync.Pool around []byte.
var probeBufferPool bytebufferpool.Pool

// getProbeBuffer returns a pooled, reset ByteBuffer. A PartialBuffer
// built over it returns it to the pool via putProbeBuffer in its Close.
func getProbeBuffer() *bytebufferpool.ByteBuffer {
	bb := probeBufferPool.Get()
	bb.Reset()
	return bb
}

func putProbeBuffer(bb *bytebufferpool.ByteBuffer) {
	if bb == nil {
		return
	}
	probeBufferPool.Put(bb)
}

