package remotezip

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/cognusion/go-sequence"
	"github.com/cognusion/go-timings"
	"github.com/eapache/go-resiliency/retrier"
	"github.com/valyala/fasthttp"
)

// seq mints short correlation IDs for debug logging, tagging every
// fetch with a dlid so interleaved log lines from multiple opened
// archives stay distinguishable.
var seq = sequence.New(0)

// Range is one of the three byte-range forms a RangeFetcher accepts:
//
//	AbsoluteRange(a, b): request bytes a..=b
//	OpenRange(a):        request from a to end
//	SuffixRange(n):      request the last n bytes
type Range struct {
	start int64
	end   int64 // -1 sentinel: open-ended or suffix
}

// AbsoluteRange requests the inclusive byte span [a, b].
func AbsoluteRange(a, b int64) Range { return Range{start: a, end: b} }

// OpenRange requests from a to the end of the file.
func OpenRange(a int64) Range { return Range{start: a, end: -1} }

// SuffixRange requests the last n bytes of the file.
func SuffixRange(n int64) Range { return Range{start: -n, end: -1} }

// isSuffix reports whether this is a suffix-range request.
func (r Range) isSuffix() bool { return r.end == -1 && r.start < 0 }

// header renders the Range request header value, e.g. "bytes=a-b",
// "bytes=a-", or "bytes=-n".
func (r Range) header() string {
	if r.end >= 0 {
		return fmt.Sprintf("bytes=%d-%d", r.start, r.end)
	}
	if r.start >= 0 {
		return fmt.Sprintf("bytes=%d-", r.start)
	}
	return fmt.Sprintf("bytes=%d", r.start)
}

// RangeFetcher issues one byte-range request and returns the resulting
// window. Implementations are injectable: tests substitute a local-file
// backend, callers may substitute a preconfigured session.
type RangeFetcher interface {
	Fetch(rng Range, stream bool) (*PartialBuffer, error)
}

// httpRangeFetcher is the default RangeFetcher, built on fasthttp. Each
// fetch is wrapped in a bounded constant-backoff retry (the same shape
// retryclient.go applies around net/http) and a timings.Track call so
// callers who configure WithTimingsLog can observe per-fetch latency.
type httpRangeFetcher struct {
	url    string
	client *fasthttp.Client

	supportSuffixRange bool
	retrier            *retrier.Retrier

	debugOut   *log.Logger
	timingsOut *log.Logger

	rangeNotSupportedSeen bool
}

func newHTTPRangeFetcher(url string, o *options) *httpRangeFetcher {
	client := o.client
	if client == nil {
		client = &fasthttp.Client{
			ReadTimeout:  o.requestTimeout,
			WriteTimeout: o.requestTimeout,
		}
	}

	return &httpRangeFetcher{
		url:                url,
		client:             client,
		supportSuffixRange: o.supportSuffixRange,
		retrier:            retrier.New(retrier.ConstantBackoff(o.retries, o.retryBackoff), nil),
		debugOut:           o.debugOut,
		timingsOut:         o.timingsOut,
	}
}

// Fetch implements RangeFetcher.
func (f *httpRangeFetcher) Fetch(rng Range, stream bool) (pb *PartialBuffer, err error) {
	dlid := seq.NextHashID()
	defer timings.Track(fmt.Sprintf("[%s] range fetch %s", dlid, rng.header()), time.Now(), f.timingsOut)

	if rng.isSuffix() && !f.supportSuffixRange {
		rng, err = f.rewriteSuffixRange(rng)
		if err != nil {
			return nil, err
		}
		f.debugOut.Printf("[%s] suffix range disabled: HEAD %s, rewrote range to %s\n", dlid, f.url, rng.header())
	}

	f.debugOut.Printf("[%s] GET %s Range: %s stream=%v\n", dlid, f.url, rng.header(), stream)

	var (
		statusCode   int
		contentRange string
		body         []byte
	)

	tryErr := f.retrier.Run(func() error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)

		req.SetRequestURI(f.url)
		req.Header.SetMethod(fasthttp.MethodGet)
		req.Header.Set(fasthttp.HeaderRange, rng.header())

		if err := f.client.Do(req, resp); err != nil {
			fasthttp.ReleaseResponse(resp)
			return err
		}

		statusCode = resp.StatusCode()
		contentRange = string(resp.Header.Peek(fasthttp.HeaderContentRange))
		body = append([]byte(nil), resp.Body()...)
		fasthttp.ReleaseResponse(resp)

		if statusCode >= 500 {
			return fmt.Errorf("remotezip: server returned status %d", statusCode)
		}
		return nil
	})
	if tryErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteIO, tryErr)
	}

	if statusCode != fasthttp.StatusPartialContent && statusCode != fasthttp.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrRemoteIO, statusCode)
	}

	if contentRange == "" {
		f.rangeNotSupportedSeen = true
		return nil, ErrRangeNotSupported
	}

	min, max, err := parseContentRange(contentRange)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemoteIO, err)
	}

	if stream {
		return newStreamPartialBuffer(io.NopCloser(bytes.NewReader(body)), min, max-min+1), nil
	}

	bb := getProbeBuffer()
	if _, err := bb.Write(body); err != nil {
		putProbeBuffer(bb)
		return nil, fmt.Errorf("%w: %v", ErrRemoteIO, err)
	}
	return newMemPartialBuffer(bb.B, min, bb), nil
}

// rewriteSuffixRange implements the suffix-range compatibility fallback:
// some servers reject bytes=-n. We HEAD the URL to learn Content-Length
// and rewrite the range to an explicit absolute span.
func (f *httpRangeFetcher) rewriteSuffixRange(rng Range) (Range, error) {
	n := -rng.start

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(f.url)
	req.Header.SetMethod(fasthttp.MethodHead)

	if err := f.client.Do(req, resp); err != nil {
		return Range{}, fmt.Errorf("%w: %v", ErrRemoteIO, err)
	}

	length := resp.Header.ContentLength()
	if length <= 0 {
		return Range{}, fmt.Errorf("%w: HEAD response lacked Content-Length", ErrRemoteIO)
	}

	fsize := int64(length)
	start := fsize - n
	if start < 0 {
		start = 0
	}
	return AbsoluteRange(start, fsize-1), nil
}

// parseContentRange extracts <min> and <max> from a header of the form
// "bytes <min>-<max>/<total>"; <total> (numeric or "*") is ignored since
// only the served span matters to the caller.
func parseContentRange(header string) (min, max int64, err error) {
	header = strings.TrimSpace(header)
	header = strings.TrimPrefix(header, "bytes ")
	span := header
	if i := strings.IndexByte(header, '/'); i >= 0 {
		span = header[:i]
	}

	parts := strings.SplitN(span, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed Content-Range: %q", header)
	}

	min, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed Content-Range min: %q", header)
	}
	max, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed Content-Range max: %q", header)
	}
	return min, max, nil
}
