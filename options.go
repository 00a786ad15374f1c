package remotezip

import (
	"io"
	"log"
	"time"

	"github.com/valyala/fasthttp"
)

// defaultInitialBufferSize is the size of the first suffix-range probe
// issued while bootstrapping RemoteIO, sized to comfortably hold the
// end-of-central-directory record plus a realistic archive comment.
const defaultInitialBufferSize = 64 * 1024

// discardLogger returns a logger that discards everything it is given.
// It is used whenever a caller doesn't supply a logger of their own.
func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// options collects construction-time settings for a RemoteZip / RangeFetcher.
// These gate construction-only concerns; nothing here is mutated once the
// archive is open; nothing here is mutated while the archive is in use.
type options struct {
	client             *fasthttp.Client
	fetcher            RangeFetcher
	initialBufferSize  int
	supportSuffixRange bool
	retries            int
	retryBackoff       time.Duration
	requestTimeout     time.Duration
	debugOut           *log.Logger
	timingsOut         *log.Logger
}

func defaultOptions() *options {
	return &options{
		initialBufferSize:  defaultInitialBufferSize,
		supportSuffixRange: true,
		retries:            3,
		retryBackoff:       250 * time.Millisecond,
		requestTimeout:     30 * time.Second,
		debugOut:           discardLogger(),
		timingsOut:         discardLogger(),
	}
}

// Option configures a RemoteZip at construction time.
type Option func(*options)

// WithHTTPClient overrides the fasthttp.Client used to issue range
// requests. Useful for callers who want to tune connection pooling or
// TLS settings.
func WithHTTPClient(client *fasthttp.Client) Option {
	return func(o *options) { o.client = client }
}

// WithInitialBufferSize overrides the size of the first suffix-range
// probe used to locate the end-of-central-directory record.
func WithInitialBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.initialBufferSize = size
		}
	}
}

// WithoutSuffixRange disables `bytes=-n` suffix-range requests. Some
// servers reject them; when disabled, the fetcher issues a HEAD request
// first to learn Content-Length and rewrites the range explicitly.
func WithoutSuffixRange() Option {
	return func(o *options) { o.supportSuffixRange = false }
}

// WithRetries configures the bounded constant-backoff retry applied to
// each outgoing range fetch on transient transport failure.
func WithRetries(retries int, backoff time.Duration) Option {
	return func(o *options) {
		if retries >= 0 {
			o.retries = retries
		}
		if backoff > 0 {
			o.retryBackoff = backoff
		}
	}
}

// WithRequestTimeout overrides the per-request timeout used by the
// default fasthttp.Client.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithDebugLog routes debug-level messages (issued ranges, suffix-range
// fallbacks, deferred-fetch seeks) to the given logger. Discarded by
// default.
func WithDebugLog(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.debugOut = l
		}
	}
}

// WithTimingsLog routes per-fetch latency lines to the given logger.
// Discarded by default.
func WithTimingsLog(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.timingsOut = l
		}
	}
}
