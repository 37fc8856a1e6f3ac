package gateway

import (
	"compress/flate"
	"compress/gzip"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
)

// originUserAgent is sent on every origin request.
const originUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:140.0) Gecko/20100101 Firefox/140.0"

// OriginClient issues requests to the CDN. Redirects are never followed
// automatically: the proxy inspects Location headers itself to drive host
// failover and client-visible redirects. One OriginClient is shared by all
// in-flight streams, so the underlying client is swapped, never mutated.
type OriginClient struct {
	mu      sync.RWMutex
	client  *http.Client
	timeout time.Duration
}

func newOriginTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   6,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: newOriginTransport(),
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// NewOriginClient returns a client with the given per-request timeout.
// A zero timeout means no limit, which streaming chunk fetches rely on.
func NewOriginClient(timeout time.Duration) *OriginClient {
	return &OriginClient{client: newHTTPClient(timeout), timeout: timeout}
}

// Do executes the request, setting the gateway User-Agent when absent.
func (c *OriginClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", originUserAgent)
	}
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	return client.Do(req)
}

// Rebuild swaps in a fresh transport so a retried chunk does not reuse the
// keep-alive connection origin just reset. Streams already inside Do keep the
// old client; only its idle connections are closed.
func (c *OriginClient) Rebuild() {
	fresh := newHTTPClient(c.timeout)
	c.mu.Lock()
	old := c.client
	c.client = fresh
	c.mu.Unlock()
	old.CloseIdleConnections()
}

// isConnectError reports whether err is an address-resolution or connect
// failure, the condition that triggers host failover during probing.
func isConnectError(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}

// isConnReset reports whether err is the "connection reset" condition that is
// retried at chunk level. Every other transport failure is fatal for the
// request being served.
func isConnReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset")
}

// decompressedBody wraps resp.Body with a decoder matching its
// Content-Encoding (gzip, deflate, or brotli). Used for manifest and caption
// fetches, which the gateway parses; playback bodies pass through untouched.
func decompressedBody(resp *http.Response) io.ReadCloser {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		reader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return resp.Body
		}
		return &decodeReader{reader: reader, closer: resp.Body}
	case "deflate":
		return &decodeReader{reader: flate.NewReader(resp.Body), closer: resp.Body}
	case "br":
		return &decodeReader{reader: brotli.NewReader(resp.Body), closer: resp.Body}
	default:
		return resp.Body
	}
}

// decodeReader pairs a decompression reader with the original body closer.
type decodeReader struct {
	reader io.Reader
	closer io.Closer
}

func (d *decodeReader) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *decodeReader) Close() error {
	if closer, ok := d.reader.(io.Closer); ok {
		closer.Close()
	}
	return d.closer.Close()
}
