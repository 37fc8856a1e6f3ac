package gateway

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"media-gateway/internal/platform/metrics"
)

// probeAttempts is the total attempt budget for host probing, covering
// redirects, connection failures, and swallowed transport errors alike.
const probeAttempts = 5

// PlaybackRequest is the per-connection state of one proxied playback stream.
// It is owned exclusively by the handler serving that connection.
type PlaybackRequest struct {
	// Path is the origin request path+query, rewritten in place when origin
	// redirects during probing.
	Path     string
	Selector *HostSelector
	Range    ByteRange
	// HasRange records whether the client sent an explicit Range header; it
	// drives the 206-to-200 normalization on the first chunk.
	HasRange bool
	Title    string
}

// followRedirect switches the request to the redirect target's path+query,
// appending host= (and region=) so subsequent chunk requests reach the new
// host without re-resolving.
func (preq *PlaybackRequest) followRedirect(loc *url.URL) {
	q := loc.Query()
	q.Set("host", loc.Host)
	if preq.Selector.Region != "" {
		q.Set("region", preq.Selector.Region)
	}
	loc.RawQuery = q.Encode()
	preq.Path = loc.RequestURI()
	preq.Selector.AdvanceOnRedirect(loc)
}

// ChunkedProxy is the range-tiling, retrying byte-stream forwarder for
// /videoplayback. Within one client request all origin calls are sequential;
// chunks are requested and flushed strictly in increasing byte order.
type ChunkedProxy struct {
	origin  *OriginClient
	pool    *ConnectionPool
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewChunkedProxy returns a proxy using the given origin client and pool.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewChunkedProxy(origin *OriginClient, pool *ConnectionPool, log *slog.Logger, m *metrics.Metrics) *ChunkedProxy {
	return &ChunkedProxy{origin: origin, pool: pool, log: log, metrics: m}
}

// Serve probes the origin host, then tiles the client's byte range with
// fixed-size chunk requests, streaming each response body through unbuffered.
func (p *ChunkedProxy) Serve(w http.ResponseWriter, r *http.Request, preq *PlaybackRequest) {
	if p.metrics != nil {
		p.metrics.StreamStarted()
		defer p.metrics.StreamFinished()
	}

	resp, err := p.probe(r, preq)
	if err != nil {
		p.log.Warn("origin unreachable",
			slog.String("host", preq.Selector.Host()),
			slog.String("error", err.Error()))
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 400 {
		if p.metrics != nil {
			p.metrics.IncOriginErrors()
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(resp.StatusCode)
		return
	}

	p.stream(w, r, preq)
}

// probe issues HEAD requests against the current host, following redirects
// and failing over on connection errors, up to probeAttempts total attempts.
// The last response stands as the answer once the budget is spent.
func (p *ChunkedProxy) probe(r *http.Request, preq *PlaybackRequest) (*http.Response, error) {
	ctx := r.Context()

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt < probeAttempts; attempt++ {
		if resp != nil {
			resp.Body.Close()
			resp = nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, preq.Selector.Current()+preq.Path, nil)
		if err != nil {
			return nil, err
		}

		release, err := p.pool.Acquire(ctx, preq.Selector.Host())
		if err != nil {
			return nil, err
		}
		resp, err = p.origin.Do(req)
		release()

		if err != nil {
			lastErr = err
			if isConnectError(err) {
				if p.metrics != nil {
					p.metrics.IncFailovers()
				}
				if !preq.Selector.AdvanceOnFailure() {
					return nil, fmt.Errorf("host candidates exhausted: %w", err)
				}
			}
			// Other transport errors are swallowed; the attempt budget bounds them.
			continue
		}

		if loc := resp.Header.Get("Location"); loc != "" {
			if u, perr := url.Parse(loc); perr == nil {
				preq.followRedirect(u)
				continue
			}
		}
		return resp, nil
	}

	if resp == nil {
		return nil, lastErr
	}
	return resp, nil
}

// clientWriter records the first write error so a broken client sink can be
// told apart from an origin read error after io.Copy.
type clientWriter struct {
	w   io.Writer
	err error
}

func (cw *clientWriter) Write(b []byte) (int, error) {
	n, err := cw.w.Write(b)
	if err != nil && cw.err == nil {
		cw.err = err
	}
	return n, err
}

// stream runs the chunk loop: clamp the window, GET it, emit headers on the
// first chunk, copy the body through, advance. contentLength is fixed once
// learned from the first origin response.
func (p *ChunkedProxy) stream(w http.ResponseWriter, r *http.Request, preq *PlaybackRequest) {
	ctx := r.Context()

	window := NewChunkWindow(preq.Range)
	rangeEnd := int64(-1)
	if preq.Range.HasEnd {
		rangeEnd = preq.Range.End
	}
	contentLength := int64(-1)

	for {
		if ctx.Err() != nil {
			return
		}
		// contentLength clamps the effective range end even when the client
		// asked for bytes past EOF.
		if contentLength >= 0 && (rangeEnd < 0 || rangeEnd > contentLength-1) {
			rangeEnd = contentLength - 1
		}
		if rangeEnd >= 0 {
			if window.Start > rangeEnd {
				return // all requested bytes delivered
			}
			window.ClampTo(rangeEnd)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, preq.Selector.Current()+preq.Path, nil)
		if err != nil {
			return
		}
		req.Header = FilterRequestHeaders(r.Header)
		req.Header.Set("Range", window.RangeHeader())

		release, err := p.pool.Acquire(ctx, preq.Selector.Host())
		if err != nil {
			return
		}
		resp, err := p.origin.Do(req)
		if err != nil {
			release()
			if isConnReset(err) {
				// Nothing was emitted for this chunk yet; rebuild the client
				// and retry the same window.
				p.origin.Rebuild()
				continue
			}
			return
		}
		if p.metrics != nil {
			p.metrics.IncChunks()
		}

		fullBody := false
		if window.First {
			if loc := resp.Header.Get("Location"); loc != "" {
				resp.Body.Close()
				release()
				p.redirectClient(w, resp.StatusCode, loc, preq)
				return
			}
			contentLength, fullBody = p.writeFirstChunkHeaders(w, resp, preq)
		} else if resp.StatusCode >= 400 {
			// Mid-stream origin error. The error body must never leak into
			// the media stream; whatever was already flushed stands.
			resp.Body.Close()
			release()
			return
		}

		cw := &clientWriter{w: w}
		_, copyErr := io.Copy(cw, resp.Body)
		resp.Body.Close()
		release()

		if cw.err != nil {
			// Client disconnected: stop without further origin calls.
			return
		}
		if copyErr != nil {
			// Origin failed mid-body; whatever was flushed stands.
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		if fullBody {
			// Origin ignored the range and already delivered everything.
			return
		}
		if rangeEnd < 0 && contentLength < 0 {
			// Origin answered without a length (chunked transfer); there is
			// nothing left to tile.
			return
		}
		window.Advance()
	}
}

// writeFirstChunkHeaders emits the client-visible status and headers for the
// first chunk. It returns the total content length when origin revealed one
// (else -1), and whether origin ignored the range and sent the full body.
func (p *ChunkedProxy) writeFirstChunkHeaders(w http.ResponseWriter, resp *http.Response, preq *PlaybackRequest) (int64, bool) {
	status := resp.StatusCode
	if !preq.HasRange && status == http.StatusPartialContent {
		// The client is unaware of internal chunking and must see a
		// full-content response by default.
		status = http.StatusOK
	}

	headers := FilterResponseHeaders(resp.Header)
	headers.Del("Content-Range")
	headers.Del("Content-Length")
	for key, values := range headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if preq.Title != "" {
		w.Header().Set("Content-Disposition", attachmentDisposition(preq.Title))
	}

	contentLength := int64(-1)
	fullBody := false
	if len(resp.TransferEncoding) == 0 {
		if total, ok := ParseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			contentLength = total
			end := contentLength - 1
			if preq.Range.HasEnd && preq.Range.End < end {
				end = preq.Range.End
			}
			if preq.HasRange {
				w.Header().Set("Content-Range",
					fmt.Sprintf("bytes %d-%d/%d", preq.Range.Start, end, contentLength))
				w.Header().Set("Content-Length", strconv.FormatInt(end-preq.Range.Start+1, 10))
			} else {
				w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
			}
		} else if resp.ContentLength >= 0 && status == http.StatusOK {
			// Origin ignored the range and sent the whole file.
			contentLength = resp.ContentLength
			fullBody = true
			w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
		}
	}

	w.WriteHeader(status)
	return contentLength, fullBody
}

// redirectClient translates an origin redirect on the first chunk into a
// client redirect through the gateway, carrying the routing hints.
func (p *ChunkedProxy) redirectClient(w http.ResponseWriter, status int, loc string, preq *PlaybackRequest) {
	u, err := url.Parse(loc)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	q := u.Query()
	q.Set("host", u.Host)
	if preq.Selector.Region != "" {
		q.Set("region", preq.Selector.Region)
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Location", "/videoplayback?"+q.Encode())
	if status < 300 || status >= 400 {
		status = http.StatusFound
	}
	w.WriteHeader(status)
}

// attachmentDisposition renders a Content-Disposition attachment. The quoted
// filename carries the plain title for legacy clients; the RFC 5987 filename*
// form carries the percent-encoded one.
func attachmentDisposition(title string) string {
	quoted := strings.ReplaceAll(title, `\`, `\\`)
	quoted = strings.ReplaceAll(quoted, `"`, `\"`)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, quoted, url.PathEscape(title))
}
