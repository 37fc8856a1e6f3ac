package gateway

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"media-gateway/internal/platform/logger"
	"media-gateway/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const (
	dashContentType = "application/dash+xml"
	hlsContentType  = "application/x-mpegURL"
	vttContentType  = "text/vtt; charset=UTF-8"

	disabledEndpointMessage = "Administrator has disabled this endpoint."

	hlsOriginBase = "https://manifest.googlevideo.com"
)

// captionHostSuffixes are the origin hosts caption tracks may be fetched from.
var captionHostSuffixes = []string{
	".ytimg.com", ".ggpht.com", ".googleusercontent.com",
	".googlevideo.com", ".youtube.com",
}

// Handler exposes the gateway HTTP endpoints using go-chi.
type Handler struct {
	resolver Resolver
	proxy    *ChunkedProxy
	origin   *OriginClient
	features Features
	baseURL  string
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler over the given resolver, playback proxy, and
// manifest-fetching origin client. baseURL is the gateway's public base URL
// used when rewriting manifests. Metrics may be nil to disable metric
// recording (e.g. in tests).
func NewHandler(resolver Resolver, proxy *ChunkedProxy, origin *OriginClient, features Features, baseURL string, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		resolver: resolver,
		proxy:    proxy,
		origin:   origin,
		features: features,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		log:      log,
		metrics:  m,
	}
}

// Register mounts all gateway routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/videoplayback", h.Videoplayback)
	r.Options("/videoplayback", h.PlaybackPreflight)
	r.Get("/videoplayback/*", h.VideoplaybackPath)
	r.Options("/videoplayback/*", h.PlaybackPreflight)

	r.Get("/api/manifest/dash/id/videoplayback", h.DashPlaybackRedirect)
	r.Get("/api/manifest/dash/id/videoplayback/*", h.DashPlaybackPathRedirect)
	r.Get("/api/manifest/dash/id/{id}", h.DashManifest)
	r.Options("/api/manifest/dash/id/{id}", h.PlaybackPreflight)
	r.Get("/api/manifest/hls_variant/*", h.HLSManifest)
	r.Get("/api/manifest/hls_playlist/*", h.HLSManifest)
	r.Options("/api/manifest/hls_variant/*", h.PlaybackPreflight)
	r.Options("/api/manifest/hls_playlist/*", h.PlaybackPreflight)

	r.Get("/api/v1/captions", h.Captions)
}

// Videoplayback handles GET /videoplayback: the chunked byte-range proxy.
func (h *Handler) Videoplayback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if !h.playbackAllowed(q) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(disabledEndpointMessage))
		return
	}

	alias := q.Get("fvip")
	if alias == "" {
		alias = DefaultHostAlias
	}
	var labels []string
	if mn := q.Get("mn"); mn != "" {
		labels = strings.Split(mn, ",")
	}
	selector := NewHostSelector(alias, labels, q.Get("host"), q.Get("region"))

	title := q.Get("title")

	// Routing hints are consumed here; origin sees the remaining parameters.
	originQuery := r.URL.Query()
	originQuery.Del("host")
	originQuery.Del("region")
	originQuery.Del("title")
	originQuery.Del("local")

	rangeHeader := r.Header.Get("Range")
	preq := &PlaybackRequest{
		Path:     "/videoplayback?" + originQuery.Encode(),
		Selector: selector,
		Range:    ParseRange(rangeHeader),
		HasRange: rangeHeader != "",
		Title:    title,
	}

	h.log.Debug("playback stream",
		slog.String("host", selector.Host()),
		slog.String("range", rangeHeader),
		slog.String("request_id", logger.GetRequestID(r.Context())))
	h.proxy.Serve(w, r, preq)
}

// playbackAllowed applies the administrative feature toggles. Live segment
// fetches are gated on livestreams; everything else needs downloads or DASH
// to be enabled.
func (h *Handler) playbackAllowed(q url.Values) bool {
	if q.Get("file") == "seg.ts" {
		return h.features.Livestreams
	}
	return h.features.Downloads || h.features.DASH
}

// VideoplaybackPath handles the legacy path-encoded form, redirecting to the
// canonical query-string form.
func (h *Handler) VideoplaybackPath(w http.ResponseWriter, r *http.Request) {
	h.redirectPathEncoded(w, r, "/videoplayback")
}

// DashPlaybackRedirect forwards /api/manifest/dash/id/videoplayback to the
// playback endpoint, query intact. Origin DASH manifests reference media
// relative to the manifest path.
func (h *Handler) DashPlaybackRedirect(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Location", "/videoplayback?"+r.URL.RawQuery)
	w.WriteHeader(http.StatusFound)
}

// DashPlaybackPathRedirect is the path-encoded variant of DashPlaybackRedirect.
func (h *Handler) DashPlaybackPathRedirect(w http.ResponseWriter, r *http.Request) {
	h.redirectPathEncoded(w, r, "/videoplayback")
}

func (h *Handler) redirectPathEncoded(w http.ResponseWriter, r *http.Request, target string) {
	params, err := DecodePathParams("/" + chi.URLParam(r, "*"))
	if err != nil {
		h.log.Debug("bad path-encoded params", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Location", target+"?"+params.Encode())
	w.WriteHeader(http.StatusFound)
}

// PlaybackPreflight answers CORS preflight on proxy paths. No body, and no
// Content-Type header either.
func (h *Handler) PlaybackPreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Range")
	w.Header().Del("Content-Type")
	w.WriteHeader(http.StatusOK)
}

// DashManifest handles GET /api/manifest/dash/id/{id}. Post-live videos with
// an origin manifest get it fetched and rewritten; everything else gets a
// manifest generated from the format list.
func (h *Handler) DashManifest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	local := q.Get("local") == "true"
	uniqueRes := q.Get("unique_res") == "1" || q.Get("unique_res") == "true"

	video, err := h.resolver.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrVideoNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("resolve failed", slog.String("video_id", id), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if video.DashManifestURL != "" {
		body, status, err := h.fetchOrigin(r, video.DashManifestURL)
		if err != nil {
			h.log.Warn("origin manifest fetch failed",
				slog.String("video_id", id), slog.String("error", err.Error()))
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		if local {
			body = RewriteDASHManifest(body, h.baseURL)
		}
		h.writeManifest(w, dashContentType, body)
		return
	}

	manifest, err := BuildDASHManifest(video, DASHOptions{
		Local:     local,
		BaseURL:   h.baseURL,
		UniqueRes: uniqueRes,
	})
	if err != nil {
		h.log.Error("manifest generation failed", slog.String("video_id", id), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.writeManifest(w, dashContentType, manifest)
}

// HLSManifest handles /api/manifest/hls_variant/* and /api/manifest/hls_playlist/*:
// proxies the playlist from origin and rewrites it when local=true.
func (h *Handler) HLSManifest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	local := q.Get("local") == "true"
	q.Del("local")

	upstream := hlsOriginBase + r.URL.Path
	if enc := q.Encode(); enc != "" {
		upstream += "?" + enc
	}

	body, status, err := h.fetchOrigin(r, upstream)
	if err != nil {
		h.log.Warn("origin playlist fetch failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	if local {
		var kind PlaylistKind
		body, kind = RewriteHLSManifest(body, h.baseURL)
		h.log.Debug("playlist rewritten",
			slog.String("kind", kind.String()),
			slog.String("request_id", logger.GetRequestID(r.Context())))
	}
	h.writeManifest(w, hlsContentType, body)
}

// Captions handles GET /api/v1/captions?url=&label=: fetches an
// auto-generated transcript from an allow-listed origin host and returns it
// as WebVTT.
func (h *Handler) Captions(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || !allowedCaptionHost(u.Host) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	cq := u.Query()
	cq.Set("fmt", "json3")
	u.RawQuery = cq.Encode()

	body, status, err := h.fetchOrigin(r, u.String())
	if err != nil {
		h.log.Warn("caption fetch failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	cues, err := ParseJSON3(body)
	if err != nil {
		h.log.Warn("caption transcript unparsable", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	h.writeManifest(w, vttContentType, TranscodeToVTT(cues))
}

// fetchOrigin GETs the URL through the origin client, decompressing the body.
// A non-200 status is not an error; the body is returned alongside it.
func (h *Handler) fetchOrigin(r *http.Request, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := h.origin.Do(req)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncOriginErrors()
		}
		return nil, 0, err
	}
	body := decompressedBody(resp)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, 0, err
	}
	return data, resp.StatusCode, nil
}

func (h *Handler) writeManifest(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// allowedCaptionHost matches the host against the caption origin allow-list.
func allowedCaptionHost(host string) bool {
	for _, suffix := range captionHostSuffixes {
		if strings.HasSuffix(host, suffix) || host == strings.TrimPrefix(suffix, ".") {
			return true
		}
	}
	return false
}
