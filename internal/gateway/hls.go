package gateway

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// PlaylistKind distinguishes multivariant (master) playlists from media
// playlists.
type PlaylistKind int

const (
	PlaylistUnknown PlaylistKind = iota
	PlaylistMultivariant
	PlaylistMedia
)

func (k PlaylistKind) String() string {
	switch k {
	case PlaylistMultivariant:
		return "multivariant"
	case PlaylistMedia:
		return "media"
	default:
		return "unknown"
	}
}

// ClassifyHLSPlaylist parses the playlist and reports its kind. Rewriting is
// line-based and does not depend on the parse succeeding, but the kind feeds
// logging and lets malformed manifests surface early.
func ClassifyHLSPlaylist(body []byte) PlaylistKind {
	pl, err := playlist.Unmarshal(body)
	if err != nil {
		return PlaylistUnknown
	}
	switch pl.(type) {
	case *playlist.Multivariant:
		return PlaylistMultivariant
	case *playlist.Media:
		return PlaylistMedia
	default:
		return PlaylistUnknown
	}
}

var (
	hlsChunkHostAliasRe = regexp.MustCompile(`r(\d+)---`)
	hlsURIAttrRe        = regexp.MustCompile(`URI="([^"]+)"`)
)

// RewriteHLSManifest rewrites every absolute URL in an origin playlist so it
// routes back through the gateway. URI lines are rewritten whole; tag lines
// only in their URI="..." attribute. The playlist structure is otherwise
// preserved byte for byte, nonstandard tags included.
func RewriteHLSManifest(body []byte, baseURL string) ([]byte, PlaylistKind) {
	kind := ClassifyHLSPlaylist(body)
	base := strings.TrimSuffix(baseURL, "/")

	lines := strings.Split(string(body), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			lines[i] = hlsURIAttrRe.ReplaceAllStringFunc(line, func(attr string) string {
				sub := hlsURIAttrRe.FindStringSubmatch(attr)
				return `URI="` + rewriteHLSURL(sub[1], base) + `"`
			})
			continue
		}
		lines[i] = rewriteHLSURL(trimmed, base)
	}
	return []byte(strings.Join(lines, "\n")), kind
}

// rewriteHLSURL routes one absolute URL through the gateway. Path-encoded
// playback URLs are decoded to the canonical query form; everything else
// keeps its path and query under the gateway's base. Relative URLs pass
// through untouched.
func rewriteHLSURL(raw, base string) string {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return raw
	}

	if rest, ok := strings.CutPrefix(u.Path, "/videoplayback/"); ok {
		params, err := DecodePathParams("/" + rest)
		if err != nil {
			return raw
		}
		if host := params.Get("hls_chunk_host"); host != "" {
			if m := hlsChunkHostAliasRe.FindStringSubmatch(host); m != nil {
				params.Set("fvip", m[1])
			}
		}
		params.Set("local", "true")
		return base + "/videoplayback?" + params.Encode()
	}

	q := u.Query()
	q.Set("local", "true")
	return base + u.Path + "?" + q.Encode()
}
