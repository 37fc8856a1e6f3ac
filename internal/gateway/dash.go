package gateway

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// resolutionLadder is the fixed set of client-facing heights. Source heights
// snap to the nearest entry by absolute difference, ties going to the earlier
// ladder entry.
var resolutionLadder = []int{4320, 2160, 1440, 1080, 720, 480, 360, 240, 144}

// dashMimeGroups are the adaptation-set groups, in emission order.
var dashMimeGroups = []string{"audio/mp4", "audio/webm", "video/mp4", "video/webm"}

// DASHOptions controls manifest generation.
type DASHOptions struct {
	// Local routes BaseURLs back through the gateway instead of directly at
	// the CDN. BaseURL is the gateway's public base URL, used when Local.
	Local   bool
	BaseURL string
	// UniqueRes keeps only the first representation per snapped height within
	// each mime group.
	UniqueRes bool
}

// The MPD document model. Tagged elements with typed attributes, so manifest
// assembly is structural rather than stringly typed.
type mpdDocument struct {
	XMLName       xml.Name     `xml:"MPD"`
	XMLNS         string       `xml:"xmlns,attr"`
	Profiles      string       `xml:"profiles,attr"`
	Type          string       `xml:"type,attr"`
	Duration      string       `xml:"mediaPresentationDuration,attr,omitempty"`
	MinBufferTime string       `xml:"minBufferTime,attr"`
	Period        mpdPeriod    `xml:"Period"`
}

type mpdPeriod struct {
	AdaptationSets []mpdAdaptationSet `xml:"AdaptationSet"`
}

type mpdAdaptationSet struct {
	ID                  int                 `xml:"id,attr"`
	MimeType            string              `xml:"mimeType,attr"`
	StartWithSAP        int                 `xml:"startWithSAP,attr"`
	SubsegmentAlignment bool                `xml:"subsegmentAlignment,attr"`
	Representations     []mpdRepresentation `xml:"Representation"`
}

type mpdRepresentation struct {
	ID          string          `xml:"id,attr"`
	Codecs      string          `xml:"codecs,attr,omitempty"`
	Bandwidth   int             `xml:"bandwidth,attr"`
	Width       int             `xml:"width,attr,omitempty"`
	Height      int             `xml:"height,attr,omitempty"`
	FrameRate   int             `xml:"frameRate,attr,omitempty"`
	BaseURL     string          `xml:"BaseURL"`
	SegmentBase *mpdSegmentBase `xml:"SegmentBase"`
}

type mpdSegmentBase struct {
	IndexRange     string             `xml:"indexRange,attr"`
	Initialization *mpdInitialization `xml:"Initialization"`
}

type mpdInitialization struct {
	Range string `xml:"range,attr"`
}

// BuildDASHManifest generates a static MPD from the video's format list.
func BuildDASHManifest(video *Video, opts DASHOptions) ([]byte, error) {
	doc := mpdDocument{
		XMLNS:         "urn:mpeg:dash:schema:mpd:2011",
		Profiles:      "urn:mpeg:dash:profile:full:2011",
		Type:          "static",
		MinBufferTime: "PT1.5S",
	}
	if video.LengthSeconds > 0 {
		doc.Duration = fmt.Sprintf("PT%dS", video.LengthSeconds)
	}

	setID := 0
	for _, mime := range dashMimeGroups {
		group := formatsByMime(video.Formats, mime)
		if len(group) == 0 {
			continue
		}

		set := mpdAdaptationSet{
			ID:                  setID,
			MimeType:            mime,
			StartWithSAP:        1,
			SubsegmentAlignment: true,
		}

		if strings.HasPrefix(mime, "video/") {
			sort.SliceStable(group, func(i, j int) bool {
				if group[i].Width != group[j].Width {
					return group[i].Width > group[j].Width
				}
				return group[i].FPS > group[j].FPS
			})
		}

		seenHeights := make(map[int]bool)
		for _, f := range group {
			rep := mpdRepresentation{
				ID:        fmt.Sprintf("%d", f.Itag),
				Codecs:    f.Codecs,
				Bandwidth: f.Bitrate,
				BaseURL:   representationURL(f, opts),
			}
			if strings.HasPrefix(mime, "video/") {
				height := snapHeight(f.Height)
				if opts.UniqueRes {
					if seenHeights[height] {
						continue
					}
					seenHeights[height] = true
				}
				rep.Width = f.Width
				rep.Height = height
				rep.FrameRate = f.FPS
			}
			if f.IndexRange != nil {
				seg := &mpdSegmentBase{
					IndexRange: fmt.Sprintf("%d-%d", f.IndexRange.Start, f.IndexRange.End),
				}
				if f.InitRange != nil {
					seg.Initialization = &mpdInitialization{
						Range: fmt.Sprintf("%d-%d", f.InitRange.Start, f.InitRange.End),
					}
				}
				rep.SegmentBase = seg
			}
			set.Representations = append(set.Representations, rep)
		}

		doc.Period.AdaptationSets = append(doc.Period.AdaptationSets, set)
		setID++
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling MPD: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// formatsByMime returns the formats whose mime type (sans codec parameters)
// equals mime, in encounter order.
func formatsByMime(formats []StreamFormat, mime string) []StreamFormat {
	var out []StreamFormat
	for _, f := range formats {
		mt, _, _ := strings.Cut(f.MimeType, ";")
		if strings.TrimSpace(mt) == mime {
			out = append(out, f)
		}
	}
	return out
}

// snapHeight maps a source height to the nearest ladder entry by absolute
// difference; ties keep the earlier ladder entry.
func snapHeight(height int) int {
	best := resolutionLadder[0]
	bestDiff := absInt(height - best)
	for _, h := range resolutionLadder[1:] {
		if d := absInt(height - h); d < bestDiff {
			best = h
			bestDiff = d
		}
	}
	return best
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// representationURL returns the BaseURL for a format: the signed origin URL
// directly, or the same request routed back through the gateway with the CDN
// host carried as an explicit override.
func representationURL(f StreamFormat, opts DASHOptions) string {
	if !opts.Local {
		return f.URL
	}
	u, err := url.Parse(f.URL)
	if err != nil {
		return f.URL
	}
	q := u.Query()
	q.Set("host", u.Host)
	return strings.TrimSuffix(opts.BaseURL, "/") + u.Path + "?" + q.Encode()
}

var dashBaseURLRe = regexp.MustCompile(`<BaseURL>([^<]+)</BaseURL>`)

// RewriteDASHManifest rewrites every absolute BaseURL in an origin MPD so its
// scheme+host become the gateway's public base URL, carrying the original
// host as an explicit override. Regex rewriting keeps the rest of the
// document byte-identical.
func RewriteDASHManifest(doc []byte, baseURL string) []byte {
	base := strings.TrimSuffix(baseURL, "/")
	return dashBaseURLRe.ReplaceAllFunc(doc, func(match []byte) []byte {
		sub := dashBaseURLRe.FindSubmatch(match)
		raw := string(sub[1])
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return match
		}
		q := u.Query()
		q.Set("host", u.Host)
		rewritten := base + u.Path + "?" + q.Encode()
		return []byte("<BaseURL>" + rewritten + "</BaseURL>")
	})
}
