package gateway

import (
	"strings"
	"testing"
)

func testVideo() *Video {
	return &Video{
		ID:            "abc123",
		LengthSeconds: 212,
		Formats: []StreamFormat{
			{Itag: 140, URL: "https://rr5---sn-aaa.googlevideo.com/videoplayback?expire=1&itag=140", MimeType: "audio/mp4; codecs=\"mp4a.40.2\"", Codecs: "mp4a.40.2", Bitrate: 129_000},
			{Itag: 251, URL: "https://rr5---sn-aaa.googlevideo.com/videoplayback?expire=1&itag=251", MimeType: "audio/webm; codecs=\"opus\"", Codecs: "opus", Bitrate: 140_000},
			{Itag: 134, URL: "https://rr5---sn-aaa.googlevideo.com/videoplayback?expire=1&itag=134", MimeType: "video/mp4; codecs=\"avc1.4d401e\"", Codecs: "avc1.4d401e", Bitrate: 500_000, Width: 640, Height: 360, FPS: 30},
			{Itag: 136, URL: "https://rr5---sn-aaa.googlevideo.com/videoplayback?expire=1&itag=136", MimeType: "video/mp4; codecs=\"avc1.64001f\"", Codecs: "avc1.64001f", Bitrate: 1_500_000, Width: 1280, Height: 700, FPS: 30,
				IndexRange: &RangeSpec{Start: 700, End: 1500}, InitRange: &RangeSpec{Start: 0, End: 699}},
		},
	}
}

func TestBuildDASHManifest_structure(t *testing.T) {
	out, err := BuildDASHManifest(testVideo(), DASHOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := string(out)

	if !strings.Contains(doc, `mediaPresentationDuration="PT212S"`) {
		t.Error("missing presentation duration")
	}
	for _, mime := range []string{"audio/mp4", "audio/webm", "video/mp4"} {
		if !strings.Contains(doc, `mimeType="`+mime+`"`) {
			t.Errorf("missing adaptation set for %s", mime)
		}
	}
	if strings.Contains(doc, `mimeType="video/webm"`) {
		t.Error("empty mime group must not produce an adaptation set")
	}
	if !strings.Contains(doc, `indexRange="700-1500"`) {
		t.Error("missing SegmentBase index range")
	}
	if !strings.Contains(doc, `range="0-699"`) {
		t.Error("missing Initialization range")
	}
}

func TestBuildDASHManifest_snaps_heights(t *testing.T) {
	out, err := BuildDASHManifest(testVideo(), DASHOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := string(out)

	// 700 is nearer to 720 than to 480; 360 is already on the ladder.
	if !strings.Contains(doc, `height="720"`) {
		t.Error("700 should snap to 720")
	}
	if !strings.Contains(doc, `height="360"`) {
		t.Error("360 should stay 360")
	}
	if strings.Contains(doc, `height="700"`) {
		t.Error("raw height must not leak into the manifest")
	}
}

func TestBuildDASHManifest_video_ordered_by_width(t *testing.T) {
	out, err := BuildDASHManifest(testVideo(), DASHOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := string(out)

	wide := strings.Index(doc, `id="136"`)
	narrow := strings.Index(doc, `id="134"`)
	if wide == -1 || narrow == -1 {
		t.Fatal("video representations missing")
	}
	if wide > narrow {
		t.Error("wider representation must come first")
	}
}

func TestBuildDASHManifest_unique_res(t *testing.T) {
	video := testVideo()
	video.Formats = append(video.Formats, StreamFormat{
		Itag: 135, URL: "https://rr5---sn-aaa.googlevideo.com/videoplayback?expire=1&itag=135",
		MimeType: "video/mp4; codecs=\"avc1.4d401e\"", Codecs: "avc1.4d401e",
		Bitrate: 400_000, Width: 640, Height: 352, FPS: 30,
	})

	out, err := BuildDASHManifest(video, DASHOptions{UniqueRes: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := string(out)

	// 352 and 360 both snap to 360; the first-emitted (itag 134, encountered
	// first at that width) wins.
	if !strings.Contains(doc, `id="134"`) {
		t.Error("first format at a snapped height must be kept")
	}
	if strings.Contains(doc, `id="135"`) {
		t.Error("duplicate snapped height must be dropped")
	}
}

func TestBuildDASHManifest_local_routes_through_gateway(t *testing.T) {
	out, err := BuildDASHManifest(testVideo(), DASHOptions{Local: true, BaseURL: "https://gw.example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := string(out)

	if strings.Contains(doc, "<BaseURL>https://rr5---sn-aaa.googlevideo.com") {
		t.Error("local manifest must not point directly at origin")
	}
	if !strings.Contains(doc, "<BaseURL>https://gw.example.com/videoplayback?") {
		t.Error("local manifest must route through the gateway")
	}
	if !strings.Contains(doc, "host=rr5---sn-aaa.googlevideo.com") {
		t.Error("local BaseURL must carry the origin host")
	}
}

func TestRewriteDASHManifest(t *testing.T) {
	doc := []byte(`<MPD><Period><AdaptationSet><Representation>` +
		`<BaseURL>https://rr3---sn-bbb.googlevideo.com/videoplayback?expire=5</BaseURL>` +
		`</Representation></AdaptationSet></Period></MPD>`)

	out := string(RewriteDASHManifest(doc, "https://gw.example.com/"))

	if strings.Contains(out, "<BaseURL>https://rr3---sn-bbb.googlevideo.com") {
		t.Error("origin host must be replaced")
	}
	if !strings.Contains(out, "<BaseURL>https://gw.example.com/videoplayback?") {
		t.Error("rewritten BaseURL must use the gateway base")
	}
	if !strings.Contains(out, "host=rr3---sn-bbb.googlevideo.com") {
		t.Error("rewritten BaseURL must carry the origin host")
	}
}

func TestSnapHeight(t *testing.T) {
	cases := []struct{ in, want int }{
		{4320, 4320},
		{2160, 2160},
		{1080, 1080},
		{710, 720},
		{700, 720},
		{600, 720},
		{420, 480},
		{144, 144},
		{100, 144},
	}
	for _, c := range cases {
		if got := snapHeight(c.in); got != c.want {
			t.Errorf("snapHeight(%d): expected %d, got %d", c.in, c.want, got)
		}
	}
}
