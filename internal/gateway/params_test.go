package gateway

import (
	"errors"
	"testing"
)

func TestDecodePathParams(t *testing.T) {
	params, err := DecodePathParams("/expire/1693000000/itag/22/id/abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := params.Get("expire"); got != "1693000000" {
		t.Errorf("expire: expected 1693000000, got %q", got)
	}
	if got := params.Get("itag"); got != "22" {
		t.Errorf("itag: expected 22, got %q", got)
	}
	if got := params.Get("id"); got != "abc123" {
		t.Errorf("id: expected abc123, got %q", got)
	}
}

func TestDecodePathParams_mime_slash(t *testing.T) {
	params, err := DecodePathParams("/itag/140/mime/audio/mp4/id/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := params.Get("mime"); got != "audio/mp4" {
		t.Errorf("mime: expected audio/mp4, got %q", got)
	}
	if got := params.Get("id"); got != "abc" {
		t.Errorf("id: expected abc, got %q", got)
	}
}

func TestDecodePathParams_odd_segments(t *testing.T) {
	_, err := DecodePathParams("/expire/123/dangling")
	if !errors.Is(err, ErrOddPathParams) {
		t.Errorf("expected ErrOddPathParams, got %v", err)
	}
}

func TestDecodePathParams_percent_decoding(t *testing.T) {
	params, err := DecodePathParams("/source/yt%20live/itag/95")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := params.Get("source"); got != "yt live" {
		t.Errorf("expected decoded value, got %q", got)
	}
}

func TestParams_encode_preserves_order(t *testing.T) {
	params := NewParams()
	params.Add("zulu", "1")
	params.Add("alpha", "2")
	params.Add("mike", "3")

	if got := params.Encode(); got != "zulu=1&alpha=2&mike=3" {
		t.Errorf("expected insertion order, got %q", got)
	}
}

func TestParams_encode_repeated_keys(t *testing.T) {
	params := NewParams()
	params.Add("range", "0-99")
	params.Add("range", "100-199")

	if got := params.Encode(); got != "range=0-99&range=100-199" {
		t.Errorf("expected repeated pairs, got %q", got)
	}
}

func TestParams_encode_escapes_values(t *testing.T) {
	params := NewParams()
	params.Add("mime", "video/mp4")

	if got := params.Encode(); got != "mime=video%2Fmp4" {
		t.Errorf("expected escaped value, got %q", got)
	}
}

func TestParams_set_and_del(t *testing.T) {
	params := NewParams()
	params.Add("fvip", "1")
	params.Add("mn", "a")
	params.Set("fvip", "5")
	params.Del("mn")

	if got := params.Encode(); got != "fvip=5" {
		t.Errorf("expected fvip=5, got %q", got)
	}
	if params.Has("mn") {
		t.Error("mn should be gone after Del")
	}
}
