package gateway

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Cue is one caption cue with its text already cleaned for WebVTT output.
// DurationMs is nil when the source event carried no duration.
type Cue struct {
	StartMs    int64
	DurationMs *int64
	Text       string
}

type json3Transcript struct {
	Events []json3Event `json:"events"`
}

type json3Event struct {
	StartMs    int64      `json:"tStartMs"`
	DurationMs *int64     `json:"dDurationMs"`
	Segs       []json3Seg `json:"segs"`
}

type json3Seg struct {
	UTF8 string `json:"utf8"`
}

var captionFontTagRe = regexp.MustCompile(`</?font[^>]*>`)
var captionSpeakerRe = regexp.MustCompile(`^(\s*)(.+?) : (.*)$`)

// ParseJSON3 decodes an auto-generated transcript into cues, dropping events
// that carry no renderable text.
func ParseJSON3(data []byte) ([]Cue, error) {
	var transcript json3Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}

	var cues []Cue
	for _, ev := range transcript.Events {
		var sb strings.Builder
		for _, seg := range ev.Segs {
			sb.WriteString(seg.UTF8)
		}
		text := cleanCueText(sb.String())
		if text == "" {
			continue
		}
		cues = append(cues, Cue{StartMs: ev.StartMs, DurationMs: ev.DurationMs, Text: text})
	}
	return cues, nil
}

// cleanCueText unescapes HTML entities, strips inline font tags, and converts
// "speaker : utterance" lines into WebVTT voice spans.
func cleanCueText(text string) string {
	text = html.UnescapeString(text)
	text = captionFontTagRe.ReplaceAllString(text, "")
	if m := captionSpeakerRe.FindStringSubmatch(text); m != nil {
		text = m[1] + "<v " + m[2] + ">" + m[3] + "</v>"
	}
	return strings.TrimRight(text, "\n")
}

// TranscodeToVTT renders cues as a WebVTT document. A cue ends where the next
// one starts; the last cue falls back to its own duration, or to a zero-length
// cue when no duration exists.
func TranscodeToVTT(cues []Cue) []byte {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")

	for i, cue := range cues {
		endMs := cue.StartMs
		if i+1 < len(cues) {
			endMs = cues[i+1].StartMs
		} else if cue.DurationMs != nil {
			endMs = cue.StartMs + *cue.DurationMs
		}

		sb.WriteString(formatCueTimestamp(cue.StartMs))
		sb.WriteString(" --> ")
		sb.WriteString(formatCueTimestamp(endMs))
		sb.WriteString("\n")
		sb.WriteString(cue.Text)
		sb.WriteString("\n\n")
	}
	return []byte(sb.String())
}

// formatCueTimestamp renders milliseconds as HH:MM:SS.mmm.
func formatCueTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}
