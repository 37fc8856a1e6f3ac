package gateway

import (
	"fmt"
	"strconv"
	"strings"
)

// ChunkSize is the maximum span of one origin byte-range request. Fixed-size
// chunking bounds memory and origin request duration, and allows mid-stream
// host rotation without restarting from byte 0.
const ChunkSize = 10_485_760

// ByteRange is a client-requested byte range. End is meaningful only when
// HasEnd is true; an open-ended or absent Range header leaves it unset.
type ByteRange struct {
	Start  int64
	End    int64
	HasEnd bool
}

// ParseRange parses a client Range header ("bytes=s-e" or "bytes=s-").
// An absent or unparsable header means "no explicit range", never an error.
func ParseRange(header string) ByteRange {
	var r ByteRange
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return r
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return r
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}
	}
	r.Start = start
	if endStr != "" {
		if end, err := strconv.ParseInt(endStr, 10, 64); err == nil && end >= start {
			r.End = end
			r.HasEnd = true
		}
	}
	return r
}

// ChunkWindow is the mutable cursor over the byte range currently being
// requested from origin. It advances monotonically and is never shared across
// requests.
type ChunkWindow struct {
	Start int64
	End   int64
	First bool
}

// NewChunkWindow positions the first window at the client range start,
// spanning at most ChunkSize bytes and clamped to a known range end.
func NewChunkWindow(r ByteRange) ChunkWindow {
	w := ChunkWindow{
		Start: r.Start,
		End:   r.Start + ChunkSize - 1,
		First: true,
	}
	if r.HasEnd && r.End < w.End {
		w.End = r.End
	}
	return w
}

// ClampTo caps the window end at the effective range end.
func (w *ChunkWindow) ClampTo(end int64) {
	if w.End > end {
		w.End = end
	}
}

// Advance moves the window to the next contiguous chunk.
func (w *ChunkWindow) Advance() {
	w.Start = w.End + 1
	w.End += ChunkSize
	w.First = false
}

// RangeHeader renders the origin Range header for the current window.
func (w *ChunkWindow) RangeHeader() string {
	return fmt.Sprintf("bytes=%d-%d", w.Start, w.End)
}

// ParseContentRangeTotal extracts the total length from a Content-Range
// header ("bytes a-b/total"). The second return is false when the header is
// absent, malformed, or carries an unknown ("*") total.
func ParseContentRangeTotal(header string) (int64, bool) {
	_, totalStr, ok := strings.Cut(header, "/")
	if !ok || totalStr == "*" {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(totalStr), 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
