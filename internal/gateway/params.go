package gateway

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrOddPathParams is returned when a path-encoded parameter sequence does not
// split into key/value pairs.
var ErrOddPathParams = errors.New("path parameters are not key/value pairs")

// mimeValueRe matches a mime parameter whose value contains a slash
// (e.g. "mime/video/mp4"). The second separator must be percent-encoded before
// splitting so the value round-trips as a single segment.
var mimeValueRe = regexp.MustCompile(`mime/(\w+)/([\w+-]+)`)

// Params is an order-preserving multimap of query parameters. Keys keep the
// order of their first occurrence; repeated values accumulate in encounter
// order under their key.
type Params struct {
	keys   []string
	values map[string][]string
}

// NewParams returns an empty Params.
func NewParams() *Params {
	return &Params{values: make(map[string][]string)}
}

// Add appends value under key, registering the key on first use.
func (p *Params) Add(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = append(p.values[key], value)
}

// Set replaces all values of key with a single value.
func (p *Params) Set(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = []string{value}
}

// Get returns the first value for key, or "" if absent.
func (p *Params) Get(key string) string {
	if vs := p.values[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Del removes key and all its values.
func (p *Params) Del(key string) {
	if _, ok := p.values[key]; !ok {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Encode serialises to a standard query string, preserving key order and
// emitting multi-valued keys as repeated pairs.
func (p *Params) Encode() string {
	var b strings.Builder
	for _, k := range p.keys {
		for _, v := range p.values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// DecodePathParams decodes a legacy path-encoded parameter form
// ("/key/value/key/value/...") into a Params multimap. Values are
// percent-decoded. A mime value's embedded slash is pre-encoded so it is not
// mis-split into an extra pair. An odd number of segments is a decode error.
func DecodePathParams(path string) (*Params, error) {
	path = mimeValueRe.ReplaceAllString(path, "mime/$1%2F$2")

	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments)%2 != 0 {
		return nil, ErrOddPathParams
	}

	params := NewParams()
	for i := 0; i < len(segments); i += 2 {
		value, err := url.PathUnescape(segments[i+1])
		if err != nil {
			value = segments[i+1]
		}
		params.Add(segments[i], value)
	}
	return params, nil
}
