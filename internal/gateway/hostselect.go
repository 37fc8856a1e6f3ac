package gateway

import (
	"fmt"
	"net/url"
)

// DefaultHostAlias is the fvip alias used when a request carries none, and the
// alias forced after a connection failover.
const DefaultHostAlias = "3"

// cdnHostSuffix is the domain suffix of origin edge machines addressed by
// alias + machine-name label.
const cdnHostSuffix = ".googlevideo.com"

// HostSelector derives the current origin host from a numeric alias and a
// queue of machine-name labels, and advances to the next candidate on
// connection failure or redirect. Transitions are pure value updates, so the
// selector is testable without a network.
type HostSelector struct {
	// Scheme is "https" unless a redirect replaced it.
	Scheme string
	// Region is re-appended to redirect locations handed back to the client.
	Region string

	explicit string
	alias    string
	labels   []string
}

// NewHostSelector builds a selector. alias defaults to DefaultHostAlias when
// empty; labels are consumed back-to-front on failover; explicit, when set,
// overrides the alias-derived host entirely.
func NewHostSelector(alias string, labels []string, explicit, region string) *HostSelector {
	if alias == "" {
		alias = DefaultHostAlias
	}
	return &HostSelector{
		Scheme:   "https",
		Region:   region,
		explicit: explicit,
		alias:    alias,
		labels:   labels,
	}
}

// Host returns the bare hostname of the current candidate.
func (s *HostSelector) Host() string {
	if s.explicit != "" {
		return s.explicit
	}
	label := ""
	if n := len(s.labels); n > 0 {
		label = s.labels[n-1]
	}
	return fmt.Sprintf("r%s---%s%s", s.alias, label, cdnHostSuffix)
}

// Current returns the scheme://host base of the current candidate.
func (s *HostSelector) Current() string {
	return s.Scheme + "://" + s.Host()
}

// Exhausted reports whether no failover candidates remain.
func (s *HostSelector) Exhausted() bool {
	return s.explicit == "" && len(s.labels) == 0
}

// AdvanceOnFailure drops the current machine-name label and forces the alias
// back to the default, rebuilding the host from the next label in the queue.
// Any explicit or redirect-supplied host is discarded as a failed candidate.
// It returns false when the queue is exhausted and the caller must abort.
func (s *HostSelector) AdvanceOnFailure() bool {
	if len(s.labels) == 0 {
		return false
	}
	s.labels = s.labels[:len(s.labels)-1]
	s.alias = DefaultHostAlias
	s.explicit = ""
	return len(s.labels) > 0
}

// AdvanceOnRedirect adopts the redirect target's scheme and host wholesale.
// The caller switches its request path to the redirect target's path+query.
func (s *HostSelector) AdvanceOnRedirect(loc *url.URL) {
	if loc.Scheme != "" {
		s.Scheme = loc.Scheme
	}
	if loc.Host != "" {
		s.explicit = loc.Host
	}
}
