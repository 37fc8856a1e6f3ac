package gateway

import (
	"net/url"
	"testing"
)

func TestHostSelector_alias_host(t *testing.T) {
	s := NewHostSelector("5", []string{"sn-aaa", "sn-bbb", "sn-ccc"}, "", "")

	if got := s.Host(); got != "r5---sn-ccc.googlevideo.com" {
		t.Errorf("expected last label first, got %q", got)
	}
	if got := s.Current(); got != "https://r5---sn-ccc.googlevideo.com" {
		t.Errorf("unexpected base: %q", got)
	}
}

func TestHostSelector_default_alias(t *testing.T) {
	s := NewHostSelector("", []string{"sn-aaa"}, "", "")
	if got := s.Host(); got != "r3---sn-aaa.googlevideo.com" {
		t.Errorf("expected default alias 3, got %q", got)
	}
}

func TestHostSelector_explicit_host_wins(t *testing.T) {
	s := NewHostSelector("5", []string{"sn-aaa"}, "rr2---sn-zzz.googlevideo.com", "")
	if got := s.Host(); got != "rr2---sn-zzz.googlevideo.com" {
		t.Errorf("explicit host should override alias, got %q", got)
	}
}

func TestHostSelector_failover_consumes_labels_back_to_front(t *testing.T) {
	s := NewHostSelector("5", []string{"sn-aaa", "sn-bbb", "sn-ccc"}, "", "")

	if !s.AdvanceOnFailure() {
		t.Fatal("first failover should find another candidate")
	}
	if got := s.Host(); got != "r3---sn-bbb.googlevideo.com" {
		t.Errorf("expected alias reset and next label, got %q", got)
	}

	if !s.AdvanceOnFailure() {
		t.Fatal("second failover should find another candidate")
	}
	if got := s.Host(); got != "r3---sn-aaa.googlevideo.com" {
		t.Errorf("expected last remaining label, got %q", got)
	}

	if s.AdvanceOnFailure() {
		t.Error("failover past the last label should report exhaustion")
	}
	if !s.Exhausted() {
		t.Error("selector should be exhausted")
	}
}

func TestHostSelector_failure_discards_explicit_host(t *testing.T) {
	s := NewHostSelector("5", []string{"sn-aaa", "sn-bbb"}, "rr9---sn-bad.googlevideo.com", "")

	if !s.AdvanceOnFailure() {
		t.Fatal("a label should remain after failover")
	}
	if got := s.Host(); got != "r3---sn-aaa.googlevideo.com" {
		t.Errorf("failed explicit host must not be reused, got %q", got)
	}
}

func TestHostSelector_redirect_adopts_target(t *testing.T) {
	s := NewHostSelector("5", []string{"sn-aaa"}, "", "us")

	loc, _ := url.Parse("https://rr4---sn-xyz.googlevideo.com/videoplayback?expire=9")
	s.AdvanceOnRedirect(loc)

	if got := s.Host(); got != "rr4---sn-xyz.googlevideo.com" {
		t.Errorf("redirect host not adopted, got %q", got)
	}
	if s.Scheme != "https" {
		t.Errorf("unexpected scheme %q", s.Scheme)
	}
	if s.Region != "us" {
		t.Errorf("region must survive redirects, got %q", s.Region)
	}
}
