package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPResolver resolves video IDs against an upstream resolver service that
// returns the stream descriptor list as JSON. Signature decryption happens
// there, never here.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver builds a resolver client for the given service base URL.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, videoID string) (*Video, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/videos/"+videoID, nil)
	if err != nil {
		return nil, fmt.Errorf("creating resolver request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", videoID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrVideoNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("resolver returned status %d for %s", resp.StatusCode, videoID)
	}

	var video Video
	if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
		return nil, fmt.Errorf("decoding resolver response: %w", err)
	}
	if video.ID == "" {
		video.ID = videoID
	}
	return &video, nil
}
