package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PlaylistMarker must appear in a manifest body for a candidate to be accepted.
const PlaylistMarker = "#EXTM3U"

// maxManifestBytes bounds how much of a probe response is read.
const maxManifestBytes = 256 * 1024

// ManifestCandidates builds the ordered probe list for a stream key:
// absolute host, relative/proxy path, protocol-relative. The first
// acceptable candidate wins.
func ManifestCandidates(host, proxyPath, key string) []string {
	suffix := fmt.Sprintf("/live/%s/index.m3u8", key)
	var out []string
	if host != "" {
		out = append(out, strings.TrimRight(host, "/")+suffix)
	}
	if proxyPath != "" {
		out = append(out, strings.TrimRight(proxyPath, "/")+suffix)
	}
	if host != "" {
		if rest, ok := strings.CutPrefix(host, "https://"); ok {
			out = append(out, "//"+strings.TrimRight(rest, "/")+suffix)
		} else if rest, ok := strings.CutPrefix(host, "http://"); ok {
			out = append(out, "//"+strings.TrimRight(rest, "/")+suffix)
		}
	}
	return out
}

// Prober checks candidate manifest URLs sequentially. A candidate is
// accepted only when the response is successful and the body carries the
// playlist marker.
type Prober struct {
	client *http.Client
	logger *zap.Logger
}

// NewProber creates a manifest prober. client may be nil for a default with
// a short timeout.
func NewProber(client *http.Client, logger *zap.Logger) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{client: client, logger: logger}
}

// Probe tries candidates in order and returns the first acceptable URL.
// Remaining candidates are abandoned once one is accepted. Returns
// ErrManifestUnavailable when none is acceptable.
func (p *Prober) Probe(ctx context.Context, candidates []string) (string, error) {
	for _, url := range candidates {
		ok, err := p.check(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			p.logger.Debug("manifest candidate failed", zap.String("url", url), zap.Error(err))
			continue
		}
		if ok {
			return url, nil
		}
	}
	return "", ErrManifestUnavailable
}

func (p *Prober) check(ctx context.Context, url string) (bool, error) {
	// Protocol-relative candidates only make sense in a browser; probe them
	// over https.
	reqURL := url
	if strings.HasPrefix(reqURL, "//") {
		reqURL = "https:" + reqURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return false, err
	}
	return strings.Contains(string(body), PlaylistMarker), nil
}
