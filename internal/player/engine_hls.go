package player

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// HLSEngine follows a live HLS playlist over HTTP: it polls the manifest,
// fetches newly published segments and discards their bytes. It is the
// engine behind the CLI player, where there is no decoder to drive; decode
// failures therefore never occur and media recovery is a parser reset.
type HLSEngine struct {
	client *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	manifestURL string
	cancel      context.CancelFunc
	done        chan struct{}

	playing atomic.Bool
	reload  chan struct{} // RecoverNetwork signal

	// OnSegment, if set, observes each fetched segment (CLI progress output).
	OnSegment func(uri string, bytes int64)
}

// NewHLSEngine creates an HLS polling engine. client may be nil.
func NewHLSEngine(client *http.Client, logger *zap.Logger) *HLSEngine {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HLSEngine{client: client, logger: logger, reload: make(chan struct{}, 1)}
}

// Attach starts the playlist-following loop against manifestURL.
func (e *HLSEngine) Attach(ctx context.Context, manifestURL string, errs chan<- *PlaybackError) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return fmt.Errorf("engine already attached")
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.manifestURL = manifestURL
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(runCtx, manifestURL, errs)
	return nil
}

// Play starts segment consumption. The engine has no audio output, so muted
// playback always succeeds; autoplay blocking belongs to browser engines.
func (e *HLSEngine) Play(bool) error {
	e.playing.Store(true)
	return nil
}

// Pause suspends segment consumption without detaching.
func (e *HLSEngine) Pause() {
	e.playing.Store(false)
}

// RecoverNetwork restarts the current playlist-loading cycle in place.
func (e *HLSEngine) RecoverNetwork() error {
	select {
	case e.reload <- struct{}{}:
	default:
	}
	return nil
}

// RecoverMedia resets parser state. Always succeeds for this engine.
func (e *HLSEngine) RecoverMedia() error { return nil }

// Detach stops the loop and releases the HTTP work. Safe to call repeatedly.
func (e *HLSEngine) Detach() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (e *HLSEngine) run(ctx context.Context, manifestURL string, errs chan<- *PlaybackError) {
	defer close(e.done)
	defer close(errs)

	seen := make(map[string]struct{})
	consecutiveFailures := 0
	interval := 2 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.reload:
			// Fresh loading session: forget transient failures.
			consecutiveFailures = 0
		case <-time.After(interval):
		}

		pl, err := e.fetchPlaylist(ctx, manifestURL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveFailures++
			// A dead manifest is fatal; a blip is recoverable in place.
			if consecutiveFailures >= 5 {
				errs <- &PlaybackError{Kind: ErrorFatal, Err: err}
				return
			}
			errs <- &PlaybackError{Kind: ErrorNetwork, Err: err}
			continue
		}
		consecutiveFailures = 0
		if pl.targetDuration > 0 {
			interval = time.Duration(pl.targetDuration) * time.Second / 2
		}

		if e.playing.Load() {
			for _, seg := range pl.segments {
				if _, ok := seen[seg]; ok {
					continue
				}
				seen[seg] = struct{}{}
				n, err := e.fetchSegment(ctx, manifestURL, seg)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					errs <- &PlaybackError{Kind: ErrorNetwork, Err: err}
					break
				}
				if e.OnSegment != nil {
					e.OnSegment(seg, n)
				}
			}
		}

		if pl.ended {
			e.logger.Info("playlist ended")
			return
		}
	}
}

type playlist struct {
	targetDuration int
	segments       []string
	ended          bool
}

func (e *HLSEngine) fetchPlaylist(ctx context.Context, manifestURL string) (*playlist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
	if err != nil {
		return nil, err
	}
	return parsePlaylist(string(body))
}

func (e *HLSEngine) fetchSegment(ctx context.Context, manifestURL, seg string) (int64, error) {
	segURL, err := resolveSegmentURL(manifestURL, seg)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("segment status %d", resp.StatusCode)
	}
	return io.Copy(io.Discard, resp.Body)
}

// parsePlaylist extracts target duration, segment URIs and the endlist flag
// from a media playlist.
func parsePlaylist(body string) (*playlist, error) {
	if !strings.Contains(body, PlaylistMarker) {
		return nil, fmt.Errorf("not an HLS playlist")
	}
	pl := &playlist{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if n, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:")); err == nil {
				pl.targetDuration = n
			}
		case line == "#EXT-X-ENDLIST":
			pl.ended = true
		case strings.HasPrefix(line, "#"):
		default:
			pl.segments = append(pl.segments, line)
		}
	}
	return pl, nil
}

// resolveSegmentURL resolves a segment URI against the manifest URL.
func resolveSegmentURL(manifestURL, seg string) (string, error) {
	base, err := url.Parse(manifestURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(seg)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
