// Package ingest adapts an external media-ingest process (RTMP/ffmpeg
// equivalent) to the stream session state machine via three lifecycle hooks.
// The gateway owns transcoding and segment files; this package only consumes
// its callbacks.
package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/andyyong11/streamdj/internal/models"
	"github.com/andyyong11/streamdj/internal/streams"
)

// Hooks is the contract the ingest process must invoke, in order, for a
// stream path encoding a key: pre-publish (validate), post-publish
// (activate), done-publish (deactivate).
type Hooks interface {
	// OnPrePublish returns streams.ErrKeyInvalidOrExpired when the incoming
	// stream must be refused, nil when it may proceed.
	OnPrePublish(ctx context.Context, key string) error
	// OnPostPublish activates the session once the stream is confirmed flowing.
	OnPostPublish(ctx context.Context, key string)
	// OnDonePublish deactivates the session when the stream ends or drops.
	OnDonePublish(ctx context.Context, key string)
}

// Archiver enqueues an archive-upload job for an ended broadcast.
type Archiver interface {
	EnqueueArchive(ctx context.Context, session models.StreamSession) error
}

// Gateway implements Hooks over the stream key service. Every hook degrades
// to a logged no-op on state-machine violations or storage errors, so a
// flaky ingest process cannot crash session tracking.
type Gateway struct {
	service  *streams.Service
	archiver Archiver
	logger   *zap.Logger
}

// NewGateway creates an ingest gateway adapter. archiver may be nil.
func NewGateway(service *streams.Service, archiver Archiver, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{service: service, archiver: archiver, logger: logger}
}

// OnPrePublish validates the key before the gateway accepts the stream.
func (g *Gateway) OnPrePublish(ctx context.Context, key string) error {
	ok, err := g.service.ValidateKey(ctx, key)
	if err != nil {
		g.logger.Error("pre-publish validate", zap.Error(err))
		return streams.ErrKeyInvalidOrExpired
	}
	if !ok {
		return streams.ErrKeyInvalidOrExpired
	}
	return nil
}

// OnPostPublish activates the session after the stream is confirmed flowing.
func (g *Gateway) OnPostPublish(ctx context.Context, key string) {
	session, err := g.service.Activate(ctx, key)
	if err != nil {
		g.logger.Error("post-publish activate", zap.Error(err))
		return
	}
	if session == nil {
		g.logger.Warn("post-publish: no transition performed")
	}
}

// OnDonePublish deactivates the session and queues the broadcast archive.
func (g *Gateway) OnDonePublish(ctx context.Context, key string) {
	session, err := g.service.Deactivate(ctx, key)
	if err != nil {
		g.logger.Error("done-publish deactivate", zap.Error(err))
		return
	}
	if session == nil {
		g.logger.Warn("done-publish: no transition performed")
		return
	}
	if g.archiver != nil {
		if err := g.archiver.EnqueueArchive(ctx, *session); err != nil {
			g.logger.Error("enqueue archive", zap.String("session_id", session.ID.String()), zap.Error(err))
		}
	}
}
