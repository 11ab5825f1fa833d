// Package engine implements the motion transfer demo controller: one state
// object per session, mutated only by a single event-loop goroutine.
//
// Every user action (Upload, Remove, Generate, Reset, Download) and every
// timer firing is a message applied atomically by that loop. Generate starts
// two independent timers: a periodic progress tick and a one-shot completion
// timer. The completion timer alone ends processing and publishes the result;
// the tick may reach 100 earlier and simply stops.
package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/geneseez/geneseez/internal/config"
	apperrors "github.com/geneseez/geneseez/internal/errors"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/types"
	"github.com/geneseez/geneseez/internal/utils"
	"github.com/hashicorp/go-hclog"
)

// Config contains the timing and naming used by a controller
type Config struct {
	TickInterval      time.Duration
	CompletionDelay   time.Duration
	DownloadPrefix    string
	DownloadExtension string

	// Upload policy. Limits and accepted types only apply when EnforceLimits is set.
	EnforceLimits bool
	MaxBytes      map[types.Slot]int64
	AcceptTypes   map[types.Slot][]string

	// Now is used for timestamps and download names; defaults to time.Now
	Now func() time.Time
}

// DefaultConfig returns the timings of the original demo
func DefaultConfig() Config {
	return ConfigFrom(config.DefaultConfig())
}

// ConfigFrom derives controller settings from the application configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		TickInterval:      cfg.Generation.TickInterval,
		CompletionDelay:   cfg.Generation.CompletionDelay,
		DownloadPrefix:    cfg.Generation.DownloadPrefix,
		DownloadExtension: cfg.Generation.DownloadExtension,
		EnforceLimits:     cfg.Uploads.EnforceLimits,
		MaxBytes: map[types.Slot]int64{
			types.SlotImage: cfg.Uploads.ImageMaxBytes,
			types.SlotVideo: cfg.Uploads.VideoMaxBytes,
		},
		AcceptTypes: map[types.Slot][]string{
			types.SlotImage: cfg.Uploads.ImageTypes,
			types.SlotVideo: cfg.Uploads.VideoTypes,
		},
	}
}

// state is owned by the loop goroutine
type state struct {
	image      *types.Media
	video      *types.Media
	result     *types.Media
	processing bool
	progress   int
}

// events
type (
	evtTick     struct{ generation uint64 }
	evtComplete struct{ generation uint64 }
	evtCommand  struct {
		fn    func() error
		reply chan error
	}
)

// Controller owns the state of one demo session
type Controller struct {
	id     string
	cfg    Config
	logger hclog.Logger

	events    chan interface{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Loop-owned fields below
	state       state
	generation  uint64
	tickStop    chan struct{}
	completion  *time.Timer
	version     uint64
	updatedAt   time.Time
	subscribers map[chan types.Snapshot]struct{}
}

// NewController constructs a controller and starts its event loop
func NewController(id string, cfg Config, logger hclog.Logger) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	c := &Controller{
		id:          id,
		cfg:         cfg,
		logger:      logger.Named("controller").With("session_id", id),
		events:      make(chan interface{}, 16),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
		subscribers: make(map[chan types.Snapshot]struct{}),
	}
	c.updatedAt = cfg.Now()

	go c.loop()
	return c
}

// ID returns the session identifier
func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			c.teardown()
			return
		case ev := <-c.events:
			switch e := ev.(type) {
			case evtTick:
				c.handleTick(e.generation)
			case evtComplete:
				c.handleComplete(e.generation)
			case evtCommand:
				e.reply <- e.fn()
			}
		}
	}
}

// exec runs fn on the loop goroutine and waits for its result.
// A command already queued is applied even if ctx is cancelled meanwhile.
func (c *Controller) exec(ctx context.Context, op string, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.events <- evtCommand{fn: fn, reply: reply}:
	case <-c.quit:
		return apperrors.SessionError(op, apperrors.ErrClosed).WithSession(c.id)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return apperrors.SessionError(op, apperrors.ErrClosed).WithSession(c.id)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers a timer event unless the controller is shutting down
func (c *Controller) post(ev interface{}) {
	select {
	case c.events <- ev:
	case <-c.quit:
	}
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot(ctx context.Context) (types.Snapshot, error) {
	var snap types.Snapshot
	err := c.exec(ctx, "snapshot", func() error {
		snap = c.snapshot()
		return nil
	})
	return snap, err
}

// Upload reads a file into the given slot. The read happens on the caller's
// goroutine; the slot keeps its previous value until it completes, and a
// failed read leaves it untouched.
func (c *Controller) Upload(ctx context.Context, slot types.Slot, r io.Reader, name string) error {
	const op = "upload"

	if _, err := types.ParseSlot(string(slot)); err != nil {
		return apperrors.ValidationError(op, err).WithSession(c.id)
	}

	// Fail fast instead of reading a large body that would be rejected
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.IsProcessing {
		return apperrors.StateError(op, apperrors.ErrBusy).WithSession(c.id)
	}

	var limit int64
	if c.cfg.EnforceLimits {
		limit = c.cfg.MaxBytes[slot]
	}

	uri, mediaType, size, err := utils.ReadDataURI(r, limit)
	if err != nil {
		c.logger.Warn("upload read failed", "slot", slot, "error", err)
		return apperrors.ValidationError(op, err).WithSession(c.id).WithDetail("slot", string(slot))
	}

	if c.cfg.EnforceLimits && !acceptsType(c.cfg.AcceptTypes[slot], mediaType) {
		return apperrors.ValidationError(op, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedMedia, mediaType)).
			WithSession(c.id).WithDetail("slot", string(slot))
	}

	media := &types.Media{
		URI:        uri,
		MediaType:  mediaType,
		Size:       size,
		Name:       name,
		UploadedAt: c.cfg.Now(),
	}

	return c.exec(ctx, op, func() error {
		if c.state.processing {
			return apperrors.StateError(op, apperrors.ErrBusy).WithSession(c.id)
		}
		switch slot {
		case types.SlotImage:
			c.state.image = media
		case types.SlotVideo:
			c.state.video = media
		}
		c.logger.Debug("slot loaded", "slot", slot, "media_type", mediaType, "size", size)
		c.publish()
		return nil
	})
}

// Remove clears one slot. Not allowed while processing.
func (c *Controller) Remove(ctx context.Context, slot types.Slot) error {
	const op = "remove"

	if _, err := types.ParseSlot(string(slot)); err != nil {
		return apperrors.ValidationError(op, err).WithSession(c.id)
	}

	return c.exec(ctx, op, func() error {
		if c.state.processing {
			return apperrors.StateError(op, apperrors.ErrBusy).WithSession(c.id)
		}
		target := &c.state.image
		if slot == types.SlotVideo {
			target = &c.state.video
		}
		if *target == nil {
			return nil
		}
		*target = nil
		c.publish()
		return nil
	})
}

// Generate starts the fake processing. Both slots must be set and no
// generation may be running.
func (c *Controller) Generate(ctx context.Context) error {
	const op = "generate"

	return c.exec(ctx, op, func() error {
		if c.state.processing {
			return apperrors.StateError(op, apperrors.ErrBusy).WithSession(c.id)
		}
		if c.state.image == nil || c.state.video == nil {
			return apperrors.StateError(op, apperrors.ErrNotReady).WithSession(c.id)
		}

		c.generation++
		gen := c.generation

		c.state.result = nil
		c.state.progress = 0
		c.state.processing = true

		c.startTicker(gen)
		c.completion = time.AfterFunc(c.cfg.CompletionDelay, func() {
			c.post(evtComplete{generation: gen})
		})

		c.logger.Info("generation started",
			"generation", gen,
			"tick_interval", c.cfg.TickInterval,
			"completion_delay", c.cfg.CompletionDelay)
		c.publish()
		return nil
	})
}

// Reset clears every field back to its initial value. Calling it again is a
// no-op. Not allowed while processing.
func (c *Controller) Reset(ctx context.Context) error {
	const op = "reset"

	return c.exec(ctx, op, func() error {
		if c.state.processing {
			return apperrors.StateError(op, apperrors.ErrBusy).WithSession(c.id)
		}
		if c.state == (state{}) {
			return nil
		}
		c.state = state{}
		c.publish()
		return nil
	})
}

// Download materialises the result as a file named
// <prefix>-<unix millis><extension>.
func (c *Controller) Download(ctx context.Context) (types.Artifact, error) {
	const op = "download"

	var result *types.Media
	err := c.exec(ctx, op, func() error {
		if c.state.result == nil {
			return apperrors.StateError(op, apperrors.ErrNoResult).WithSession(c.id)
		}
		result = c.state.result
		return nil
	})
	if err != nil {
		return types.Artifact{}, err
	}

	mediaType, data, err := utils.DecodeDataURI(result.URI)
	if err != nil {
		return types.Artifact{}, apperrors.InternalError(op, err).WithSession(c.id)
	}

	return types.Artifact{
		Filename:  DownloadName(c.cfg.DownloadPrefix, c.cfg.DownloadExtension, c.cfg.Now()),
		MediaType: mediaType,
		Data:      data,
	}, nil
}

// Source returns the media held in an upload slot
func (c *Controller) Source(ctx context.Context, slot types.Slot) (*types.Media, error) {
	const op = "source"

	if _, err := types.ParseSlot(string(slot)); err != nil {
		return nil, apperrors.ValidationError(op, err).WithSession(c.id)
	}

	var media *types.Media
	err := c.exec(ctx, op, func() error {
		if slot == types.SlotImage {
			media = c.state.image
		} else {
			media = c.state.video
		}
		if media == nil {
			return apperrors.StateError(op, apperrors.ErrEmptySlot).WithSession(c.id).WithDetail("slot", string(slot))
		}
		return nil
	})
	return media, err
}

// Result returns the generated media
func (c *Controller) Result(ctx context.Context) (*types.Media, error) {
	const op = "result"

	var media *types.Media
	err := c.exec(ctx, op, func() error {
		if c.state.result == nil {
			return apperrors.StateError(op, apperrors.ErrNoResult).WithSession(c.id)
		}
		media = c.state.result
		return nil
	})
	return media, err
}

// Subscribe returns a channel receiving a snapshot after every state change,
// starting with the current one. Slow readers only miss intermediate
// snapshots. The channel is closed on unsubscribe or teardown.
func (c *Controller) Subscribe(ctx context.Context) (<-chan types.Snapshot, func(), error) {
	ch := make(chan types.Snapshot, 8)
	err := c.exec(ctx, "subscribe", func() error {
		c.subscribers[ch] = struct{}{}
		ch <- c.snapshot()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = c.exec(context.Background(), "unsubscribe", func() error {
				if _, ok := c.subscribers[ch]; ok {
					delete(c.subscribers, ch)
					close(ch)
				}
				return nil
			})
		})
	}
	return ch, unsubscribe, nil
}

// Close tears the controller down. Both timers are cancelled and no state
// changes after Close returns. Safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
	})
	<-c.done
}

// Closed reports whether Close has been called
func (c *Controller) Closed() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

// Done is closed once the event loop has exited
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) startTicker(gen uint64) {
	c.stopTicker()

	stop := make(chan struct{})
	c.tickStop = stop
	ticker := time.NewTicker(c.cfg.TickInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.quit:
				return
			case <-ticker.C:
				c.post(evtTick{generation: gen})
			}
		}
	}()
}

// stopTicker is idempotent
func (c *Controller) stopTicker() {
	if c.tickStop != nil {
		close(c.tickStop)
		c.tickStop = nil
	}
}

func (c *Controller) stopCompletion() {
	if c.completion != nil {
		c.completion.Stop()
		c.completion = nil
	}
}

func (c *Controller) handleTick(gen uint64) {
	if gen != c.generation || !c.state.processing || c.tickStop == nil {
		return
	}
	if c.state.progress >= ProgressComplete {
		c.stopTicker()
		return
	}
	c.state.progress = NextProgress(c.state.progress)
	c.publish()
}

func (c *Controller) handleComplete(gen uint64) {
	if gen != c.generation || !c.state.processing {
		return
	}

	c.stopTicker()
	c.completion = nil

	c.state.progress = ProgressComplete
	c.state.result = c.state.video
	c.state.processing = false

	c.logger.Info("generation complete", "generation", gen)
	c.publish()
}

func (c *Controller) teardown() {
	c.stopTicker()
	c.stopCompletion()

	for ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, ch)
	}

	c.logger.Debug("controller closed")
}

// publish records a state change and fans the snapshot out to subscribers
func (c *Controller) publish() {
	c.version++
	c.updatedAt = c.cfg.Now()

	if len(c.subscribers) == 0 {
		return
	}

	snap := c.snapshot()
	for ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest pending snapshot so the latest one always lands
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (c *Controller) snapshot() types.Snapshot {
	s := c.state
	return types.Snapshot{
		SessionID:    c.id,
		HasImage:     s.image != nil,
		HasVideo:     s.video != nil,
		HasResult:    s.result != nil,
		Image:        s.image.Info(),
		Video:        s.video.Info(),
		Result:       s.result.Info(),
		IsProcessing: s.processing,
		Progress:     s.progress,
		CanGenerate:  CanGenerate(s.image != nil, s.video != nil, s.processing),
		View:         viewOf(s),
		Version:      c.version,
		UpdatedAt:    c.updatedAt,
	}
}

// CanGenerate reports whether the Generate action is enabled
func CanGenerate(hasImage, hasVideo, processing bool) bool {
	return hasImage && hasVideo && !processing
}

func viewOf(s state) types.View {
	switch {
	case s.result != nil:
		return types.ViewResult
	case s.processing:
		return types.ViewProcessing
	default:
		return types.ViewUpload
	}
}

// DownloadName builds the result filename from a prefix, an extension and
// the current time in milliseconds since the epoch
func DownloadName(prefix, extension string, now time.Time) string {
	return fmt.Sprintf("%s-%d%s", prefix, now.UnixMilli(), extension)
}

func acceptsType(prefixes []string, mediaType string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(mediaType, p) {
			return true
		}
	}
	return false
}
