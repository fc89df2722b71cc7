// Package ingest runs the pasteboard capture loop: adaptive-interval
// polling, privacy filtering, content classification, and hand-off to the
// engine for persistence. The loop is single-threaded; every item the user
// copies is recorded in copy order.
package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jul-sh/clipkitty/store"
)

// Recorder is the engine surface the pipeline writes through. Each call
// classifies as one content kind; the engine owns hashing, dedup,
// transcoding, and follow-up tasks.
type Recorder interface {
	RecordText(ctx context.Context, text, appName, appID string) (int64, bool, error)
	RecordLink(ctx context.Context, url, appName, appID string) (int64, bool, error)
	RecordColor(ctx context.Context, rgba uint32, raw, appName, appID string) (int64, bool, error)
	RecordImage(ctx context.Context, data []byte, appName, appID string) (int64, bool, error)
	RecordFiles(ctx context.Context, paths []store.FilePath, appName, appID string) (int64, bool, error)
}

// Config is the caller-supplied privacy and filtering policy.
type Config struct {
	IgnoreConcealed bool
	IgnoreTransient bool
	IgnoredAppIDs   []string
}

// Poll intervals by idle time; a quiet clipboard is polled lazily.
const (
	intervalActive  = 250 * time.Millisecond  // idle < 5s
	intervalRecent  = 500 * time.Millisecond  // idle < 30s
	intervalSettled = 1000 * time.Millisecond // idle < 2m
	intervalIdle    = 1500 * time.Millisecond
	intervalLowPow  = 2000 * time.Millisecond
	intervalAsleep  = 1 * time.Second // wake-flag re-check cadence
)

// PollInterval maps time since the last clipboard change (and the low-power
// flag) onto the polling period.
func PollInterval(idle time.Duration, lowPower bool) time.Duration {
	if lowPower {
		return intervalLowPow
	}
	switch {
	case idle < 5*time.Second:
		return intervalActive
	case idle < 30*time.Second:
		return intervalRecent
	case idle < 2*time.Minute:
		return intervalSettled
	default:
		return intervalIdle
	}
}

// Pipeline is the single-threaded capture loop.
type Pipeline struct {
	pb       Pasteboard
	power    PowerMonitor
	recorder Recorder
	cfg      Config

	lastSeen   int64
	lastChange time.Time
}

func NewPipeline(pb Pasteboard, power PowerMonitor, recorder Recorder, cfg Config) *Pipeline {
	if power == nil {
		power = AlwaysAwake{}
	}
	return &Pipeline{
		pb:         pb,
		power:      power,
		recorder:   recorder,
		cfg:        cfg,
		lastSeen:   pb.ChangeCount(),
		lastChange: time.Now(),
	}
}

// Run polls until the context ends. A failure on one item is logged and the
// loop continues on the next tick; the loop itself only stops with the
// context.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		interval := intervalAsleep
		if !p.power.Asleep() {
			p.Tick(ctx)
			interval = PollInterval(time.Since(p.lastChange), p.power.LowPower())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// Tick performs one poll iteration: detect change, filter, classify, record.
func (p *Pipeline) Tick(ctx context.Context) {
	count := p.pb.ChangeCount()
	if count == p.lastSeen {
		return
	}
	p.lastSeen = count
	p.lastChange = time.Now()

	var markers []Marker
	if p.cfg.IgnoreConcealed {
		markers = append(markers, MarkerConcealed)
	}
	if p.cfg.IgnoreTransient {
		markers = append(markers, MarkerTransient)
	}
	if len(markers) > 0 && p.pb.MarkerPresent(markers...) {
		return
	}

	appName, appID := p.pb.FrontmostApp()
	for _, ignored := range p.cfg.IgnoredAppIDs {
		if strings.EqualFold(ignored, appID) {
			return
		}
	}

	if err := p.record(ctx, appName, appID); err != nil {
		slog.Warn("failed to record clipboard change", "component", "ingest", "app", appID, "error", err)
	}
}

// record classifies in priority order: files, image, link, color, text.
func (p *Pipeline) record(ctx context.Context, appName, appID string) error {
	if data, ok := p.pb.Data(FlavorFileList); ok {
		paths := ParseFileList(data)
		if len(paths) > 0 {
			_, _, err := p.recorder.RecordFiles(ctx, toFilePaths(paths), appName, appID)
			return err
		}
	}

	for _, flavor := range imageFlavors {
		if data, ok := p.pb.Data(flavor); ok && len(data) > 0 {
			_, _, err := p.recorder.RecordImage(ctx, data, appName, appID)
			return err
		}
	}

	text, ok := p.pb.String()
	if !ok || text == "" {
		return nil
	}
	if IsURL(strings.TrimSpace(text)) {
		_, _, err := p.recorder.RecordLink(ctx, strings.TrimSpace(text), appName, appID)
		return err
	}
	if rgba, ok := ParseCSSColor(text); ok {
		_, _, err := p.recorder.RecordColor(ctx, rgba, text, appName, appID)
		return err
	}
	_, _, err := p.recorder.RecordText(ctx, text, appName, appID)
	return err
}

func toFilePaths(paths []string) []store.FilePath {
	out := make([]store.FilePath, len(paths))
	for i, path := range paths {
		name := path
		if idx := strings.LastIndexByte(path, '/'); idx >= 0 && idx+1 < len(path) {
			name = path[idx+1:]
		}
		out[i] = store.FilePath{Path: path, DisplayName: name}
	}
	return out
}
