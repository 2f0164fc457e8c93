package perceptor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/chatsim/chatsim/internal/busadapter"
	"github.com/chatsim/chatsim/internal/chatmodel"
)

// StreamObservations is the publish target, mirroring the worker package's
// stream name constants so both sides agree without importing each other.
const StreamObservations = "stream:observations"

// Config tunes the perceiver's publish cadence and is room-scoped like
// every other component, even though it never inspects chat content.
type Config struct {
	RoomID       string
	IntervalMS   int64
	DefaultHype  float64
}

// Perceptor polls a FrameSource/TranscriptSource pair on IntervalMS and
// publishes one StreamObservation per captured frame. Transcript segments
// captured since the last frame are folded into the observation's summary
// and transcript_ids list; a frame with nothing pending still publishes an
// empty-summary observation so downstream consumers see a live heartbeat.
type Perceptor struct {
	bus     *busadapter.Adapter
	frames  FrameSource
	trans   TranscriptSource
	cfg     Config
	now     func() time.Time
	pending []chatmodel.StreamTranscriptSegment
}

// New builds a Perceptor publishing onto bus for the given room.
func New(bus *busadapter.Adapter, frames FrameSource, trans TranscriptSource, cfg Config) *Perceptor {
	if cfg.IntervalMS <= 0 {
		cfg.IntervalMS = 5000
	}
	return &Perceptor{bus: bus, frames: frames, trans: trans, cfg: cfg, now: time.Now}
}

// Run polls until ctx is cancelled, publishing one observation per tick
// that has a new frame available.
func (p *Perceptor) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(p.cfg.IntervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				slog.Warn("perceptor: tick failed", "room_id", p.cfg.RoomID, "error", err)
			}
		}
	}
}

func (p *Perceptor) tick(ctx context.Context) error {
	for {
		seg, ok, err := p.trans.NextTranscript()
		if err != nil {
			return fmt.Errorf("perceptor: next transcript: %w", err)
		}
		if !ok {
			break
		}
		p.pending = append(p.pending, seg)
	}

	frame, ok, err := p.frames.NextFrame()
	if err != nil {
		return fmt.Errorf("perceptor: next frame: %w", err)
	}
	if !ok {
		return nil
	}

	obs := p.buildObservation(frame, p.pending)
	p.pending = nil

	payload, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("perceptor: marshal observation: %w", err)
	}
	if _, err := p.bus.Publish(ctx, StreamObservations, payload); err != nil {
		return fmt.Errorf("perceptor: publish: %w", err)
	}
	return nil
}

func (p *Perceptor) buildObservation(frame chatmodel.StreamFrame, segs []chatmodel.StreamTranscriptSegment) chatmodel.StreamObservation {
	ids := make([]string, 0, len(segs))
	summary := ""
	for _, s := range segs {
		ids = append(ids, s.ID)
		if summary != "" {
			summary += " "
		}
		summary += s.Text
	}
	if len(summary) > chatmodel.MaxSummaryChars {
		summary = summary[:chatmodel.MaxSummaryChars]
	}

	now := p.now()
	return chatmodel.StreamObservation{
		Envelope: chatmodel.Envelope{
			SchemaName:    chatmodel.SchemaStreamObservation,
			SchemaVersion: 1,
			ID:            uuid.NewString(),
			TS:            now.UnixMilli(),
			RoomID:        p.cfg.RoomID,
		},
		FrameID:       frame.ID,
		FrameSHA256:   frameSHA256(frame),
		TranscriptIDs: ids,
		Summary:       summary,
		HypeLevel:     p.cfg.DefaultHype,
		Trace:         &chatmodel.Trace{Producer: "stream_perceptor", GatewayTS: now.UnixMilli()},
	}
}

// frameSHA256 hashes the frame's file contents when Path resolves to a
// readable file, falling back to hashing the frame's identifying fields so
// a fixture frame with no backing file still gets a stable digest.
func frameSHA256(frame chatmodel.StreamFrame) string {
	if frame.Path != "" {
		if data, err := os.ReadFile(frame.Path); err == nil {
			sum := sha256.Sum256(data)
			return hex.EncodeToString(sum[:])
		}
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", frame.ID, frame.Path, frame.CapturedAt)))
	return hex.EncodeToString(sum[:])
}
