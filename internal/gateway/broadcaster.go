package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chatsim/chatsim/internal/chatmodel"
	"github.com/chatsim/chatsim/internal/svcctx"
	"github.com/chatsim/chatsim/internal/wsproto"
)

const (
	streamIngest   = "stream:chat.ingest"
	streamFirehose = "stream:chat.firehose"
	broadcastGroup = "chat_gateway"
	groupReadCount = 32
	groupReadBlock = 2000 // ms
)

// Broadcaster implements spec.md §4.3's seven-step algorithm: consume
// ingest, validate, moderate, stamp trace, fan out to subscribers, publish
// to firehose, ack. Grounded on the teacher's server.go consume/fan-out
// loop, re-targeted from a generic broadcast to per-room WebSocket
// subscriber sets plus a downstream firehose republish.
type Broadcaster struct {
	svc *svcctx.ServiceContext
	fanOut func(room string, frame []byte)
	dedupe *dedupeCache
	consumerName string

	published atomic.Int64
	dropped   atomic.Int64
}

// NewBroadcaster wires schema validation into svc.Bus so invalid ingest
// records are dropped (with telemetry) before ever reaching Run's loop —
// step 2 of the algorithm is handled by busadapter.Adapter.GroupRead itself.
func NewBroadcaster(svc *svcctx.ServiceContext, fanOut func(room string, frame []byte)) *Broadcaster {
	b := &Broadcaster{
		svc:          svc,
		fanOut:       fanOut,
		dedupe:       newDedupeCache(dedupeCapacity),
		consumerName: fmt.Sprintf("gateway-%d", time.Now().UnixNano()),
	}
	svc.Bus.Validate = func(raw []byte) error {
		_, verr := svc.Validator.Validate(raw)
		if verr != nil {
			return verr
		}
		return nil
	}
	return b
}

// Published returns the count of messages successfully broadcast + republished.
func (b *Broadcaster) Published() int64 { return b.published.Load() }

// Dropped returns the count of ingest records dropped (invalid schema or
// safety-filtered), including those the bus adapter dropped pre-validation.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() + b.svc.Bus.Dropped() }

// Run consumes stream:chat.ingest under a durable consumer group until ctx
// is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	if err := b.svc.Bus.EnsureGroup(ctx, streamIngest, broadcastGroup, "0-0"); err != nil {
		return fmt.Errorf("gateway: ensure ingest group: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		entries, err := b.svc.Bus.GroupRead(ctx, streamIngest, broadcastGroup, b.consumerName, groupReadCount, groupReadBlock)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("gateway: ingest read failed", "error", err)
			continue
		}
		for _, e := range entries {
			b.process(ctx, e.ID, e.Data)
		}
	}
}

// process runs steps 3-7 of the algorithm; step 2 (schema validation) has
// already happened inside GroupRead via svc.Bus.Validate.
func (b *Broadcaster) process(ctx context.Context, entryID string, raw []byte) {
	var msg chatmodel.ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("gateway: ingest decode failed after schema validation", "entry_id", entryID, "error", err)
		b.dropped.Add(1)
		b.svc.Bus.Ack(ctx, streamIngest, broadcastGroup, entryID)
		return
	}

	content, meta := b.svc.Safety.Apply(msg.Content)
	msg.Content = content
	msg.Moderation = &meta
	if meta.Action == chatmodel.ModerationDrop {
		b.dropped.Add(1)
		b.svc.Bus.Ack(ctx, streamIngest, broadcastGroup, entryID)
		return
	}

	b.stampTrace(&msg)

	if b.dedupe.SeenOrAdd(msg.ID) {
		b.svc.Bus.Ack(ctx, streamIngest, broadcastGroup, entryID)
		return
	}

	finalized, err := json.Marshal(msg)
	if err != nil {
		slog.Error("gateway: re-marshal failed", "entry_id", entryID, "error", err)
		b.svc.Bus.Ack(ctx, streamIngest, broadcastGroup, entryID)
		return
	}

	frame, err := json.Marshal(wsproto.MessageFrame{Type: wsproto.TypeMessage, Message: msg})
	if err != nil {
		slog.Error("gateway: frame marshal failed", "entry_id", entryID, "error", err)
	} else {
		b.fanOut(msg.RoomID, frame)
	}

	if _, err := b.svc.Bus.Publish(ctx, streamFirehose, finalized); err != nil {
		slog.Error("gateway: firehose publish failed", "entry_id", entryID, "error", err)
		return
	}
	b.published.Add(1)

	b.svc.Bus.Ack(ctx, streamIngest, broadcastGroup, entryID)
}

func (b *Broadcaster) stampTrace(msg *chatmodel.ChatMessage) {
	if msg.Trace == nil {
		msg.Trace = &chatmodel.Trace{}
	}
	if msg.Trace.Producer == "" {
		msg.Trace.Producer = "unknown"
	}
	msg.Trace.AppendProcessedBy("chat_gateway")
	if msg.Trace.GatewayTS == 0 {
		msg.Trace.GatewayTS = b.svc.Now().UnixMilli()
	}
}
