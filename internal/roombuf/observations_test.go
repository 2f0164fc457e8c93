package roombuf

import (
	"testing"
	"time"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

func obsAt(room, id string, hype float64) chatmodel.StreamObservation {
	return chatmodel.StreamObservation{
		Envelope:  chatmodel.Envelope{ID: id, RoomID: room},
		HypeLevel: hype,
	}
}

func TestObservationBufferLatestNewestFirst(t *testing.T) {
	b := NewObservationBuffer(10, time.Minute)
	b.Add(obsAt("room:demo", "1", 0.1))
	b.Add(obsAt("room:demo", "2", 0.9))

	latest := b.Latest("room:demo", 10)
	if len(latest) != 2 || latest[0].ID != "2" || latest[1].ID != "1" {
		t.Fatalf("expected newest-first order, got %+v", latest)
	}
}

func TestObservationBufferEvictsAtCapacity(t *testing.T) {
	b := NewObservationBuffer(2, time.Hour)
	b.Add(obsAt("room:demo", "1", 0))
	b.Add(obsAt("room:demo", "2", 0))
	b.Add(obsAt("room:demo", "3", 0))

	latest := b.Latest("room:demo", 10)
	if len(latest) != 2 {
		t.Fatalf("expected capacity eviction to 2 entries, got %d", len(latest))
	}
	if latest[0].ID != "3" || latest[1].ID != "2" {
		t.Fatalf("expected the oldest entry evicted, got %+v", latest)
	}
}

func TestObservationBufferSkipsExpiredEntries(t *testing.T) {
	b := NewObservationBuffer(10, 10*time.Second)
	base := time.Unix(1000, 0)
	cur := base
	b.now = func() time.Time { return cur }

	b.Add(obsAt("room:demo", "old", 0.5))
	cur = base.Add(20 * time.Second)
	b.Add(obsAt("room:demo", "new", 0.5))

	latest := b.Latest("room:demo", 10)
	if len(latest) != 1 || latest[0].ID != "new" {
		t.Fatalf("expected the expired entry excluded, got %+v", latest)
	}
}
