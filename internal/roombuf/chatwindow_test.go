package roombuf

import (
	"testing"
	"time"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

func msgAt(room, id string, origin chatmodel.Origin, content string) chatmodel.ChatMessage {
	return chatmodel.ChatMessage{
		Envelope: chatmodel.Envelope{ID: id, RoomID: room},
		Origin:   origin,
		Content:  content,
	}
}

func TestChatWindowRecentNewestFirst(t *testing.T) {
	w := NewChatWindow(10, time.Minute)
	w.Add(msgAt("room:demo", "1", chatmodel.OriginHuman, "first"))
	w.Add(msgAt("room:demo", "2", chatmodel.OriginHuman, "second"))

	recent := w.Recent("room:demo", 10)
	if len(recent) != 2 || recent[0].ID != "2" || recent[1].ID != "1" {
		t.Fatalf("expected newest-first order, got %+v", recent)
	}
}

func TestChatWindowTrimsBySize(t *testing.T) {
	w := NewChatWindow(3, time.Hour)
	for i := 0; i < 5; i++ {
		w.Add(msgAt("room:demo", string(rune('a'+i)), chatmodel.OriginHuman, "x"))
	}
	recent := w.Recent("room:demo", 10)
	if len(recent) != 3 {
		t.Fatalf("expected size cap of 3, got %d", len(recent))
	}
}

func TestChatWindowTrimsByPeriod(t *testing.T) {
	w := NewChatWindow(100, 10*time.Second)
	base := time.Unix(1000, 0)
	cur := base
	w.now = func() time.Time { return cur }

	w.Add(msgAt("room:demo", "old", chatmodel.OriginHuman, "x"))
	cur = base.Add(20 * time.Second)
	w.Add(msgAt("room:demo", "new", chatmodel.OriginHuman, "x"))

	recent := w.Recent("room:demo", 10)
	if len(recent) != 1 || recent[0].ID != "new" {
		t.Fatalf("expected the time-expired entry trimmed, got %+v", recent)
	}
}

func TestChatWindowRatePerSecAndBotFraction(t *testing.T) {
	w := NewChatWindow(100, time.Minute)
	base := time.Unix(1000, 0)
	cur := base
	w.now = func() time.Time { return cur }

	w.Add(msgAt("room:demo", "1", chatmodel.OriginHuman, "x"))
	w.Add(msgAt("room:demo", "2", chatmodel.OriginBot, "x"))
	w.Add(msgAt("room:demo", "3", chatmodel.OriginBot, "x"))

	rate := w.RatePerSec("room:demo", 10)
	if rate != 0.3 {
		t.Fatalf("expected 3 msgs / 10s = 0.3, got %v", rate)
	}
	frac := w.BotFraction("room:demo", 10)
	if frac != float64(2)/3 {
		t.Fatalf("expected bot fraction 2/3, got %v", frac)
	}
}

func TestChatWindowMentionHitsMatchesListAndInlineAt(t *testing.T) {
	w := NewChatWindow(100, time.Minute)
	base := time.Unix(1000, 0)
	w.now = func() time.Time { return base }

	m1 := msgAt("room:demo", "1", chatmodel.OriginHuman, "hey @spark how's it going")
	m2 := msgAt("room:demo", "2", chatmodel.OriginHuman, "unrelated")
	m2.Mentions = []string{"Spark"}
	w.Add(m1)
	w.Add(m2)

	hits := w.MentionHits("room:demo", "Spark", 30)
	if hits != 2 {
		t.Fatalf("expected both the inline @mention and the Mentions list entry to count, got %d", hits)
	}
}
