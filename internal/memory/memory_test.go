package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

type fakeBackend struct {
	items     []chatmodel.MemoryItem
	searchErr error
	addErr    error
	closed    bool
}

func (f *fakeBackend) Search(ctx context.Context, namespace, query string, topK int) ([]chatmodel.MemoryItem, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []chatmodel.MemoryItem
	for _, it := range f.items {
		if it.Namespace == namespace {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeBackend) Add(ctx context.Context, item chatmodel.MemoryItem) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.items = append(f.items, item)
	return nil
}

func (f *fakeBackend) Close() error {
	f.closed = true
	return nil
}

func TestNamespaceFormat(t *testing.T) {
	if got := Namespace("room:demo", "spark"); got != "room:room:demo|agent:spark" {
		t.Fatalf("unexpected namespace: %q", got)
	}
}

func TestAdapterSearchClampsTopKAndFiltersNamespace(t *testing.T) {
	ns := Namespace("room:demo", "spark")
	backend := &fakeBackend{items: []chatmodel.MemoryItem{
		{Namespace: ns, Content: "a"},
		{Namespace: "other", Content: "leaked"},
	}}
	a := NewAdapter(backend)

	items := a.Search(context.Background(), "room:demo", "spark", "q", 1)
	if len(items) != 1 || items[0].Content != "a" {
		t.Fatalf("expected only same-namespace items, got %+v", items)
	}
	if a.Degraded() {
		t.Fatal("expected not degraded after a successful search")
	}
	if a.ReadsSucceeded() != 1 {
		t.Fatalf("expected ReadsSucceeded=1, got %d", a.ReadsSucceeded())
	}
}

func TestAdapterSearchDegradesOnBackendError(t *testing.T) {
	backend := &fakeBackend{searchErr: errors.New("boom")}
	a := NewAdapter(backend)

	items := a.Search(context.Background(), "room:demo", "spark", "q", 6)
	if items != nil {
		t.Fatalf("expected nil results on backend error, got %+v", items)
	}
	if !a.Degraded() {
		t.Fatal("expected Degraded()=true after a backend search error")
	}
}

func TestAdapterAddRejectsDisallowedTypeAndRawChat(t *testing.T) {
	backend := &fakeBackend{}
	a := NewAdapter(backend)

	if a.Add(context.Background(), chatmodel.MemoryItem{Type: "not_allowed", Content: "x"}) {
		t.Fatal("expected disallowed type to be rejected")
	}
	if a.Add(context.Background(), chatmodel.MemoryItem{Type: chatmodel.MemoryNote, Content: "x", Source: "raw_chat"}) {
		t.Fatal("expected raw_chat source to be rejected")
	}
	if a.Add(context.Background(), chatmodel.MemoryItem{Type: chatmodel.MemoryNote, Content: ""}) {
		t.Fatal("expected empty content to be rejected")
	}
	if len(backend.items) != 0 {
		t.Fatalf("expected no items to reach the backend, got %+v", backend.items)
	}
}

func TestAdapterAddRejectsPII(t *testing.T) {
	backend := &fakeBackend{}
	a := NewAdapter(backend)

	cases := []string{
		"reach me at person@example.com anytime",
		"call me at 555-123-4567 later",
		"lives at 123 Main Street",
	}
	for _, content := range cases {
		if a.Add(context.Background(), chatmodel.MemoryItem{Type: chatmodel.MemoryNote, Content: content, Source: "reflection"}) {
			t.Fatalf("expected PII-bearing content to be rejected: %q", content)
		}
	}
	if len(backend.items) != 0 {
		t.Fatalf("expected no PII-bearing items to reach the backend, got %+v", backend.items)
	}
}

func TestAdapterAddAcceptsValidItemAndDegradesOnError(t *testing.T) {
	backend := &fakeBackend{}
	a := NewAdapter(backend)

	ok := a.Add(context.Background(), chatmodel.MemoryItem{Type: chatmodel.MemoryNote, Content: "likes cats", Source: "reflection"})
	if !ok {
		t.Fatal("expected a valid item to be accepted")
	}
	if a.WritesAccepted() != 1 || a.ItemsTotal() != 1 {
		t.Fatalf("expected counters incremented, got writes=%d items=%d", a.WritesAccepted(), a.ItemsTotal())
	}

	backend.addErr = errors.New("disk full")
	ok = a.Add(context.Background(), chatmodel.MemoryItem{Type: chatmodel.MemoryNote, Content: "another", Source: "reflection"})
	if ok {
		t.Fatal("expected a backend error to fail the add")
	}
	if !a.Degraded() {
		t.Fatal("expected Degraded()=true after a backend add error")
	}
}

func TestAdapterCloseDelegatesToBackend(t *testing.T) {
	backend := &fakeBackend{}
	a := NewAdapter(backend)
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !backend.closed {
		t.Fatal("expected Close to delegate to the backend")
	}
}
