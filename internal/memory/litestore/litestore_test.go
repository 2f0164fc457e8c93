package litestore

import (
	"context"
	"testing"

	"github.com/chatsim/chatsim/internal/chatmodel"
)

func TestOpenCreatesSchema(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
}

func TestAddAndSearchRoundTrip(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	ns := "room:demo|agent:spark"
	items := []chatmodel.MemoryItem{
		{Namespace: ns, Type: chatmodel.MemoryNote, Confidence: chatmodel.ConfidenceMed, Source: "reflection", Content: "likes cats", CreatedAt: 1},
		{Namespace: ns, Type: chatmodel.MemoryNote, Confidence: chatmodel.ConfidenceMed, Source: "reflection", Content: "plays piano", CreatedAt: 2},
		{Namespace: "room:demo|agent:echo", Type: chatmodel.MemoryNote, Confidence: chatmodel.ConfidenceMed, Source: "reflection", Content: "likes cats too", CreatedAt: 1},
	}
	for _, it := range items {
		if err := s.Add(ctx, it); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	results, err := s.Search(ctx, ns, "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected only the matching namespace's items, got %+v", results)
	}
	if results[0].Content != "plays piano" {
		t.Fatalf("expected newest-first order, got %q", results[0].Content)
	}
}

func TestSearchFiltersByQuerySubstring(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	ns := "room:demo|agent:spark"
	s.Add(ctx, chatmodel.MemoryItem{Namespace: ns, Type: chatmodel.MemoryNote, Confidence: chatmodel.ConfidenceMed, Source: "reflection", Content: "likes cats", CreatedAt: 1})
	s.Add(ctx, chatmodel.MemoryItem{Namespace: ns, Type: chatmodel.MemoryNote, Confidence: chatmodel.ConfidenceMed, Source: "reflection", Content: "plays piano", CreatedAt: 2})

	results, err := s.Search(ctx, ns, "cats", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Content != "likes cats" {
		t.Fatalf("expected only the matching-content item, got %+v", results)
	}
}

func TestAddDuplicateContentInSameNamespaceIgnored(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	ns := "room:demo|agent:spark"
	item := chatmodel.MemoryItem{Namespace: ns, Type: chatmodel.MemoryNote, Confidence: chatmodel.ConfidenceMed, Source: "reflection", Content: "likes cats", CreatedAt: 1}
	if err := s.Add(ctx, item); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := s.Add(ctx, item); err != nil {
		t.Fatalf("second Add (should be ignored, not error): %v", err)
	}

	results, err := s.Search(ctx, ns, "", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected the UNIQUE(namespace, content) constraint to dedupe, got %+v", results)
	}
}
