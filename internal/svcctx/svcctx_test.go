package svcctx

import "testing"

func TestNewDefaultsConcurrencyWhenUnset(t *testing.T) {
	svc := New(nil, nil, nil, nil, nil, nil, 0, 0)
	if svc.LLMSem == nil || svc.MemSem == nil {
		t.Fatal("expected semaphores to be constructed even with zero concurrency inputs")
	}
	if !svc.LLMSem.TryAcquire(8) {
		t.Fatal("expected LLMSem to default to weight 8")
	}
	if !svc.MemSem.TryAcquire(8) {
		t.Fatal("expected MemSem to default to weight 8")
	}
}

func TestNewHonorsExplicitConcurrency(t *testing.T) {
	svc := New(nil, nil, nil, nil, nil, nil, 2, 3)
	if !svc.LLMSem.TryAcquire(2) {
		t.Fatal("expected LLMSem weight 2")
	}
	if svc.LLMSem.TryAcquire(1) {
		t.Fatal("expected LLMSem to be fully acquired at weight 2")
	}
	if !svc.MemSem.TryAcquire(3) {
		t.Fatal("expected MemSem weight 3")
	}
}

func TestNewDefaultsNowAndMemTimeout(t *testing.T) {
	svc := New(nil, nil, nil, nil, nil, nil, 0, 0)
	if svc.Now == nil {
		t.Fatal("expected a default Now func")
	}
	if svc.MemTimeout <= 0 {
		t.Fatal("expected a positive default MemTimeout")
	}
}
