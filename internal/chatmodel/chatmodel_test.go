package chatmodel

import "testing"

func TestTraceAppendProcessedByDeduplicates(t *testing.T) {
	tr := &Trace{}
	tr.AppendProcessedBy("chat_gateway")
	tr.AppendProcessedBy("persona_worker")
	tr.AppendProcessedBy("chat_gateway")
	if len(tr.ProcessedBy) != 2 {
		t.Fatalf("expected duplicates to be skipped, got %+v", tr.ProcessedBy)
	}
	if tr.ProcessedBy[0] != "chat_gateway" || tr.ProcessedBy[1] != "persona_worker" {
		t.Fatalf("expected insertion order preserved, got %+v", tr.ProcessedBy)
	}
}

func TestTraceAppendProcessedByInitializesNilSlice(t *testing.T) {
	tr := &Trace{}
	tr.AppendProcessedBy("chat_gateway")
	if len(tr.ProcessedBy) != 1 {
		t.Fatalf("expected a fresh slice with one entry, got %+v", tr.ProcessedBy)
	}
}
