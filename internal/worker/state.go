package worker

import (
	"sync"
	"time"

	"github.com/chatsim/chatsim/internal/chatmodel"
	"github.com/chatsim/chatsim/internal/policy"
)

// dedupeTTL bounds how long a seen trigger.id is remembered. At-least-once
// delivery means a trigger can reappear after a consumer restart; bounding
// the set keeps memory flat across a long-running process.
const dedupeTTL = 10 * time.Minute

// ownMessageWindow is the number of a persona's own most recent posts kept
// for the reflection loop's extraction prompt.
const ownMessageWindow = 20

// PersonaRuntime is the mutable per-(room, persona) state a worker owns.
// The mutex is held only while updating counters, never across I/O — bus
// reads, generation, and memory calls all happen outside the lock.
type PersonaRuntime struct {
	mu sync.Mutex

	Policy policy.PersonaState
	Drift  chatmodel.PersonaDrift

	LastAutoTS int64 // UTC ms of the last auto-commentary post

	ownMessages []string
	dedupe      map[string]time.Time

	LastReflectionTS        int64
	MessagesSinceReflection int
}

// NewPersonaRuntime seeds runtime state from a persona's configured drift anchors.
func NewPersonaRuntime(cfg chatmodel.PersonaConfig) *PersonaRuntime {
	return &PersonaRuntime{
		Policy: policy.PersonaState{Talkativeness: cfg.Drift.Talkativeness.Value},
		Drift:  cfg.Drift,
		dedupe: make(map[string]time.Time),
	}
}

// SeenTrigger reports whether triggerID was already processed recently and,
// if not, marks it seen. Safe for concurrent use.
func (r *PersonaRuntime) SeenTrigger(triggerID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, seenAt := range r.dedupe {
		if now.Sub(seenAt) > dedupeTTL {
			delete(r.dedupe, id)
		}
	}
	if _, ok := r.dedupe[triggerID]; ok {
		return true
	}
	r.dedupe[triggerID] = now
	return false
}

// RecordPost updates last-post and budget-window bookkeeping after a
// successful publish.
func (r *PersonaRuntime) RecordPost(nowMS int64, windowS int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Policy.LastPostTS = nowMS
	r.Policy.PostsInWindow = append(r.Policy.PostsInWindow, nowMS)
	if windowS > 0 {
		cutoff := nowMS - int64(windowS)*1000
		kept := r.Policy.PostsInWindow[:0]
		for _, ts := range r.Policy.PostsInWindow {
			if ts >= cutoff {
				kept = append(kept, ts)
			}
		}
		r.Policy.PostsInWindow = kept
	}
}

// RecordAutoPost updates the auto-commentary cooldown timestamp.
func (r *PersonaRuntime) RecordAutoPost(nowMS int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LastAutoTS = nowMS
}

// Snapshot returns a copy of the Policy state for a read-only Evaluate call.
func (r *PersonaRuntime) Snapshot() policy.PersonaState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.Policy
	out.PostsInWindow = append([]int64(nil), r.Policy.PostsInWindow...)
	return out
}

// AutoCooldownElapsed reports whether at least cooldownMS has passed since
// the last auto-commentary post.
func (r *PersonaRuntime) AutoCooldownElapsed(nowMS, cooldownMS int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.LastAutoTS == 0 || nowMS-r.LastAutoTS >= cooldownMS
}

// RecordOwnMessage appends content to the own-message ring the reflection
// loop reads from, and reports whether a reflection cycle is now due by
// message count.
func (r *PersonaRuntime) RecordOwnMessage(content string, reflectEvery int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ownMessages = append(r.ownMessages, content)
	if len(r.ownMessages) > ownMessageWindow {
		r.ownMessages = r.ownMessages[len(r.ownMessages)-ownMessageWindow:]
	}
	r.MessagesSinceReflection++
	return reflectEvery > 0 && r.MessagesSinceReflection >= reflectEvery
}

// OwnMessages returns a copy of the recent own-message ring.
func (r *PersonaRuntime) OwnMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ownMessages...)
}

// ReflectionDueByInterval reports whether intervalS seconds have passed
// since the last reflection cycle.
func (r *PersonaRuntime) ReflectionDueByInterval(nowMS int64, intervalS int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if intervalS <= 0 {
		return false
	}
	return nowMS-r.LastReflectionTS >= int64(intervalS)*1000
}

// MarkReflected resets the reflection counters after a completed cycle.
func (r *PersonaRuntime) MarkReflected(nowMS int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LastReflectionTS = nowMS
	r.MessagesSinceReflection = 0
}

// ApplyDrift nudges drift knobs by the given deltas (each clamped to
// +/-0.02 per cycle by the caller) and returns the resulting summary.
func (r *PersonaRuntime) ApplyDrift(dTalk, dPos, dSnark, maxStep float64) chatmodel.PersonaDrift {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Drift.Talkativeness.Nudge(dTalk, maxStep)
	r.Drift.Positivity.Nudge(dPos, maxStep)
	r.Drift.Snark.Nudge(dSnark, maxStep)
	r.Policy.Talkativeness = r.Drift.Talkativeness.Value
	return r.Drift
}

// DriftSnapshot returns a copy of the current drift knobs.
func (r *PersonaRuntime) DriftSnapshot() chatmodel.PersonaDrift {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Drift
}
