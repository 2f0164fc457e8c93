package policy

import "hash/maphash"

// seed is process-wide but fixed so the same (room, persona, triggerID) key
// always hashes to the same draw within a process — reproducibility across
// runs of the same binary is not required by the spec (only within a test
// run / a single process), and a fixed seed keeps the hash pure.
var seed = maphash.MakeSeed()

// DeterministicDraw returns a value in [0, 1) derived purely from the key,
// letting tests reproduce Policy Engine outcomes without mocking randomness
// (spec.md §4.5 step 6, §9 "injected deterministic RNG"). Grounded on
// spec.md's own design note; no pack library offers a reproducible-by-key
// RNG primitive, so stdlib hash/maphash is used directly (see DESIGN.md).
func DeterministicDraw(room, persona, triggerID string) float64 {
	var h maphash.Hash
	h.SetSeed(seed)
	h.WriteString(room)
	h.WriteByte(0)
	h.WriteString(persona)
	h.WriteByte(0)
	h.WriteString(triggerID)
	sum := h.Sum64()
	// Use the top 53 bits so the float64 division is uniform over [0,1).
	return float64(sum>>11) / float64(1<<53)
}
