package engine

// rngState is the world's deterministic PRNG. It is a splitmix64 generator:
// simple, fast, and fully specified so replay on any platform reproduces
// identical sequences — the host-provided seeded PRNG modules are allowed to
// use (spec section 4.2 forbids any other randomness inside a module call).
type rngState struct {
	seed uint64
}

func newRNGState(seed uint64) *rngState {
	if seed == 0 {
		seed = 0x9E3779B97F4A7C15
	}
	return &rngState{seed: seed}
}

// Advance mutates the seed deterministically; called exactly once per tick.
func (r *rngState) Advance() {
	r.seed += 0x9E3779B97F4A7C15
}

// Seed returns the current seed value for persistence in the snapshot.
func (r *rngState) Seed() uint64 { return r.seed }

// Next produces the next pseudo-random value without mutating the tick
// cursor, for use inside a single tick's event application (e.g. crisis
// spawn selection).
func (r *rngState) Next() uint64 {
	z := r.seed + 0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
