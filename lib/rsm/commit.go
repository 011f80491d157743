package rsm

// Context is the substrate's view of "now" at apply time: the index of the
// commit currently being applied (or, during compaction, the compaction
// boundary). Filters are pure functions of current state plus a Context.
type Context struct {
	Index uint64
}

// Commit wraps a single operation with everything a handler needs to decide
// how to apply it: the log index it was assigned (strictly monotonic across
// the whole commit stream), the logical timestamp assigned by the substrate
// (monotonic non-decreasing), the session that submitted it, and the
// operation payload itself.
//
// A Commit is a handle, not a value: storing the whole Commit (rather than
// just the decoded operation) is what lets the TTL map recover a key's mode
// and authoring session long after the Put that created it, and what lets
// the group keep the original Join commit alive for a persistent member that
// has since lost its session. Ownership of the underlying log bytes
// transfers from the substrate to the state machine on Apply and back on
// Release; Retain/Release toggle the flag a Filter consults during
// compaction.
type Commit struct {
	Index       uint64
	TimestampMs int64
	SessionID   uint64
	Operation   any

	retained bool
}

// NewCommit wraps an operation delivered by the substrate. Commits start
// released; handlers that need to keep one alive past the end of their
// Update call Retain explicitly.
func NewCommit(index uint64, timestampMs int64, sessionID uint64, op any) *Commit {
	return &Commit{Index: index, TimestampMs: timestampMs, SessionID: sessionID, Operation: op}
}

// Retain marks the commit as still semantically live: a later compaction
// Filter call for this commit must return true until Release is called.
func (c *Commit) Retain() { c.retained = true }

// Release marks the commit as no longer needed by the state machine. Future
// compactions may drop its bytes. Release is idempotent.
func (c *Commit) Release() { c.retained = false }

// Retained reports whether the commit is currently retained.
func (c *Commit) Retained() bool { return c.retained }
