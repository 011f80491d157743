package dragonboat

import (
	"encoding/binary"
	"fmt"
)

// EntryKind tags a log entry as either session lifecycle bookkeeping or an
// ordinary state machine command/query, so a single Update loop can
// interleave both without a second log or channel.
type EntryKind uint8

const (
	EntryCommand EntryKind = iota
	EntrySessionRegister
	EntrySessionExpire
	EntrySessionClose
)

// SessionEntry is the payload of a reserved session-lifecycle entry: just
// the session id, since register/expire/close carry no other data.
type SessionEntry struct {
	SessionID uint64
}

func (s *SessionEntry) Serialize() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, s.SessionID)
	return buf
}

func (s *SessionEntry) Deserialize(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("dragonboat: session entry too short: %d bytes", len(data))
	}
	s.SessionID = binary.BigEndian.Uint64(data)
	return nil
}

// WrapCommand prefixes a command/query envelope with EntryCommand so it
// can share a log with session lifecycle entries.
func WrapCommand(payload []byte) []byte {
	return append([]byte{byte(EntryCommand)}, payload...)
}

// WrapSession prefixes a SessionEntry with its EntryKind.
func WrapSession(kind EntryKind, sessionID uint64) []byte {
	se := SessionEntry{SessionID: sessionID}
	return append([]byte{byte(kind)}, se.Serialize()...)
}

// UnwrapEntry splits a raw log entry back into its kind and remaining
// bytes.
func UnwrapEntry(data []byte) (EntryKind, []byte, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("dragonboat: empty entry")
	}
	return EntryKind(data[0]), data[1:], nil
}
