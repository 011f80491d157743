package rsm

import (
	"encoding/binary"
	"fmt"
)

// Envelope is the shape every proposed command and query takes on the
// wire, one layer above the payload codecs in ttlmap/wire and
// group/wire: it carries the fields a Commit needs that the payload
// itself does not encode - the proposing session and a client-assigned
// timestamp - so lib/rsm/dragonboat can decode entries into a Commit
// without the payload schema needing to know about sessions or time at
// all. dragonboat's own sm.Entry.Index supplies the log position; a Commit
// also needs a timestamp and a session id, which dragonboat's Entry does
// not expose to a concurrent state machine.
type Envelope struct {
	TimestampMs int64
	SessionID   uint64
	Payload     []byte
}

// Serialize encodes the envelope: 8 bytes TimestampMs, 8 bytes SessionID,
// then the raw payload.
func (e *Envelope) Serialize() []byte {
	buf := make([]byte, 8+8+len(e.Payload))
	binary.BigEndian.PutUint64(buf[0:8], uint64(e.TimestampMs))
	binary.BigEndian.PutUint64(buf[8:16], e.SessionID)
	copy(buf[16:], e.Payload)
	return buf
}

// Deserialize populates the envelope from data produced by Serialize.
func (e *Envelope) Deserialize(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("rsm: envelope data too short: %d bytes", len(data))
	}
	e.TimestampMs = int64(binary.BigEndian.Uint64(data[0:8]))
	e.SessionID = binary.BigEndian.Uint64(data[8:16])
	e.Payload = data[16:]
	return nil
}
