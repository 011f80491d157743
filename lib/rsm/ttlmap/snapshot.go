package ttlmap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/ttlmap/wire"
)

// snapshotMagic and snapshotVersion guard against loading a snapshot taken
// by an incompatible build.
const (
	snapshotMagic   = "ENSTTL01"
	snapshotVersion = uint8(1)
)

// Snapshot writes asOfMs and every entry still active as of asOfMs to w:
// an entry whose TTL had elapsed by asOfMs, or an Ephemeral entry whose
// session is no longer registered, is not persisted. asOfMs is the logical
// clock value to evaluate activity against; TTLMapFSM.SaveSnapshot passes 0.
func (m *StateMachine) Snapshot(w io.Writer, asOfMs int64) error {
	bw := bufio.NewWriterSize(w, 64*1024)

	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, snapshotVersion); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, asOfMs); err != nil {
		return err
	}

	type row struct {
		key     string
		index   uint64
		ts      int64
		session uint64
		op      []byte
	}
	var rows []row
	m.entries.Range(func(key string, commit *rsm.Commit) bool {
		savedTime := m.timeMs
		m.timeMs = asOfMs
		active := m.isActive(commit)
		m.timeMs = savedTime
		if !active {
			return true
		}
		op := commit.Operation.(*wire.Op)
		rows = append(rows, row{
			key:     key,
			index:   commit.Index,
			ts:      commit.TimestampMs,
			session: commit.SessionID,
			op:      op.Serialize(),
		})
		return true
	})

	if err := binary.Write(bw, binary.LittleEndian, uint64(len(rows))); err != nil {
		return err
	}
	for _, r := range rows {
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(r.key))); err != nil {
			return err
		}
		if _, err := bw.WriteString(r.key); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, r.index); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, r.ts); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, r.session); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint32(len(r.op))); err != nil {
			return err
		}
		if _, err := bw.Write(r.op); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Restore replaces the machine's entire state with the contents of a
// snapshot produced by Snapshot. The machine must be otherwise empty.
func (m *StateMachine) Restore(r io.Reader) error {
	br := bufio.NewReaderSize(r, 64*1024)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return fmt.Errorf("ttlmap: reading snapshot magic: %w", err)
	}
	if string(magic) != snapshotMagic {
		return fmt.Errorf("ttlmap: bad snapshot magic %q", magic)
	}

	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != snapshotVersion {
		return fmt.Errorf("ttlmap: unsupported snapshot version %d", version)
	}

	var asOfMs int64
	if err := binary.Read(br, binary.LittleEndian, &asOfMs); err != nil {
		return err
	}
	if asOfMs > m.timeMs {
		m.timeMs = asOfMs
	}

	var count uint64
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return err
	}

	for i := uint64(0); i < count; i++ {
		var keyLen uint32
		if err := binary.Read(br, binary.LittleEndian, &keyLen); err != nil {
			return err
		}
		keyBytes := make([]byte, keyLen)
		if _, err := io.ReadFull(br, keyBytes); err != nil {
			return err
		}

		var index uint64
		var ts int64
		var session uint64
		if err := binary.Read(br, binary.LittleEndian, &index); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &ts); err != nil {
			return err
		}
		if err := binary.Read(br, binary.LittleEndian, &session); err != nil {
			return err
		}

		var opLen uint32
		if err := binary.Read(br, binary.LittleEndian, &opLen); err != nil {
			return err
		}
		opBytes := make([]byte, opLen)
		if _, err := io.ReadFull(br, opBytes); err != nil {
			return err
		}

		op := &wire.Op{}
		if err := op.Deserialize(opBytes); err != nil {
			return err
		}

		commit := rsm.NewCommit(index, ts, session, op)
		commit.Retain()
		m.entries.Store(string(keyBytes), commit)
	}

	return nil
}
