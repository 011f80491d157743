package wire

import (
	"bytes"
	"testing"

	"github.com/finnhorsman/ensemble/lib/rsm"
)

func TestOpSerializeDeserialize(t *testing.T) {
	tests := []struct {
		name string
		op   Op
	}{
		{
			name: "put with ttl",
			op: Op{
				Type:      OpPut,
				Key:       "session:42",
				Value:     []byte("payload"),
				Mode:      rsm.Ephemeral,
				TTLMillis: 30000,
			},
		},
		{
			name: "put with no value",
			op: Op{
				Type: OpPut,
				Key:  "k",
			},
		},
		{
			name: "conditional remove",
			op: Op{
				Type:            OpRemove,
				Key:             "k",
				Value:           []byte("expected"),
				HasCompareValue: true,
			},
		},
		{
			name: "get or default",
			op: Op{
				Type:        OpGetOrDefault,
				Key:         "k",
				Default:     []byte("fallback"),
				Consistency: rsm.Causal,
			},
		},
		{
			name: "clear has no key or value",
			op: Op{
				Type: OpClear,
			},
		},
		{
			name: "unicode key and binary value",
			op: Op{
				Type:  OpPutIfAbsent,
				Key:   "你好",
				Value: []byte{0, 1, 2, 255},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.op.Serialize()
			if len(data) != tt.op.SizeBytes() {
				t.Fatalf("SizeBytes() = %d, serialized length = %d", tt.op.SizeBytes(), len(data))
			}

			var got Op
			if err := got.Deserialize(data); err != nil {
				t.Fatalf("Deserialize() error = %v", err)
			}

			if got.Type != tt.op.Type {
				t.Errorf("Type mismatch: got %v, want %v", got.Type, tt.op.Type)
			}
			if got.Key != tt.op.Key {
				t.Errorf("Key mismatch: got %q, want %q", got.Key, tt.op.Key)
			}
			if got.Mode != tt.op.Mode {
				t.Errorf("Mode mismatch: got %v, want %v", got.Mode, tt.op.Mode)
			}
			if got.TTLMillis != tt.op.TTLMillis {
				t.Errorf("TTLMillis mismatch: got %d, want %d", got.TTLMillis, tt.op.TTLMillis)
			}
			if got.HasCompareValue != tt.op.HasCompareValue {
				t.Errorf("HasCompareValue mismatch: got %v, want %v", got.HasCompareValue, tt.op.HasCompareValue)
			}
			if got.Consistency != tt.op.Consistency {
				t.Errorf("Consistency mismatch: got %v, want %v", got.Consistency, tt.op.Consistency)
			}
			if !bytes.Equal(got.Value, tt.op.Value) && len(got.Value)+len(tt.op.Value) != 0 {
				t.Errorf("Value mismatch: got %v, want %v", got.Value, tt.op.Value)
			}
			if !bytes.Equal(got.Default, tt.op.Default) && len(got.Default)+len(tt.op.Default) != 0 {
				t.Errorf("Default mismatch: got %v, want %v", got.Default, tt.op.Default)
			}
		})
	}
}

func TestOpDeserializeTooShort(t *testing.T) {
	var op Op
	if err := op.Deserialize([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated data")
	}
}

func TestOpTypeMutating(t *testing.T) {
	mutating := []OpType{OpPut, OpPutIfAbsent, OpRemove, OpClear}
	for _, ot := range mutating {
		if !ot.Mutating() {
			t.Errorf("%s should be mutating", ot)
		}
	}
	readOnly := []OpType{OpGet, OpGetOrDefault, OpContainsKey, OpSize, OpIsEmpty}
	for _, ot := range readOnly {
		if ot.Mutating() {
			t.Errorf("%s should not be mutating", ot)
		}
	}
}
