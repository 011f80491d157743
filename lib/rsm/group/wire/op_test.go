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
			name: "join persistent",
			op:   Op{Type: OpJoin, MemberID: "worker-1", Mode: rsm.Persistent},
		},
		{
			name: "join ephemeral",
			op:   Op{Type: OpJoin, MemberID: "worker-2", Mode: rsm.Ephemeral},
		},
		{
			name: "leave",
			op:   Op{Type: OpLeave, MemberID: "worker-1"},
		},
		{
			name: "listen carries no payload",
			op:   Op{Type: OpListen},
		},
		{
			name: "direct submit",
			op: Op{
				Type: OpSubmit, MemberID: "worker-1", MessageID: 99,
				MessageType: "ping", MessageBody: []byte("hello"),
			},
		},
		{
			name: "broadcast retry submit",
			op: Op{
				Type: OpSubmit, MessageID: 7, Dispatch: DispatchBroadcast, Delivery: DeliveryRetry,
				MessageType: "tick",
			},
		},
		{
			name: "ack success",
			op:   Op{Type: OpAck, MemberID: "worker-1", MessageID: 99, Succeeded: true},
		},
		{
			name: "ack failure",
			op:   Op{Type: OpAck, MemberID: "worker-1", MessageID: 99, Succeeded: false},
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
			if got.MemberID != tt.op.MemberID {
				t.Errorf("MemberID mismatch: got %q, want %q", got.MemberID, tt.op.MemberID)
			}
			if got.Mode != tt.op.Mode {
				t.Errorf("Mode mismatch: got %v, want %v", got.Mode, tt.op.Mode)
			}
			if got.Dispatch != tt.op.Dispatch {
				t.Errorf("Dispatch mismatch: got %v, want %v", got.Dispatch, tt.op.Dispatch)
			}
			if got.Delivery != tt.op.Delivery {
				t.Errorf("Delivery mismatch: got %v, want %v", got.Delivery, tt.op.Delivery)
			}
			if got.Succeeded != tt.op.Succeeded {
				t.Errorf("Succeeded mismatch: got %v, want %v", got.Succeeded, tt.op.Succeeded)
			}
			if got.MessageID != tt.op.MessageID {
				t.Errorf("MessageID mismatch: got %d, want %d", got.MessageID, tt.op.MessageID)
			}
			if got.MessageType != tt.op.MessageType {
				t.Errorf("MessageType mismatch: got %q, want %q", got.MessageType, tt.op.MessageType)
			}
			if !bytes.Equal(got.MessageBody, tt.op.MessageBody) && len(got.MessageBody)+len(tt.op.MessageBody) != 0 {
				t.Errorf("MessageBody mismatch: got %v, want %v", got.MessageBody, tt.op.MessageBody)
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
