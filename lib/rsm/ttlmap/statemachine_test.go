package ttlmap

import (
	"bytes"
	"testing"

	"github.com/finnhorsman/ensemble/lib/rsm"
	"github.com/finnhorsman/ensemble/lib/rsm/ttlmap/wire"
)

func apply(t *testing.T, m *StateMachine, index uint64, tsMs int64, session uint64, op *wire.Op) *wire.Result {
	t.Helper()
	res, err := m.Apply(rsm.NewCommit(index, tsMs, session, op))
	if err != nil {
		t.Fatalf("Apply(%v) error = %v", op.Type, err)
	}
	return res
}

func TestPutThenGet(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	apply(t, m, 1, 0, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v1")})
	res := apply(t, m, 2, 0, 1, &wire.Op{Type: wire.OpGet, Key: "k"})

	if !res.Found || !bytes.Equal(res.Value, []byte("v1")) {
		t.Fatalf("Get = %+v, want found v1", res)
	}
}

func TestPutReturnsPreviousValue(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	apply(t, m, 1, 0, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v1")})
	res := apply(t, m, 2, 0, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v2")})

	if !res.Found || !bytes.Equal(res.Value, []byte("v1")) {
		t.Fatalf("Put overwrite result = %+v, want previous value v1", res)
	}
}

func TestPutIfAbsentDoesNotOverwrite(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	apply(t, m, 1, 0, 1, &wire.Op{Type: wire.OpPutIfAbsent, Key: "k", Value: []byte("v1")})
	res := apply(t, m, 2, 0, 1, &wire.Op{Type: wire.OpPutIfAbsent, Key: "k", Value: []byte("v2")})
	if !res.Found || !bytes.Equal(res.Value, []byte("v1")) {
		t.Fatalf("PutIfAbsent collision result = %+v, want existing v1", res)
	}

	get := apply(t, m, 3, 0, 1, &wire.Op{Type: wire.OpGet, Key: "k"})
	if !bytes.Equal(get.Value, []byte("v1")) {
		t.Fatalf("value should remain v1, got %q", get.Value)
	}
}

func TestTTLExpiryOnAccess(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	apply(t, m, 1, 1000, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v"), TTLMillis: 500})

	// Within TTL: still visible.
	res := apply(t, m, 2, 1400, 1, &wire.Op{Type: wire.OpContainsKey, Key: "k"})
	if !res.Found {
		t.Fatalf("expected key to still be active at t=1400")
	}

	// Past TTL: evicted on access.
	res = apply(t, m, 3, 1600, 1, &wire.Op{Type: wire.OpGet, Key: "k"})
	if res.Found {
		t.Fatalf("expected key to be expired at t=1600, got %+v", res)
	}

	size := apply(t, m, 4, 1600, 1, &wire.Op{Type: wire.OpSize})
	if size.Size != 0 {
		t.Fatalf("expired entry should have been evicted, size = %d", size.Size)
	}
}

func TestEphemeralDiesWithSession(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()
	m.OnRegister(7)

	apply(t, m, 1, 0, 7, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v"), Mode: rsm.Ephemeral})

	res := apply(t, m, 2, 0, 7, &wire.Op{Type: wire.OpGet, Key: "k"})
	if !res.Found {
		t.Fatalf("entry should be active while session is registered")
	}

	m.OnExpire(7)
	res = apply(t, m, 3, 0, 7, &wire.Op{Type: wire.OpGet, Key: "k"})
	if res.Found {
		t.Fatalf("ephemeral entry should die with its session, got %+v", res)
	}
}

func TestPersistentSurvivesSessionLoss(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()
	m.OnRegister(7)

	apply(t, m, 1, 0, 7, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v"), Mode: rsm.Persistent})
	m.OnExpire(7)

	res := apply(t, m, 2, 0, 7, &wire.Op{Type: wire.OpGet, Key: "k"})
	if !res.Found {
		t.Fatalf("persistent entry should survive session loss")
	}
}

func TestGetOrDefault(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	res := apply(t, m, 1, 0, 1, &wire.Op{Type: wire.OpGetOrDefault, Key: "missing", Default: []byte("fallback")})
	if !bytes.Equal(res.Value, []byte("fallback")) {
		t.Fatalf("GetOrDefault on missing key = %q, want fallback", res.Value)
	}

	apply(t, m, 2, 0, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v")})
	res = apply(t, m, 3, 0, 1, &wire.Op{Type: wire.OpGetOrDefault, Key: "k", Default: []byte("fallback")})
	if !bytes.Equal(res.Value, []byte("v")) {
		t.Fatalf("GetOrDefault on present key = %q, want v", res.Value)
	}
}

func TestRemoveUnconditional(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	apply(t, m, 1, 0, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v")})
	res := apply(t, m, 2, 0, 1, &wire.Op{Type: wire.OpRemove, Key: "k"})
	if !res.Found || !bytes.Equal(res.Value, []byte("v")) {
		t.Fatalf("Remove() = %+v, want found v", res)
	}

	res = apply(t, m, 3, 0, 1, &wire.Op{Type: wire.OpContainsKey, Key: "k"})
	if res.Found {
		t.Fatalf("key should be gone after Remove")
	}
}

func TestRemoveConditional(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	apply(t, m, 1, 0, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v")})

	miss := apply(t, m, 2, 0, 1, &wire.Op{
		Type: wire.OpRemove, Key: "k", Value: []byte("wrong"), HasCompareValue: true,
	})
	if miss.Found {
		t.Fatalf("conditional remove with mismatched value should not remove")
	}

	hit := apply(t, m, 3, 0, 1, &wire.Op{
		Type: wire.OpRemove, Key: "k", Value: []byte("v"), HasCompareValue: true,
	})
	if !hit.Found {
		t.Fatalf("conditional remove with matching value should remove")
	}
}

func TestClearSizeIsEmpty(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	apply(t, m, 1, 0, 1, &wire.Op{Type: wire.OpPut, Key: "a", Value: []byte("1")})
	apply(t, m, 2, 0, 1, &wire.Op{Type: wire.OpPut, Key: "b", Value: []byte("2")})

	size := apply(t, m, 3, 0, 1, &wire.Op{Type: wire.OpSize})
	if size.Size != 2 {
		t.Fatalf("Size() = %d, want 2", size.Size)
	}

	empty := apply(t, m, 4, 0, 1, &wire.Op{Type: wire.OpIsEmpty})
	if empty.Found {
		t.Fatalf("IsEmpty() should be false with entries present")
	}

	apply(t, m, 5, 0, 1, &wire.Op{Type: wire.OpClear})

	empty = apply(t, m, 6, 0, 1, &wire.Op{Type: wire.OpIsEmpty})
	if !empty.Found {
		t.Fatalf("IsEmpty() should be true after Clear")
	}
}

func TestFilterKeepsLatestWriteAndDropsOldOverwritten(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	first := rsm.NewCommit(1, 0, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v1")})
	if _, err := m.Apply(first); err != nil {
		t.Fatal(err)
	}
	second := rsm.NewCommit(2, 0, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v2")})
	if _, err := m.Apply(second); err != nil {
		t.Fatal(err)
	}

	if m.Filter(first, rsm.Context{Index: 2}) {
		t.Fatalf("superseded Put commit should be filtered out")
	}
	if !m.Filter(second, rsm.Context{Index: 2}) {
		t.Fatalf("current Put commit should be retained")
	}
}

func TestFilterRemoveDropsOnceCompactionPassesItsIndex(t *testing.T) {
	m := New(t.Name())
	defer m.metrics.Unregister()

	apply(t, m, 1, 0, 1, &wire.Op{Type: wire.OpPut, Key: "k", Value: []byte("v")})
	remove := rsm.NewCommit(2, 0, 1, &wire.Op{Type: wire.OpRemove, Key: "k"})
	if _, err := m.Apply(remove); err != nil {
		t.Fatal(err)
	}

	if !m.Filter(remove, rsm.Context{Index: 1}) {
		t.Fatalf("remove commit should still be retained before compaction passes its index")
	}
	if m.Filter(remove, rsm.Context{Index: 2}) {
		t.Fatalf("remove commit should be dropped once compaction passes its index")
	}
}
