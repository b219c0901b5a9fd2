package oplog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseledger/internal/op"
	"caseledger/internal/roomstore"
	"caseledger/internal/testutil"
)

// failingStore rejects every append with a transport failure.
type failingStore struct {
	*roomstore.Memory
}

func (f *failingStore) AppendTimelineEvent(ctx context.Context, roomID, eventType string, payload json.RawMessage) (string, error) {
	return "", &roomstore.TransportError{Op: "append_timeline_event", RoomID: roomID, Err: errors.New("unreachable")}
}

func newTestLog(store roomstore.Store, chain *Chain, opts ...Option) *Log {
	base := []Option{
		WithIDGenerator(testutil.NewSequenceIDs("op")),
		WithClock(testutil.NewFixedClock(1700000000000, 1000)),
	}
	return NewLog(store, chain, "@worker:cl.example.org", "cl.example.org", append(base, opts...)...)
}

func testFrame() op.Frame {
	return op.Frame{Type: "observed", Epistemic: "verified", Role: "case_manager"}
}

func TestAppendChainsProvenance(t *testing.T) {
	ctx := context.Background()
	store := roomstore.NewMemory()
	log := newTestLog(store, NewChain())

	first, err := log.Append(ctx, "!case:one", op.INS, "person.name", op.Obj(op.P("value", op.VString("Ana"))), testFrame())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Empty(t, first.Provenance, "first operation on a target has no local predecessor")

	second, err := log.Append(ctx, "!case:one", op.ALT, "person.name", op.Obj(op.P("value", op.VString("Ana M."))), testFrame())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, []string{first.ID}, second.Provenance)

	third, err := log.Append(ctx, "!case:one", op.ALT, "person.name", op.Obj(op.P("value", op.VString("Ana Maria"))), testFrame(), "consent:c-9")
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Equal(t, []string{"consent:c-9", second.ID}, third.Provenance,
		"extra provenance precedes the chain link")
}

func TestAppendSeparateTargetsSeparateChains(t *testing.T) {
	ctx := context.Background()
	log := newTestLog(roomstore.NewMemory(), NewChain())

	_, err := log.Append(ctx, "!case:one", op.INS, "person.name", op.Obj(op.P("value", op.VString("Ana"))), testFrame())
	require.NoError(t, err)

	other, err := log.Append(ctx, "!case:one", op.INS, "person.age", op.Obj(op.P("value", op.VInt(34))), testFrame())
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Empty(t, other.Provenance, "different target must not inherit the chain")
}

func TestAppendWritesDecodableRecords(t *testing.T) {
	ctx := context.Background()
	store := roomstore.NewMemory()
	log := newTestLog(store, NewChain())

	appended, err := log.Append(ctx, "!case:one", op.INS, "person.name", op.Obj(op.P("value", op.VString("Ana"))), testFrame())
	require.NoError(t, err)
	require.NotNil(t, appended)

	records, err := ReadRecords(ctx, store, "!case:one")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, *appended, records[0])
}

func TestAppendRejectsInvalidInputs(t *testing.T) {
	ctx := context.Background()
	store := roomstore.NewMemory()
	chain := NewChain()
	log := newTestLog(store, chain)

	_, err := log.Append(ctx, "!case:one", op.Operator(99), "person.name", op.VObject{}, testFrame())
	require.Error(t, err)

	_, err = log.Append(ctx, "!case:one", op.INS, "", op.VObject{}, testFrame())
	require.Error(t, err)

	events, err := store.ReadTimeline(ctx, "!case:one", EventType)
	require.NoError(t, err)
	assert.Empty(t, events, "invalid inputs must not reach the store")

	_, ok := chain.Last("!case:one", "person.name")
	assert.False(t, ok, "invalid inputs must not advance the chain")
}

func TestFailedAppendAdvancesChainWithFailureMarker(t *testing.T) {
	ctx := context.Background()
	chain := NewChain()
	log := newTestLog(&failingStore{Memory: roomstore.NewMemory()}, chain)

	record, err := log.Append(ctx, "!case:one", op.INS, "person.name", op.Obj(op.P("value", op.VString("Ana"))), testFrame())
	require.NoError(t, err, "unconfirmed appends are not error returns")
	assert.Nil(t, record, "nil record marks the append unconfirmed")

	entry, ok := chain.Last("!case:one", "person.name")
	require.True(t, ok, "chain must advance even when persistence failed")
	assert.True(t, strings.HasPrefix(entry.ID, "failed:"), "pointer id %q lacks failure marker", entry.ID)
	assert.Equal(t, op.INS, entry.Op)
}

func TestAppendAfterFailureLinksToFailureMarker(t *testing.T) {
	ctx := context.Background()
	chain := NewChain()
	failing := &failingStore{Memory: roomstore.NewMemory()}

	record, err := newTestLog(failing, chain).Append(ctx, "!case:one", op.INS, "person.name", op.Obj(op.P("value", op.VString("Ana"))), testFrame())
	require.NoError(t, err)
	require.Nil(t, record)

	// Same session, store recovered.
	record, err = newTestLog(roomstore.NewMemory(), chain).Append(ctx, "!case:one", op.ALT, "person.name", op.Obj(op.P("value", op.VString("Ana M."))), testFrame())
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Len(t, record.Provenance, 1)
	assert.True(t, strings.HasPrefix(record.Provenance[0], "failed:"),
		"successor must point at the failure marker, got %q", record.Provenance[0])
}

func TestAppendPublishesToBusOnSuccessOnly(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(4)

	log := newTestLog(roomstore.NewMemory(), NewChain(), WithBus(bus))
	appended, err := log.Append(ctx, "!case:one", op.INS, "person.name", op.Obj(op.P("value", op.VString("Ana"))), testFrame())
	require.NoError(t, err)
	require.NotNil(t, appended)

	failed := newTestLog(&failingStore{Memory: roomstore.NewMemory()}, NewChain(), WithBus(bus))
	record, err := failed.Append(ctx, "!case:one", op.INS, "person.name", op.Obj(op.P("value", op.VString("Ana"))), testFrame())
	require.NoError(t, err)
	require.Nil(t, record)

	select {
	case n := <-bus.Events():
		assert.Equal(t, appended.ID, n.Record.ID)
		assert.Equal(t, "!case:one", n.Room)
	default:
		t.Fatal("expected one notification for the confirmed append")
	}
	select {
	case n := <-bus.Events():
		t.Fatalf("unexpected notification for unconfirmed append: %+v", n)
	default:
	}
}

func TestReadRecordsEmptyRoom(t *testing.T) {
	records, err := ReadRecords(context.Background(), roomstore.NewMemory(), "!case:empty")
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
