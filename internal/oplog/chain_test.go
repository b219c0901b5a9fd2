package oplog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"caseledger/internal/op"
)

func TestChainStartsEmpty(t *testing.T) {
	chain := NewChain()
	_, ok := chain.Last("!case:one", "person.name")
	assert.False(t, ok)
}

func TestChainAdvanceAndLast(t *testing.T) {
	chain := NewChain()
	chain.Advance("!case:one", "person.name", op.INS, "op-1")

	entry, ok := chain.Last("!case:one", "person.name")
	assert.True(t, ok)
	assert.Equal(t, op.INS, entry.Op)
	assert.Equal(t, "op-1", entry.ID)

	chain.Advance("!case:one", "person.name", op.ALT, "op-2")
	entry, ok = chain.Last("!case:one", "person.name")
	assert.True(t, ok)
	assert.Equal(t, op.ALT, entry.Op)
	assert.Equal(t, "op-2", entry.ID)
}

func TestChainScopesByRoomAndTarget(t *testing.T) {
	chain := NewChain()
	chain.Advance("!case:one", "person.name", op.INS, "op-1")

	_, ok := chain.Last("!case:two", "person.name")
	assert.False(t, ok, "pointer leaked across rooms")

	_, ok = chain.Last("!case:one", "person.age")
	assert.False(t, ok, "pointer leaked across targets")
}
