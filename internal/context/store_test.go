package context

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetUnknownUser(t *testing.T) {
	s := NewMemoryStore()

	assert.Equal(t, "", s.Get(7))
	assert.Empty(t, ParseTranscript(s.Get(7)))
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_AppendThenParse(t *testing.T) {
	s := NewMemoryStore()
	s.Append(42, RoleUser, "Hello")
	s.Append(42, RoleAssistant, "Hi there")

	got := ParseTranscript(s.Get(42))
	assert.Equal(t, []Message{
		{Role: "user", Content: "Hello"},
		{Role: "assistant", Content: "Hi there"},
	}, got)
}

func TestMemoryStore_AppendAcceptsAnyRole(t *testing.T) {
	s := NewMemoryStore()
	s.Append(1, "system", "not forwarded")

	assert.Equal(t, "role: system\nnot forwarded\n\n", s.Get(1))
	assert.Empty(t, ParseTranscript(s.Get(1)))
}

func TestMemoryStore_ClearUnknownUser(t *testing.T) {
	s := NewMemoryStore()

	assert.False(t, s.Clear(7))
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Clear(7))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_ClearKeepsEntry(t *testing.T) {
	s := NewMemoryStore()
	s.Append(3, RoleUser, "remember me")

	assert.True(t, s.Clear(3))
	assert.Equal(t, "", s.Get(3))
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Clear(3))
}

func TestMemoryStore_ClearAfterGet(t *testing.T) {
	s := NewMemoryStore()
	_ = s.Get(9)

	assert.True(t, s.Clear(9))
}

func TestMemoryStore_Isolation(t *testing.T) {
	s := NewMemoryStore()
	s.Append(1, RoleUser, "from one")
	s.Append(2, RoleUser, "from two")

	require.True(t, s.Clear(1))
	assert.Equal(t, "", s.Get(1))
	assert.Equal(t, []Message{{Role: RoleUser, Content: "from two"}}, ParseTranscript(s.Get(2)))
}

func TestMemoryStore_ConcurrentAppendsStayWellFormed(t *testing.T) {
	s := NewMemoryStore()
	const writers = 16
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Append(int64(w%4), RoleUser, fmt.Sprintf("w%d-%d", w, i))
				_ = s.Get(int64(w % 4))
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for user := int64(0); user < 4; user++ {
		msgs := ParseTranscript(s.Get(user))
		for _, m := range msgs {
			assert.Equal(t, RoleUser, m.Role)
		}
		total += len(msgs)
	}
	assert.Equal(t, writers*perWriter, total)
}

func TestMemoryStore_ImplementsStore(t *testing.T) {
	var _ Store = NewMemoryStore()
}
