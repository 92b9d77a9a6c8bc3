package match

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore_GetOrCreate 測試取得或建立
func TestStore_GetOrCreate(t *testing.T) {
	s := NewStore()
	calls := 0
	create := func() *Match {
		calls++
		return newMatch(testSeed(), testConfig(), t0)
	}

	m1, created := s.GetOrCreate("match-1", create)
	assert.True(t, created)
	m2, created := s.GetOrCreate("match-1", create)
	assert.False(t, created)
	assert.Same(t, m1, m2)
	assert.Equal(t, 1, calls)
}

// TestStore_RemoveComparesPointer 測試過期的呼叫端不會移除新狀態
func TestStore_RemoveComparesPointer(t *testing.T) {
	s := NewStore()
	old, _ := s.GetOrCreate("match-1", func() *Match { return newMatch(testSeed(), testConfig(), t0) })

	require.True(t, s.Remove("match-1", old))
	assert.False(t, s.Remove("match-1", old), "只能移除一次")

	fresh, created := s.GetOrCreate("match-1", func() *Match { return newMatch(testSeed(), testConfig(), t0) })
	require.True(t, created)
	assert.NotSame(t, old, fresh)

	assert.False(t, s.Remove("match-1", old))
	got, ok := s.Get("match-1")
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

// TestStore_RangeAndLen 測試走訪與計數
func TestStore_RangeAndLen(t *testing.T) {
	s := NewStore()
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("match-%d", i)
		s.GetOrCreate(id, func() *Match {
			seed := testSeed()
			seed.MatchID = id
			return newMatch(seed, testConfig(), t0)
		})
	}
	assert.Equal(t, 100, s.Len())

	seen := 0
	s.Range(func(m *Match) bool {
		// fn 在分片鎖外執行，可以鎖定對戰甚至移除
		m.mu.Lock()
		s.Remove(m.ID(), m)
		m.mu.Unlock()
		seen++
		return true
	})
	assert.Equal(t, 100, seen)
	assert.Equal(t, 0, s.Len())

	s.GetOrCreate("a", func() *Match { return newMatch(testSeed(), testConfig(), t0) })
	s.GetOrCreate("b", func() *Match { return newMatch(testSeed(), testConfig(), t0) })
	stopped := 0
	s.Range(func(*Match) bool {
		stopped++
		return false
	})
	assert.Equal(t, 1, stopped)
}
