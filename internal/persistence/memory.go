// Package persistence 對戰結果的持久化
//
// 系統設計考量：
//
//  1. 每場對戰只寫一次：
//     引擎保證 Record 只被呼叫一次，實作仍以 upsert 寫入，重放時不會重複。
//
//  2. 失敗不阻塞驅逐：
//     主要儲存（PostgreSQL）失敗時，FallbackRecorder 把結果推進 Redis 佇列，
//     由排程工作定期重放回主要儲存。
//
//  3. 不持有對戰鎖：
//     所有實作都可能阻塞在 I/O 上，引擎只在釋放鎖之後呼叫。
package persistence

import (
	"context"
	"sync"

	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
)

// MemoryRecorder 記憶體結果儲存（storage: memory 與測試用）
type MemoryRecorder struct {
	mu      sync.RWMutex
	results map[string]match.Result
	order   []string
}

// NewMemoryRecorder 建立記憶體結果儲存
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{results: make(map[string]match.Result)}
}

// Record 儲存結果（同一對戰以最後一次為準）
func (r *MemoryRecorder) Record(_ context.Context, result match.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.results[result.MatchID]; !exists {
		r.order = append(r.order, result.MatchID)
	}
	r.results[result.MatchID] = result
	return nil
}

// Get 查詢結果
func (r *MemoryRecorder) Get(matchID string) (match.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[matchID]
	return result, ok
}

// Len 已儲存的結果數
func (r *MemoryRecorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.results)
}

// Recent 最近的 n 筆結果（新的在前）
func (r *MemoryRecorder) Recent(n int) []match.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || n > len(r.order) {
		n = len(r.order)
	}
	out := make([]match.Result, 0, n)
	for i := len(r.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.results[r.order[i]])
	}
	return out
}
