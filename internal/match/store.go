package match

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// Store 進程內的對戰註冊表
//
// 系統設計考量：
//
//  1. 分片（sharding）：
//     問題：單一 map + 單一鎖會讓不相關的對戰互相等待
//     方案：依 matchID 的 FNV 雜湊分到 32 個分片，每個分片一把 RWMutex
//
//  2. 鎖範圍：
//     分片鎖只保護 map 本身的讀寫，從不在持有分片鎖時碰觸 Match.mu，
//     鎖順序固定為 Match.mu → 分片鎖。
//
//  3. 指標比對移除：
//     Remove 只刪除「自己那一份」狀態，過期的呼叫端不會誤刪同 ID 的新對戰。
type Store struct {
	shards [shardCount]*shard
}

type shard struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

// NewStore 建立 Session Store
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{matches: make(map[string]*Match)}
	}
	return s
}

func (s *Store) shardFor(matchID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(matchID))
	return s.shards[h.Sum32()%shardCount]
}

// GetOrCreate 返回既有對戰，不存在時以 create 建立
//
// 同一 matchID 的並發呼叫只會建立一份狀態。create 在分片寫鎖內執行，必須夠輕量。
func (s *Store) GetOrCreate(matchID string, create func() *Match) (*Match, bool) {
	sh := s.shardFor(matchID)

	sh.mu.RLock()
	m, ok := sh.matches[matchID]
	sh.mu.RUnlock()
	if ok {
		return m, false
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	// 雙重檢查：取得寫鎖前可能已有其他 goroutine 建立
	if m, ok := sh.matches[matchID]; ok {
		return m, false
	}
	m = create()
	sh.matches[matchID] = m
	return m, true
}

// Get 查詢對戰
func (s *Store) Get(matchID string) (*Match, bool) {
	sh := s.shardFor(matchID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	m, ok := sh.matches[matchID]
	return m, ok
}

// Remove 移除對戰（只有存放的正是 m 時才刪除）
func (s *Store) Remove(matchID string, m *Match) bool {
	sh := s.shardFor(matchID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if cur, ok := sh.matches[matchID]; ok && cur == m {
		delete(sh.matches, matchID)
		return true
	}
	return false
}

// Len 目前的對戰數
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.matches)
		sh.mu.RUnlock()
	}
	return n
}

// Range 逐一走訪對戰（fn 返回 false 時停止）
//
// 先在分片讀鎖內複製清單，再於鎖外呼叫 fn，fn 可以安全地鎖定 Match。
func (s *Store) Range(fn func(m *Match) bool) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		list := make([]*Match, 0, len(sh.matches))
		for _, m := range sh.matches {
			list = append(list, m)
		}
		sh.mu.RUnlock()

		for _, m := range list {
			if !fn(m) {
				return
			}
		}
	}
}
