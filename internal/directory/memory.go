// Package directory 提供對戰設定（玩家、難度、主題）的查詢與註冊
//
// 對戰引擎只依賴 match.Directory 介面；這裡提供記憶體與 PostgreSQL 兩種實作。
package directory

import (
	"context"
	"sync"

	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	apperrors "github.com/koopa0/system-design/14-pong-match-engine/pkg/errors"
)

// Registry 可以查詢也可以註冊的目錄
type Registry interface {
	match.Directory
	Register(ctx context.Context, seed match.Seed) error
}

// Memory 記憶體目錄（單機部署與測試用）
type Memory struct {
	mu    sync.RWMutex
	seeds map[string]match.Seed
}

// NewMemory 建立記憶體目錄
func NewMemory() *Memory {
	return &Memory{seeds: make(map[string]match.Seed)}
}

// Register 註冊對戰設定
func (d *Memory) Register(_ context.Context, seed match.Seed) error {
	if err := seed.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seeds[seed.MatchID]; exists {
		return apperrors.ErrMatchExists
	}
	d.seeds[seed.MatchID] = seed
	return nil
}

// Lookup 查詢對戰設定
func (d *Memory) Lookup(_ context.Context, matchID string) (match.Seed, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seed, ok := d.seeds[matchID]
	if !ok {
		return match.Seed{}, apperrors.ErrMatchNotFound
	}
	return seed, nil
}

// Len 已註冊的對戰數
func (d *Memory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.seeds)
}
