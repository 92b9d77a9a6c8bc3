package migrations_test

import (
	"context"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/migrations"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/testutils"
	"github.com/koopa0/system-design/14-pong-match-engine/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMigrator_UpDown 測試升級、查詢版本、回滾（需要 Docker）
func TestMigrator_UpDown(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過整合測試")
	}

	ctx := context.Background()
	dsn := testutils.PostgresDSN(t)

	m, err := migrations.New(dsn, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tableExists := func(name string) bool {
		var ok bool
		require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, name).Scan(&ok))
		return ok
	}

	// 空資料庫沒有版本
	_, _, err = m.Version()
	assert.ErrorIs(t, err, migrate.ErrNilVersion)

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	assert.True(t, tableExists("games"))
	assert.True(t, tableExists("rounds"))

	// 重複執行不報錯
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
	_, _, err = m.Version()
	assert.ErrorIs(t, err, migrate.ErrNilVersion)
	assert.False(t, tableExists("games"))
	assert.False(t, tableExists("rounds"))
}

// TestGamesStatusCheck 測試 games.status 只接受實際會寫入的狀態（需要 Docker）
func TestGamesStatusCheck(t *testing.T) {
	if testing.Short() {
		t.Skip("跳過整合測試")
	}

	ctx := context.Background()
	pool := testutils.Postgres(t)

	tests := []struct {
		name    string
		status  string
		wantErr bool
	}{
		{name: "waiting", status: "waiting"},
		{name: "completed", status: "completed"},
		{name: "in_progress 不接受", status: "in_progress", wantErr: true},
		{name: "未知狀態", status: "playing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pool.Exec(ctx, `
				INSERT INTO games (id, player1_id, player2_id, status)
				VALUES ($1, 'alice', 'bob', $2)`, "game-"+tt.status, tt.status)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
