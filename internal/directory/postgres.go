package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/game"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	apperrors "github.com/koopa0/system-design/14-pong-match-engine/pkg/errors"
)

// uniqueViolation PostgreSQL 唯一約束錯誤碼
const uniqueViolation = "23505"

// Postgres 以 games 表為來源的目錄
//
// 只有尚未完成（status <> 'completed'）的對戰可以被連線，
// 已寫入結果的對戰對引擎而言等同不存在。
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres 建立 PostgreSQL 目錄
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Register 新增一場對戰
func (d *Postgres) Register(ctx context.Context, seed match.Seed) error {
	if err := seed.Validate(); err != nil {
		return err
	}

	_, err := d.pool.Exec(ctx, `
		INSERT INTO games (id, player1_id, player2_id, difficulty, theme, status)
		VALUES ($1, $2, $3, $4, $5, 'waiting')`,
		seed.MatchID, seed.Player1, seed.Player2, string(seed.Difficulty), string(seed.Theme))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperrors.ErrMatchExists
		}
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

// Lookup 查詢未完成的對戰
func (d *Postgres) Lookup(ctx context.Context, matchID string) (match.Seed, error) {
	var (
		seed       = match.Seed{MatchID: matchID}
		difficulty string
		theme      string
	)

	err := d.pool.QueryRow(ctx, `
		SELECT player1_id, player2_id, difficulty, theme
		FROM games
		WHERE id = $1 AND status <> 'completed'`,
		matchID).Scan(&seed.Player1, &seed.Player2, &difficulty, &theme)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return match.Seed{}, apperrors.ErrMatchNotFound
		}
		return match.Seed{}, fmt.Errorf("query game: %w", err)
	}

	seed.Difficulty = game.Difficulty(difficulty)
	seed.Theme = game.Theme(theme)
	return seed, nil
}
