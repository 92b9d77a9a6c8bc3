package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
)

// PostgresRecorder 把結果寫入 games 與 rounds
//
// 一個交易內完成：
//  1. games upsert（status = completed，最終比分為各自贏得的局數）
//  2. rounds 以 (game_id, round_number) upsert，批次送出
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder 建立 PostgreSQL 結果儲存
func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

// Record 寫入最終結果
func (r *PostgresRecorder) Record(ctx context.Context, result match.Result) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO games (
			id, player1_id, player2_id, difficulty, theme, status,
			final_score_player1, final_score_player2, winner_id, finished_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, 'completed', $6, $7, $8, $9, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status              = 'completed',
			final_score_player1 = EXCLUDED.final_score_player1,
			final_score_player2 = EXCLUDED.final_score_player2,
			winner_id           = EXCLUDED.winner_id,
			finished_at         = EXCLUDED.finished_at,
			updated_at          = NOW()`,
		result.MatchID,
		result.Players.Player1,
		result.Players.Player2,
		result.Difficulty,
		result.Theme,
		result.RoundWins[0],
		result.RoundWins[1],
		nullable(result.Winner),
		result.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert game %s: %w", result.MatchID, err)
	}

	if len(result.Rounds) > 0 {
		batch := &pgx.Batch{}
		for _, rd := range result.Rounds {
			batch.Queue(`
				INSERT INTO rounds (game_id, round_number, score_player1, score_player2, winner, completed_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (game_id, round_number) DO UPDATE SET
					score_player1 = EXCLUDED.score_player1,
					score_player2 = EXCLUDED.score_player2,
					winner        = EXCLUDED.winner,
					completed_at  = EXCLUDED.completed_at`,
				result.MatchID,
				rd.Number,
				rd.Scores[0],
				rd.Scores[1],
				nullable(slotOf(result.Players, rd.Winner)),
				rd.CompletedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range result.Rounds {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("upsert rounds %s: %w", result.MatchID, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// slotOf 把玩家 ID 轉成席位名稱（rounds.winner 欄位）
func slotOf(players match.Players, playerID string) string {
	switch playerID {
	case "":
		return ""
	case players.Player1:
		return "player1"
	case players.Player2:
		return "player2"
	}
	return ""
}

// nullable 空字串寫入 NULL
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
