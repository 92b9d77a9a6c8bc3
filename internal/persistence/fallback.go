package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	apperrors "github.com/koopa0/system-design/14-pong-match-engine/pkg/errors"
)

// replayBatch 每次重放的最大筆數
const replayBatch = 100

// Spooler 暫存佇列
type Spooler interface {
	Push(ctx context.Context, result match.Result) error
	Drain(ctx context.Context, rec match.Recorder, max int) (int, error)
}

// FallbackRecorder 主要儲存失敗時改寫入暫存佇列
//
// 只有主要儲存與佇列都失敗時才返回錯誤（ErrStoreUnavailable），
// 此時結果遺失，引擎會記錄並計數。
type FallbackRecorder struct {
	primary match.Recorder
	spool   Spooler
	logger  *slog.Logger

	spooled  atomic.Int64
	replayed atomic.Int64
}

// NewFallbackRecorder 建立帶暫存佇列的結果儲存
func NewFallbackRecorder(primary match.Recorder, spool Spooler, logger *slog.Logger) *FallbackRecorder {
	return &FallbackRecorder{primary: primary, spool: spool, logger: logger}
}

// Record 寫入結果
func (f *FallbackRecorder) Record(ctx context.Context, result match.Result) error {
	err := f.primary.Record(ctx, result)
	if err == nil {
		return nil
	}

	f.logger.Warn("主要儲存失敗，結果改寫入暫存佇列",
		"match_id", result.MatchID,
		"error", err,
	)

	if serr := f.spool.Push(ctx, result); serr != nil {
		return apperrors.Wrap(errors.Join(err, serr), apperrors.ErrCodeUnavailable, "result store unavailable")
	}
	f.spooled.Add(1)
	return nil
}

// Replay 把佇列中的結果寫回主要儲存
func (f *FallbackRecorder) Replay(ctx context.Context) (int, error) {
	n, err := f.spool.Drain(ctx, f.primary, replayBatch)
	f.replayed.Add(int64(n))
	return n, err
}

// Stats 暫存與重放計數
func (f *FallbackRecorder) Stats() map[string]int64 {
	return map[string]int64{
		"spooled":  f.spooled.Load(),
		"replayed": f.replayed.Load(),
	}
}

// RegisterReplay 註冊定期重放工作
//
// 單例模式：上一次重放還沒結束時跳過本次，避免兩個工作同時 RPOP 打亂順序。
func RegisterReplay(s gocron.Scheduler, f *FallbackRecorder, interval, timeout time.Duration) error {
	_, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			n, err := f.Replay(ctx)
			if err != nil {
				f.logger.Warn("結果重放中止", "replayed", n, "error", err)
				return
			}
			if n > 0 {
				f.logger.Info("已重放暫存的結果", "count", n)
			}
		}),
		gocron.WithName("result-replay"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}
