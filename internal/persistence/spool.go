package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSpoolKey 預設佇列鍵
const DefaultSpoolKey = "pong:results:spool"

// Spool 以 Redis List 暫存寫入失敗的結果
//
// 佇列語意：
//   - Push 從左端 LPUSH，Drain 從右端 RPOP，先進先出
//   - 重放失敗時把項目 RPUSH 回右端，下次仍是第一個
//   - 無法解碼的項目移到 <key>:dead，不阻塞後續項目
//
// 編碼使用 msgpack，比 JSON 精簡且保留 time.Time。
type Spool struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewSpool 建立佇列
func NewSpool(client *redis.Client, key string, logger *slog.Logger) *Spool {
	if key == "" {
		key = DefaultSpoolKey
	}
	return &Spool{client: client, key: key, logger: logger}
}

// Push 放入一筆結果
func (s *Spool) Push(ctx context.Context, result match.Result) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("spool push %s: %w", result.MatchID, err)
	}
	return nil
}

// Len 佇列長度
func (s *Spool) Len(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, s.key).Result()
}

// Drain 依序把最多 max 筆結果交給 rec
//
// 遇到第一個寫入失敗就停止並放回，返回已成功的筆數。
func (s *Spool) Drain(ctx context.Context, rec match.Recorder, max int) (int, error) {
	drained := 0
	for max <= 0 || drained < max {
		data, err := s.client.RPop(ctx, s.key).Bytes()
		if errors.Is(err, redis.Nil) {
			return drained, nil
		}
		if err != nil {
			return drained, fmt.Errorf("spool pop: %w", err)
		}

		result, err := decodeResult(data)
		if err != nil {
			s.logger.Error("丟棄無法解碼的暫存結果", "error", err)
			_ = s.client.LPush(ctx, s.key+":dead", data).Err()
			continue
		}

		if err := rec.Record(ctx, result); err != nil {
			if perr := s.client.RPush(ctx, s.key, data).Err(); perr != nil {
				s.logger.Error("暫存結果放回佇列失敗",
					"match_id", result.MatchID,
					"error", perr,
				)
			}
			return drained, fmt.Errorf("replay %s: %w", result.MatchID, err)
		}
		drained++
	}
	return drained, nil
}

func encodeResult(result match.Result) ([]byte, error) {
	data, err := msgpack.Marshal(&result)
	if err != nil {
		return nil, fmt.Errorf("encode result %s: %w", result.MatchID, err)
	}
	return data, nil
}

func decodeResult(data []byte) (match.Result, error) {
	var result match.Result
	if err := msgpack.Unmarshal(data, &result); err != nil {
		return match.Result{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}
