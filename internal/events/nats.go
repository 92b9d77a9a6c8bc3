// Package events 透過 NATS 發布對戰生命週期事件
//
// Subject 命名：
//
//	<prefix>.<match_id>.status    狀態轉換（StatusEvent）
//	<prefix>.<match_id>.finished  最終結果（Result）
//
// 系統設計考量：
//
//  1. 為什麼用 Core NATS 而非 JetStream？
//     這些事件是通知（排行榜、觀戰、統計），結果本身已持久化在 PostgreSQL。
//     訂閱者錯過事件時可以查資料庫補回，不需要 broker 端持久化。
//
//  2. 發布失敗不影響對戰：
//     引擎只記錄警告，對戰照常進行。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/koopa0/system-design/14-pong-match-engine/internal/match"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix 預設 Subject 前綴
const DefaultSubjectPrefix = "pong.matches"

// Config NATS 發布設定
type Config struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	PingInterval  time.Duration `yaml:"ping_interval"`
}

// conn 發布所需的最小連線介面
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher NATS 事件發布器，實作 match.Publisher
type Publisher struct {
	conn   conn
	prefix string
	logger *slog.Logger
}

// Connect 連接 NATS 並建立發布器
//
// 斷線時無限重連，重連期間的發布由 nats.go 緩衝。
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("pong-match-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.PingInterval(cfg.PingInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連線中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重新連線", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newPublisher(nc, cfg.SubjectPrefix, logger), nil
}

func newPublisher(c conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Publisher{conn: c, prefix: prefix, logger: logger}
}

// StatusSubject 狀態事件的 Subject
func (p *Publisher) StatusSubject(matchID string) string {
	return fmt.Sprintf("%s.%s.status", p.prefix, matchID)
}

// FinishedSubject 結果事件的 Subject
func (p *Publisher) FinishedSubject(matchID string) string {
	return fmt.Sprintf("%s.%s.finished", p.prefix, matchID)
}

// PublishStatus 發布狀態轉換
func (p *Publisher) PublishStatus(ctx context.Context, event match.StatusEvent) error {
	return p.publish(ctx, p.StatusSubject(event.MatchID), event)
}

// PublishFinished 發布最終結果
func (p *Publisher) PublishFinished(ctx context.Context, result match.Result) error {
	return p.publish(ctx, p.FinishedSubject(result.MatchID), result)
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close 送出緩衝中的訊息後關閉連線
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
