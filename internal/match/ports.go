package match

import "context"

// Broadcaster 把訊息送到一場對戰的所有連線
//
// 實作必須是非阻塞的（入隊即返回），引擎會在持有對戰鎖時呼叫。
type Broadcaster interface {
	Broadcast(matchID string, msg Message)
}

// Directory 查詢對戰設定
//
// 對戰不存在時返回 apperrors.ErrMatchNotFound（可包裝）。
type Directory interface {
	Lookup(ctx context.Context, matchID string) (Seed, error)
}

// Recorder 持久化最終結果（每場對戰只呼叫一次）
type Recorder interface {
	Record(ctx context.Context, result Result) error
}

// Publisher 對外發布生命週期事件
type Publisher interface {
	PublishStatus(ctx context.Context, event StatusEvent) error
	PublishFinished(ctx context.Context, result Result) error
}

type nopPublisher struct{}

func (nopPublisher) PublishStatus(context.Context, StatusEvent) error { return nil }
func (nopPublisher) PublishFinished(context.Context, Result) error    { return nil }
