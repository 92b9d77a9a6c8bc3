package match

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/koopa0/system-design/14-pong-match-engine/pkg/errors"
	"github.com/koopa0/system-design/14-pong-match-engine/pkg/logger"
)

// Engine 對戰引擎
//
// 連線層只透過 Connect / Disconnect / HandleCommand 與引擎互動，
// 引擎負責 Session Store、狀態機、連線協調、tick 迴圈與結果持久化的串接。
type Engine struct {
	cfg         Config
	store       *Store
	directory   Directory
	broadcaster Broadcaster
	recorder    Recorder
	publisher   Publisher
	logger      *slog.Logger
	now         func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// 統計
	loopsStarted    atomic.Int64
	activeLoops     atomic.Int64
	persisted       atomic.Int64
	persistFailures atomic.Int64
	evicted         atomic.Int64
	droppedCommands atomic.Int64
}

// Option 引擎選項
type Option func(*Engine)

// WithClock 替換時鐘（測試用）
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher 設定事件發布者
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// WithStore 使用指定的 Session Store
func WithStore(s *Store) Option {
	return func(e *Engine) { e.store = s }
}

// NewEngine 建立對戰引擎
func NewEngine(cfg Config, dir Directory, b Broadcaster, rec Recorder, log *slog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("引擎設定無效: %w", err)
	}
	if dir == nil || b == nil || rec == nil {
		return nil, fmt.Errorf("directory、broadcaster 與 recorder 都是必要的")
	}
	if log == nil {
		log = logger.Discard()
	}

	e := &Engine{
		cfg:         cfg,
		store:       NewStore(),
		directory:   dir,
		broadcaster: b,
		recorder:    rec,
		publisher:   nopPublisher{},
		logger:      log.With("component", "match_engine"),
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Session 一個玩家連線在引擎中的身分
//
// Token 區分同一席位的新舊連線：舊連線關閉時帶著過期的 token，
// 引擎會忽略它的斷線與指令。
type Session struct {
	MatchID  string
	PlayerID string
	Player   int
	Token    string

	// Initial 連線建立後應立即送出的訊息（connection_established + game_state）
	Initial []Message

	match *Match
}

// Connect 玩家連線
//
// 流程：
//  1. 目錄查詢設定（不存在 → NOT_FOUND）
//  2. 驗證參與者（不是 → NOT_PARTICIPANT）
//  3. Session Store 取得或建立狀態
//  4. 更新連線狀態，雙方都在線時啟動 tick 迴圈
func (e *Engine) Connect(ctx context.Context, matchID, playerID string) (*Session, error) {
	if playerID == "" {
		return nil, apperrors.ErrUnauthenticated
	}

	seed, err := e.directory.Lookup(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("查詢對戰 %s: %w", matchID, err)
	}
	seed.MatchID = matchID

	player := seed.PlayerNumber(playerID)
	if player == 0 {
		return nil, apperrors.ErrNotParticipant
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}

	ctx = logger.WithPlayer(logger.WithMatch(ctx, matchID), playerID)

	for {
		m, created := e.store.GetOrCreate(matchID, func() *Match {
			return newMatch(seed, e.cfg, e.now())
		})

		m.mu.Lock()
		if m.closed {
			// 取得指標之後才被驅逐的舊狀態，重試即可取得新狀態
			m.mu.Unlock()
			continue
		}

		now := e.now()
		token := m.bindToken(player)
		change, tr := m.setConnected(player, true, now)
		e.broadcastLocked(m, tr.Messages)

		sess := &Session{
			MatchID:  matchID,
			PlayerID: playerID,
			Player:   player,
			Token:    token,
			Initial: []Message{
				connectionEstablished(matchID, player),
				gameState(m.snapshotLocked()),
			},
			match: m,
		}

		spawn := change.BothConnected && m.loopActive.CompareAndSwap(false, true)
		m.mu.Unlock()

		if created {
			e.logger.InfoContext(ctx, "對戰已建立", "difficulty", seed.Difficulty, "theme", seed.Theme)
		}
		e.logger.InfoContext(ctx, "玩家已連線", "player", player, "both_connected", change.BothConnected)

		if spawn {
			e.spawn(m)
		}
		e.publish(tr.Events)
		return sess, nil
	}
}

// Disconnect 玩家斷線（重複呼叫或過期連線的呼叫會被忽略）
func (e *Engine) Disconnect(s *Session) {
	if s == nil || s.match == nil {
		return
	}
	m := s.match

	m.mu.Lock()
	if m.closed || !m.releaseToken(s.Player, s.Token) {
		m.mu.Unlock()
		return
	}

	now := e.now()
	change, tr := m.setConnected(s.Player, false, now)
	e.broadcastLocked(m, tr.Messages)

	// 沒有迴圈會再檢查這場對戰時，由斷線路徑自行清理
	var result *Result
	if !change.AnyConnected && !m.loopActive.Load() {
		result = e.settleLocked(m, now)
	}
	m.mu.Unlock()

	e.logger.Info("玩家已斷線",
		"match_id", s.MatchID,
		"player", s.Player,
		"status", change.NewStatus,
		"any_connected", change.AnyConnected)

	e.publish(tr.Events)
	if result != nil {
		e.persist(*result)
	}
}

// HandleCommand 處理玩家指令
//
// 同一連線的指令依到達順序套用；不合法的指令直接丟棄。
func (e *Engine) HandleCommand(s *Session, cmd Command) {
	if s == nil || s.match == nil {
		return
	}
	m := s.match

	m.mu.Lock()
	if m.closed || !m.ownsToken(s.Player, s.Token) {
		m.mu.Unlock()
		return
	}

	tr, ok := m.apply(s.Player, cmd, e.now())
	if !ok {
		status := m.status
		m.mu.Unlock()
		e.droppedCommands.Add(1)
		e.logger.Debug("指令已丟棄",
			"match_id", s.MatchID,
			"player", s.Player,
			"command", cmd.Type,
			"status", status)
		return
	}

	e.broadcastLocked(m, tr.Messages)
	spawn := tr.StartLoop && m.loopActive.CompareAndSwap(false, true)
	m.mu.Unlock()

	if spawn {
		e.spawn(m)
	}
	e.publish(tr.Events)
}

// Snapshot 查詢進行中對戰的快照
func (e *Engine) Snapshot(matchID string) (Snapshot, error) {
	m, ok := e.store.Get(matchID)
	if !ok {
		return Snapshot{}, apperrors.ErrMatchNotFound
	}
	return m.Snapshot(), nil
}

// Active 對戰是否仍在 Session Store 中
func (e *Engine) Active(matchID string) bool {
	_, ok := e.store.Get(matchID)
	return ok
}

// Stats 統計資訊
func (e *Engine) Stats() map[string]any {
	return map[string]any{
		"active_matches":   e.store.Len(),
		"active_loops":     e.activeLoops.Load(),
		"loops_started":    e.loopsStarted.Load(),
		"persisted":        e.persisted.Load(),
		"persist_failures": e.persistFailures.Load(),
		"evicted":          e.evicted.Load(),
		"dropped_commands": e.droppedCommands.Load(),
	}
}

// Stop 停止所有 tick 迴圈並等待結束
//
// 迴圈停止後不會再有人檢查已無人在線的對戰，這裡補做一次結算。
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	e.wg.Wait()

	var results []Result
	e.store.Range(func(m *Match) bool {
		m.mu.Lock()
		if !m.anyConnected() {
			if result := e.settleLocked(m, e.now()); result != nil {
				results = append(results, *result)
			}
		}
		m.mu.Unlock()
		return true
	})
	for _, result := range results {
		e.persist(result)
	}
}

// settleLocked 雙方都離線時決定對戰的去留（呼叫端必須持有 mu）
//
//   - 終局類狀態：產生結果並驅逐，返回的結果由呼叫端在鎖外持久化
//   - 未完成且不可續玩：直接驅逐，不寫入結果
//   - 未完成且可續玩：保留狀態，等待玩家回來
//
// closed 旗標保證每場對戰最多產生一次結果。
func (e *Engine) settleLocked(m *Match, now time.Time) *Result {
	if m.closed {
		return nil
	}

	if m.status.Terminal() {
		result := m.resultLocked(now)
		e.evictLocked(m, "finished")
		return &result
	}

	if !e.cfg.Resumable {
		e.evictLocked(m, "abandoned")
	}
	return nil
}

// evictLocked 標記關閉並從 Session Store 移除（不可逆）
func (e *Engine) evictLocked(m *Match, reason string) {
	m.closed = true
	if e.store.Remove(m.ID(), m) {
		e.evicted.Add(1)
	}
	e.logger.Info("對戰已驅逐",
		"match_id", m.ID(),
		"status", m.status,
		"reason", reason)
}

// persist 寫入結果並發布結束事件（不得持有任何對戰鎖）
//
// 失敗只記錄日誌，狀態已經驅逐，不會重試也不會阻塞其他對戰。
func (e *Engine) persist(result Result) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PersistTimeout)
	defer cancel()

	if err := e.recorder.Record(ctx, result); err != nil {
		e.persistFailures.Add(1)
		e.logger.Error("寫入對戰結果失敗",
			"match_id", result.MatchID,
			"winner", result.Winner,
			"error", err)
	} else {
		e.persisted.Add(1)
		e.logger.Info("對戰結果已寫入",
			"match_id", result.MatchID,
			"status", result.Status,
			"winner", result.Winner,
			"round_wins", result.RoundWins)
	}

	if err := e.publisher.PublishFinished(ctx, result); err != nil {
		e.logger.Warn("發布結束事件失敗", "match_id", result.MatchID, "error", err)
	}
}

// publish 發布狀態事件（不得持有任何對戰鎖）
func (e *Engine) publish(events []StatusEvent) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PersistTimeout)
	defer cancel()

	for _, ev := range events {
		if err := e.publisher.PublishStatus(ctx, ev); err != nil {
			e.logger.Warn("發布狀態事件失敗",
				"match_id", ev.MatchID,
				"status", ev.To,
				"error", err)
		}
	}
}

// broadcastLocked 依序廣播（非阻塞入隊，可在持鎖時呼叫）
func (e *Engine) broadcastLocked(m *Match, msgs []Message) {
	for _, msg := range msgs {
		e.broadcaster.Broadcast(m.ID(), msg)
	}
}
