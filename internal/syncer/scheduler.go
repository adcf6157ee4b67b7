package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/vitalsync/internal/model"
	"github.com/hitoshi/vitalsync/internal/repository"
	"github.com/hitoshi/vitalsync/internal/taskqueue"
)

// TaskEnqueuer は同期タスクの投入インターフェース。
// キュー未構成のデプロイではnilを渡し、インライン実行にフォールバックする。
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task taskqueue.SyncTask) error
}

// SyncAllReport はバルク同期1サイクルの結果を表す。
type SyncAllReport struct {
	Total   int `json:"total"`   // アクティブ接続のうちプル対応のもの
	Queued  int `json:"queued"`  // キューに投入した件数
	Synced  int `json:"synced"`  // インラインで同期成功した件数
	Skipped int `json:"skipped"` // 最小間隔内のためスキップした件数
	Failed  int `json:"failed"`  // 失敗した件数
}

// Scheduler はアクティブ接続全体の同期スケジューリングと並列制御を行う。
// semaphoreパターンで最大並列数を制御しながら接続単位の同期を実行する。
type Scheduler struct {
	connRepo       repository.ConnectionRepository
	syncer         *Syncer
	queue          TaskEnqueuer
	logger         *slog.Logger
	minInterval    time.Duration
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。queueはnil許容。
func NewScheduler(
	connRepo repository.ConnectionRepository,
	syncer *Syncer,
	queue TaskEnqueuer,
	logger *slog.Logger,
	minInterval time.Duration,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		connRepo:       connRepo,
		syncer:         syncer,
		queue:          queue,
		logger:         logger,
		minInterval:    minInterval,
		maxConcurrency: maxConcurrency,
	}
}

// Due は接続が同期対象かを判定する。
// 一度も同期していない接続は常に対象。前回同期から最小間隔が
// 経過していない接続はスキップされる。
func Due(lastSyncAt *time.Time, minInterval time.Duration, now time.Time) bool {
	if lastSyncAt == nil {
		return true
	}
	return now.Sub(*lastSyncAt) >= minInterval
}

// SyncAll はアクティブ接続全体の同期を1サイクル実行する。
// providerがnilでない場合はそのプロバイダーに絞り込む。
// キューが構成されている場合はタスク投入のみ行い、未構成の場合は
// semaphoreで並列制御しながらインラインで同期する。
// 個々の接続の失敗はサイクル全体を失敗させない。
func (s *Scheduler) SyncAll(ctx context.Context, p *model.Provider) (*SyncAllReport, error) {
	start := time.Now()

	conns, err := s.connRepo.ListActive(ctx, p)
	if err != nil {
		return nil, err
	}

	report := &SyncAllReport{}
	now := time.Now()

	var due []*model.Connection
	for _, conn := range conns {
		if _, ok := s.syncer.registry.Pull(conn.Provider); !ok {
			continue
		}
		report.Total++

		if !Due(conn.LastSyncAt, s.minInterval, now) {
			report.Skipped++
			continue
		}
		due = append(due, conn)
	}

	if len(due) == 0 {
		s.logger.Info("同期対象の接続はありません")
		return report, nil
	}

	if s.queue != nil {
		s.enqueueAll(ctx, due, report)
	} else {
		s.syncInline(ctx, due, report)
	}

	s.logger.Info("同期サイクルが完了しました",
		slog.Int("total", report.Total),
		slog.Int("queued", report.Queued),
		slog.Int("synced", report.Synced),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return report, nil
}

// enqueueAll は同期対象の接続をすべてタスクキューに投入する。
func (s *Scheduler) enqueueAll(ctx context.Context, conns []*model.Connection, report *SyncAllReport) {
	for _, conn := range conns {
		task := taskqueue.SyncTask{
			UserID:   conn.UserID,
			Provider: conn.Provider,
			Days:     1,
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			s.logger.Error("同期タスクの投入に失敗しました",
				slog.String("user_id", conn.UserID),
				slog.String("provider", string(conn.Provider)),
				slog.String("error", err.Error()),
			)
			report.Failed++
			continue
		}
		report.Queued++
	}
}

// syncInline はsemaphoreパターンで並列制御しながらインラインで同期する。
func (s *Scheduler) syncInline(ctx context.Context, conns []*model.Connection, report *SyncAllReport) {
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, conn := range conns {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(c *model.Connection) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if _, err := s.syncer.SyncProvider(ctx, c.UserID, c.Provider); err != nil {
				s.logger.Error("接続の同期に失敗しました",
					slog.String("user_id", c.UserID),
					slog.String("provider", string(c.Provider)),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				report.Failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			report.Synced++
			mu.Unlock()
		}(conn)
	}

	wg.Wait()
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if _, err := s.SyncAll(ctx, nil); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			if _, err := s.SyncAll(ctx, nil); err != nil {
				s.logger.Error("同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
