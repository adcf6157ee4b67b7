package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/vitalsync/internal/taskqueue"
)

// TaskDequeuer は同期タスクの取り出しインターフェース。
type TaskDequeuer interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*taskqueue.SyncTask, error)
}

// dequeueTimeout はBRPOPのブロック時間。コンテキストキャンセルへの
// 応答性を保つため短めに区切る。
const dequeueTimeout = 5 * time.Second

// QueueWorker はタスクキューから同期タスクを取り出して実行するコンシューマー。
type QueueWorker struct {
	queue  TaskDequeuer
	syncer *Syncer
	logger *slog.Logger
}

// NewQueueWorker はQueueWorkerを生成する。
func NewQueueWorker(queue TaskDequeuer, syncer *Syncer, logger *slog.Logger) *QueueWorker {
	return &QueueWorker{
		queue:  queue,
		syncer: syncer,
		logger: logger,
	}
}

// Run はコンテキストがキャンセルされるまでタスクを処理し続ける。
// 個々のタスクの失敗はワーカーを停止させない。
func (w *QueueWorker) Run(ctx context.Context) {
	w.logger.Info("同期ワーカーを開始しました")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("同期ワーカーを停止しました")
			return
		default:
		}

		task, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info("同期ワーカーを停止しました")
				return
			}
			w.logger.Error("タスクの取り出しに失敗しました",
				slog.String("error", err.Error()),
			)
			// 接続障害時のスピンを避ける
			time.Sleep(time.Second)
			continue
		}
		if task == nil {
			continue
		}

		w.process(ctx, task)
	}
}

// process は1タスクを実行する。
func (w *QueueWorker) process(ctx context.Context, task *taskqueue.SyncTask) {
	days := task.Days
	if days < 1 {
		days = 1
	}

	var err error
	if days == 1 {
		_, err = w.syncer.SyncProvider(ctx, task.UserID, task.Provider)
	} else {
		_, err = w.syncer.BackfillProvider(ctx, task.UserID, task.Provider, days)
	}

	if err != nil {
		w.logger.Error("同期タスクの実行に失敗しました",
			slog.String("user_id", task.UserID),
			slog.String("provider", string(task.Provider)),
			slog.Int("days", days),
			slog.String("error", err.Error()),
		)
	}
}
