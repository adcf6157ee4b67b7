// Package taskqueue はRedisリストを使った同期タスクキューを提供する。
// キュー未構成のデプロイではインライン実行にフォールバックするため、
// 本パッケージのクライアントはnil許容のオプショナル依存として扱う。
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/vitalsync/internal/model"
)

// SyncTask は1接続分の同期要求を表す。
type SyncTask struct {
	UserID   string         `json:"user_id"`
	Provider model.Provider `json:"provider"`
	Days     int            `json:"days"` // バックフィル日数。通常同期は1
}

// Config はタスクキューの接続設定。
type Config struct {
	Addr     string
	Password string
	DB       int
	// QueueName はタスクを積むRedisリストのキー。
	QueueName string
}

// Queue はRedisリストをバックエンドとするタスクキュー。
// EnqueueはLPUSH、DequeueはBRPOPで、FIFO順に処理される。
type Queue struct {
	client    *redis.Client
	queueName string
}

// New はQueueを生成する。接続確認は行わない（Pingを使用すること）。
func New(cfg Config) *Queue {
	return &Queue{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		queueName: cfg.QueueName,
	}
}

// Ping はRedisへの接続を確認する。
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisへの接続に失敗しました: %w", err)
	}
	return nil
}

// Enqueue は同期タスクをキューに積む。
func (q *Queue) Enqueue(ctx context.Context, task SyncTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("タスクのシリアライズに失敗しました: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueName, data).Err(); err != nil {
		return fmt.Errorf("タスクの投入に失敗しました: %w", err)
	}
	return nil
}

// Dequeue はキューからタスクを1件取り出す。timeoutまでブロックし、
// タスクが無ければ（nil, nil）を返す。
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*SyncTask, error) {
	res, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("タスクの取り出しに失敗しました: %w", err)
	}

	// BRPopは[キー, 値]のペアを返す
	if len(res) < 2 {
		return nil, fmt.Errorf("予期しないBRPOP応答: %v", res)
	}

	var task SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return nil, fmt.Errorf("タスクのデシリアライズに失敗しました: %w", err)
	}
	return &task, nil
}

// Len はキューに残っているタスク数を返す。テストおよびメトリクス用。
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.queueName).Result()
	if err != nil {
		return 0, fmt.Errorf("キュー長の取得に失敗しました: %w", err)
	}
	return n, nil
}

// Close はRedis接続を解放する。
func (q *Queue) Close() error {
	return q.client.Close()
}
