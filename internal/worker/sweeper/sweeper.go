// Package sweeper は一定時間アクセスのないクライアントのセッションマネージャーを破棄するジョブを提供する。
// 破棄されたクライアントは次のアクセス時に保存済みトークンから状態を復元する。
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Evictor はアイドル状態のセッションマネージャーを破棄する。*session.Registryが実装する。
type Evictor interface {
	EvictIdle(ttl time.Duration) int
	Len() int
}

// SweepJob はアイドルセッションの定期破棄ジョブ。
type SweepJob struct {
	registry Evictor
	logger   *slog.Logger
	IdleTTL  time.Duration // 最終アクセスからの保持時間（デフォルト: 30分）
}

// NewSweepJob は新しいSweepJobを生成する。
func NewSweepJob(registry Evictor, logger *slog.Logger) *SweepJob {
	return &SweepJob{
		registry: registry,
		logger:   logger,
		IdleTTL:  30 * time.Minute,
	}
}

// Run はIdleTTLを超えてアクセスのないマネージャーを破棄し、件数を返す。
// 冪等: 対象がない場合は何もしない。
func (j *SweepJob) Run(ctx context.Context) int {
	start := time.Now()
	evicted := j.registry.EvictIdle(j.IdleTTL)

	j.logger.Info("アイドルセッションの破棄が完了しました",
		slog.Int("evicted_count", evicted),
		slog.Int("active_count", j.registry.Len()),
		slog.Duration("idle_ttl", j.IdleTTL),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return evicted
}

// Start はinterval間隔でRunを実行する。ctxのキャンセルで終了する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
