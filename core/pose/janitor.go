package pose

import (
	"context"
	"os"
	"sync"
	"time"

	"M1Pose/logger"
	"M1Pose/repository"
)

// Janitor 定期回收过期会话：注册表条目、结果缓存与工作目录。
// 会话和结果在进程内没有其它过期机制，不清理会无限增长。
type Janitor struct {
	registry repository.SessionRegistry
	results  repository.ResultStore
	ttl      time.Duration
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewJanitor 创建会话回收器
func NewJanitor(registry repository.SessionRegistry, results repository.ResultStore, ttl, interval time.Duration) *Janitor {
	return &Janitor{
		registry: registry,
		results:  results,
		ttl:      ttl,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start 启动回收协程
func (j *Janitor) Start() {
	logger.Info("会话回收器启动",
		logger.Duration("ttl", j.ttl),
		logger.Duration("interval", j.interval))

	j.wg.Add(1)
	go j.run()
}

// Stop 停止回收协程
func (j *Janitor) Stop() {
	close(j.stopChan)
	j.wg.Wait()
	logger.Info("会话回收器已停止")
}

func (j *Janitor) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.Sweep()
		}
	}
}

// Sweep 回收一轮过期会话，返回回收数量
func (j *Janitor) Sweep() int {
	cutoff := time.Now().Add(-j.ttl)
	expired := j.registry.ExpiredBefore(cutoff)
	if len(expired) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed := 0
	for _, record := range expired {
		if err := j.registry.Remove(record.SessionID); err != nil {
			continue
		}
		if err := j.results.Delete(ctx, record.SessionID); err != nil {
			logger.Warn("清理结果缓存失败",
				logger.String("sessionId", record.SessionID),
				logger.ErrorField(err))
		}
		if record.SessionDir != "" {
			if err := os.RemoveAll(record.SessionDir); err != nil {
				logger.Warn("清理会话目录失败",
					logger.String("sessionId", record.SessionID),
					logger.String("dir", record.SessionDir),
					logger.ErrorField(err))
			}
		}
		removed++
	}

	logger.Info("会话回收完成",
		logger.Int("removed", removed),
		logger.Int("candidates", len(expired)))
	return removed
}
