package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"M1Pose/model"
	"M1Pose/repository"

	"github.com/go-redis/redis/v8"
)

// resultKey 根据会话ID生成分析结果的Redis键
func resultKey(sessionID string) string {
	return fmt.Sprintf("pose:result:%s", sessionID)
}

// RedisResultStore 基于Redis的分析结果存储，实现 repository.ResultStore。
// 结果以JSON存储并带过期时间，供多实例部署时共享查询。
type RedisResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultStore 创建Redis结果存储。ttl为0时不设置过期。
func NewRedisResultStore(client *redis.Client, ttl time.Duration) *RedisResultStore {
	return &RedisResultStore{client: client, ttl: ttl}
}

// Put 覆盖写入分析结果
func (s *RedisResultStore) Put(ctx context.Context, result *model.AnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	if err := s.client.Set(ctx, resultKey(result.SessionID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store analysis result: %w", err)
	}
	return nil
}

// Get 读取分析结果，未命中返回 repository.ErrResultNotFound
func (s *RedisResultStore) Get(ctx context.Context, sessionID string) (*model.AnalysisResult, error) {
	payload, err := s.client.Get(ctx, resultKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, repository.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis result: %w", err)
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis result: %w", err)
	}
	return &result, nil
}

// Delete 删除分析结果，键不存在时不报错
func (s *RedisResultStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, resultKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete analysis result: %w", err)
	}
	return nil
}
