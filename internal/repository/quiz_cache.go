package repository

import (
	"context"
	"encoding/json"
	"lms_quiz_backend/internal/model"
	"lms_quiz_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const quizCachePrefix = "lms:quiz:"

// QuizCache 缓存完整的测验定义（含题目和选项），仅服务端使用。client 为 nil 时所有操作为空操作。
type QuizCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewQuizCache(client *redis.Client, ttl time.Duration) *QuizCache {
	return &QuizCache{client: client, ttl: ttl}
}

func (c *QuizCache) Get(ctx context.Context, quizID string) (*model.Quiz, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, quizCachePrefix+quizID).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Warn("读取测验缓存失败", zap.String("quizId", quizID), zap.Error(err))
		}
		return nil, false
	}
	var quiz model.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return nil, false
	}
	return &quiz, true
}

func (c *QuizCache) Set(ctx context.Context, quiz *model.Quiz) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(quiz)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, quizCachePrefix+quiz.ID, raw, c.ttl).Err(); err != nil {
		logger.Log.Warn("写入测验缓存失败", zap.String("quizId", quiz.ID), zap.Error(err))
	}
}

func (c *QuizCache) Invalidate(ctx context.Context, quizID string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, quizCachePrefix+quizID).Err(); err != nil {
		logger.Log.Warn("清除测验缓存失败", zap.String("quizId", quizID), zap.Error(err))
	}
}
