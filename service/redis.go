package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Harikrishna-AL/MedX/config"
	"github.com/Harikrishna-AL/MedX/model"
	"github.com/Harikrishna-AL/MedX/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const resultKeyPrefix = "result:"

// RedisService 提交结果缓存
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetResult 从缓存获取结果，未命中时返回 nil
func (s *RedisService) GetResult(ctx context.Context, md5 string) (*model.ResultRecord, error) {
	data, err := s.client.Get(ctx, resultKeyPrefix+md5).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var rec model.ResultRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		utils.Logger.Error("failed to unmarshal result",
			zap.String("md5", md5), zap.Error(err))
		return nil, err
	}

	return &rec, nil
}

// SetResult 写入缓存
func (s *RedisService) SetResult(ctx context.Context, md5 string, rec *model.ResultRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, resultKeyPrefix+md5, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
