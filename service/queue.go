package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"AIVideoCreator-server/config"

	"github.com/hibiken/asynq"
)

const (
	// TypeSegmentPoll 分段完成度轮询任务。核心工作流自己不睡不等，
	// 轮询节奏由这里的队列任务驱动。
	TypeSegmentPoll = "segment:poll"

	pollInterval    = 10 * time.Second
	maxPollAttempts = 90 // 上限 15 分钟
)

type SegmentPollPayload struct {
	SegmentID string `json:"segment_id"`
	UserID    string `json:"user_id"`
	Attempt   int    `json:"attempt"`
}

// Queue 轮询任务入队器
type Queue struct {
	client *asynq.Client
}

func NewQueue(cfg *config.Config) *Queue {
	return &Queue{
		client: asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		}),
	}
}

// EnqueueSegmentPoll 安排一次分段轮询。delay 为 0 表示立即执行。
func (q *Queue) EnqueueSegmentPoll(segmentID, userID string, attempt int, delay time.Duration) error {
	payload, err := json.Marshal(SegmentPollPayload{
		SegmentID: segmentID,
		UserID:    userID,
		Attempt:   attempt,
	})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypeSegmentPoll, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour),
	)

	var opts []asynq.Option
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	info, err := q.client.Enqueue(task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	log.Printf("[queue] 分段轮询已入队: segment=%s attempt=%d id=%s", segmentID, attempt, info.ID)
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
