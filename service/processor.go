package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"AIVideoCreator-server/config"
	"AIVideoCreator-server/models"

	"github.com/hibiken/asynq"
)

// Processor 消费分段轮询任务：查外部视频任务状态，还没好就带延迟
// 重新入队，完成或失败则停。重试节奏完全由队列驱动，工作流层不睡眠。
type Processor struct {
	cfg      *config.Config
	segments *SegmentWorkflow
	queue    *Queue
	srv      *asynq.Server
}

func NewProcessor(cfg *config.Config, segments *SegmentWorkflow, queue *Queue) *Processor {
	return &Processor{cfg: cfg, segments: segments, queue: queue}
}

// Start 启动任务消费者
func (p *Processor) Start(concurrency int) {
	p.srv = asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     p.cfg.Redis.Addr,
			Password: p.cfg.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSegmentPoll, p.HandleSegmentPoll)

	log.Printf("[queue] Processor 启动，并发 %d", concurrency)
	go func() {
		if err := p.srv.Run(mux); err != nil {
			log.Fatalf("could not run asynq server: %v", err)
		}
	}()
}

func (p *Processor) Shutdown() {
	if p.srv != nil {
		p.srv.Shutdown()
	}
}

// HandleSegmentPoll 单次轮询
func (p *Processor) HandleSegmentPoll(ctx context.Context, t *asynq.Task) error {
	var payload SegmentPollPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	res, err := p.segments.CheckCompletion(ctx, payload.SegmentID, payload.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// 分段已被删除，轮询链终止
			log.Printf("[queue] 分段 %s 不存在，停止轮询", payload.SegmentID)
			return nil
		}
		log.Printf("[queue] 分段 %s 轮询出错: %v", payload.SegmentID, err)
		return err // 交给 asynq 重试
	}

	if !res.Processing {
		log.Printf("[queue] 分段 %s 轮询结束，状态 %s", payload.SegmentID, res.Segment.Status)
		return nil
	}

	if payload.Attempt+1 >= maxPollAttempts {
		log.Printf("[queue] 分段 %s 轮询超出次数上限，停止（任务可能仍在进行，可手动查询）", payload.SegmentID)
		return nil
	}
	return p.queue.EnqueueSegmentPoll(payload.SegmentID, payload.UserID, payload.Attempt+1, pollInterval)
}
