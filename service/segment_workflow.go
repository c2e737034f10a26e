package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"AIVideoCreator-server/models"

	"github.com/google/uuid"
)

// SegmentWorkflow 驱动单个分段走完
// 提示词确认 → 生成派发 → 轮询回收 → 帧传递 → 成片确认 的全流程。
// 每个操作读取最新行、内存变更、落库后返回，不跨操作持有分段。
type SegmentWorkflow struct {
	store   *models.Store
	gateway GenerationGateway
	media   MediaTool
	storage *Storage
}

func NewSegmentWorkflow(store *models.Store, gateway GenerationGateway, media MediaTool, storage *Storage) *SegmentWorkflow {
	return &SegmentWorkflow{store: store, gateway: gateway, media: media, storage: storage}
}

// CheckResult 完成度检查的结果。Processing 为真表示外部任务还没出结果，
// 这不是错误，调用方稍后重试即可。
type CheckResult struct {
	Segment    *models.Segment
	Processing bool
}

// ApprovePrompt 确认分段脚本：prompt_ready → approved
func (w *SegmentWorkflow) ApprovePrompt(ctx context.Context, segmentID, userID string) (*models.Segment, error) {
	seg, _, err := w.store.GetSegmentOwned(segmentID, userID)
	if err != nil {
		return nil, err
	}
	if seg.Status != models.SegmentStatusPromptReady {
		return nil, fmt.Errorf("%w: 分段 %d 当前状态 %s，只有 prompt_ready 可确认", ErrInvalidState, seg.Index, seg.Status)
	}

	if err := w.store.UpdateSegment(seg, map[string]interface{}{
		"status":   models.SegmentStatusApproved,
		"approved": true,
	}); err != nil {
		return nil, err
	}
	seg.Status = models.SegmentStatusApproved
	seg.Approved = true
	return seg, nil
}

// StartGeneration 派发生成：approved → generating。
// 首帧取分段自己的，缺省回退到项目级首帧；两者都没有是前置条件错误。
// 视频任务创建成功后若项目有音色且分段有旁白，顺带同步生成配音；
// 配音失败只记日志不整体失败（视频任务已经在跑了，不能丢）。
func (w *SegmentWorkflow) StartGeneration(ctx context.Context, segmentID, userID string) (*models.Segment, error) {
	seg, project, err := w.store.GetSegmentOwned(segmentID, userID)
	if err != nil {
		return nil, err
	}
	if !seg.Approved || seg.Status != models.SegmentStatusApproved {
		return nil, fmt.Errorf("%w: 分段 %d 未确认，不能派发生成", ErrInvalidState, seg.Index)
	}

	firstFrame := seg.FirstFrameURL
	if firstFrame == "" {
		firstFrame = project.FirstFrameURL
	}
	if firstFrame == "" {
		return nil, fmt.Errorf("%w: 分段 %d 没有可用首帧", ErrPrecondition, seg.Index)
	}

	framePayload, err := w.storage.EncodeImageDataURL(firstFrame)
	if err != nil {
		return nil, fmt.Errorf("%w: 首帧文件不可读 %s", ErrPrecondition, firstFrame)
	}

	if err := w.store.UpdateSegment(seg, map[string]interface{}{
		"status": models.SegmentStatusGenerating,
		"error":  "",
	}); err != nil {
		return nil, err
	}
	seg.Status = models.SegmentStatusGenerating
	if err := w.store.SetProjectStatus(project.ID, models.ProjectStatusGenerating); err != nil {
		return nil, err
	}

	taskID, err := w.gateway.GenerateVideo(ctx, VideoRequest{
		Prompt:      seg.VideoPrompt,
		FirstFrame:  framePayload,
		DurationSec: project.SegmentLenSec,
		Resolution:  "768P",
	})
	if err != nil {
		// 派发失败回到 approved，允许重新派发
		_ = w.store.UpdateSegment(seg, map[string]interface{}{
			"status": models.SegmentStatusApproved,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("视频任务创建失败: %w", err)
	}

	if err := w.store.UpdateSegment(seg, map[string]interface{}{
		"video_task_id": taskID,
	}); err != nil {
		return nil, err
	}
	seg.VideoTaskID = taskID
	log.Printf("[workflow] 分段 %d 视频任务已派发: %s", seg.Index, taskID)

	if seg.AudioExpected(project) {
		w.generateSegmentAudio(ctx, seg, project.VoiceID)
	}
	return seg, nil
}

// generateSegmentAudio 同步 TTS。失败吞掉只记日志。
func (w *SegmentWorkflow) generateSegmentAudio(ctx context.Context, seg *models.Segment, voiceID string) {
	audio, err := w.gateway.TextToSpeech(ctx, seg.NarrationText, voiceID)
	if err != nil {
		log.Printf("[workflow] 分段 %d 配音生成失败（不影响视频任务）: %v", seg.Index, err)
		return
	}

	key := fmt.Sprintf("segments/%s/audio_%s.mp3", seg.ID, uuid.NewString())
	ref, err := w.storage.Write(BucketOutput, key, audio)
	if err != nil {
		log.Printf("[workflow] 分段 %d 配音写盘失败: %v", seg.Index, err)
		return
	}

	if err := w.store.UpdateSegment(seg, map[string]interface{}{
		"audio_url": ref.URL(),
	}); err != nil {
		log.Printf("[workflow] 分段 %d 配音引用写库失败: %v", seg.Index, err)
		return
	}
	seg.AudioURL = ref.URL()
	log.Printf("[workflow] 分段 %d 配音已生成: %s", seg.Index, ref.URL())
}

// CheckCompletion 完成度检查，幂等可反复调用。
// 只有 generating 且有任务句柄且还没拿到视频时才查外部任务；
// 已 generated 的分段不再发任何外部调用。
func (w *SegmentWorkflow) CheckCompletion(ctx context.Context, segmentID, userID string) (*CheckResult, error) {
	seg, project, err := w.store.GetSegmentOwned(segmentID, userID)
	if err != nil {
		return nil, err
	}

	if seg.Status != models.SegmentStatusGenerating || seg.VideoTaskID == "" {
		return &CheckResult{Segment: seg}, nil
	}

	if seg.VideoURL == "" {
		status, err := w.gateway.QueryVideoTask(ctx, seg.VideoTaskID)
		if err != nil {
			return nil, fmt.Errorf("查询视频任务 %s 失败: %w", seg.VideoTaskID, err)
		}

		switch status.State {
		case TaskProcessing:
			return &CheckResult{Segment: seg, Processing: true}, nil

		case TaskFailed:
			// 记录失败详情，停在 generating，由用户决定 regenerate；
			// 绝不悄悄标成 generated
			if err := w.store.UpdateSegment(seg, map[string]interface{}{
				"error": "视频生成任务失败: " + status.Err,
			}); err != nil {
				return nil, err
			}
			seg.Error = "视频生成任务失败: " + status.Err
			log.Printf("[workflow] 分段 %d 视频任务失败: %s", seg.Index, status.Err)
			return &CheckResult{Segment: seg}, nil

		case TaskSucceeded:
			downloadURL, err := w.gateway.RetrieveFile(ctx, status.FileID)
			if err != nil {
				return nil, fmt.Errorf("获取视频下载地址失败: %w", err)
			}
			ref, err := w.downloadVideo(ctx, downloadURL, seg.ID)
			if err != nil {
				return nil, err
			}
			if err := w.store.UpdateSegment(seg, map[string]interface{}{
				"video_url": ref.URL(),
			}); err != nil {
				return nil, err
			}
			seg.VideoURL = ref.URL()
			log.Printf("[workflow] 分段 %d 视频已回收: %s", seg.Index, ref.URL())

			// 帧传递：本段末帧 → 下一段首帧
			w.propagateLastFrame(ctx, seg, project)
		}
	}

	// 视频和（需要时的）配音都齐了才算 generated
	if seg.GenerationDone(project) {
		if err := w.store.UpdateSegment(seg, map[string]interface{}{
			"status": models.SegmentStatusGenerated,
		}); err != nil {
			return nil, err
		}
		seg.Status = models.SegmentStatusGenerated
		log.Printf("[workflow] 分段 %d 生成完成", seg.Index)
	}
	return &CheckResult{Segment: seg}, nil
}

// downloadVideo 把渲染结果下载到 output 桶，每次新文件名
func (w *SegmentWorkflow) downloadVideo(ctx context.Context, url, segmentID string) (FileRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FileRef{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: 下载视频失败: %v", ErrExternal, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return FileRef{}, fmt.Errorf("%w: 下载视频 status %d", ErrExternal, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: 读取视频失败: %v", ErrExternal, err)
	}
	key := fmt.Sprintf("segments/%s/video_%s.mp4", segmentID, uuid.NewString())
	return w.storage.Write(BucketOutput, key, data)
}

// propagateLastFrame 视觉连续性机制：抽出本段末帧（片尾前 0.1 秒，钳到 0），
// 记到本段 last_frame_url，再写入下一段的 first_frame_url —— 下一段的生成
// 就从本段视觉上结束的地方开始。没有下一段（最后一段）或视频文件不在盘上
// 都是记日志的 no-op，不报错。帧写入严格发生在抽帧成功之后。
func (w *SegmentWorkflow) propagateLastFrame(ctx context.Context, seg *models.Segment, project *models.Project) {
	videoPath := w.storage.Resolve(seg.VideoURL)
	if _, err := os.Stat(videoPath); err != nil {
		log.Printf("[workflow] 分段 %d 视频文件不在本地，跳过帧传递: %s", seg.Index, videoPath)
		return
	}

	frameKey := fmt.Sprintf("segments/%s/last_frame_%s.jpg", seg.ID, uuid.NewString())
	framePath := w.storage.Path(BucketOutput, frameKey)
	if err := os.MkdirAll(filepath.Dir(framePath), 0o755); err != nil {
		log.Printf("[workflow] 帧目录创建失败: %v", err)
		return
	}
	if err := w.media.ExtractLastFrame(ctx, videoPath, framePath); err != nil {
		log.Printf("[workflow] 分段 %d 末帧抽取失败，不传递: %v", seg.Index, err)
		return
	}
	frameRef := FileRef{Bucket: BucketOutput, Key: frameKey}

	if err := w.store.UpdateSegment(seg, map[string]interface{}{
		"last_frame_url": frameRef.URL(),
	}); err != nil {
		log.Printf("[workflow] 分段 %d 末帧引用写库失败: %v", seg.Index, err)
		return
	}
	seg.LastFrameURL = frameRef.URL()

	next, err := w.store.GetSegmentByIndex(project.ID, seg.Index+1)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Printf("[workflow] 分段 %d 是最后一段，帧传递结束", seg.Index)
		} else {
			log.Printf("[workflow] 查询下一分段失败: %v", err)
		}
		return
	}

	if err := w.store.UpdateSegment(next, map[string]interface{}{
		"first_frame_url": frameRef.URL(),
	}); err != nil {
		log.Printf("[workflow] 分段 %d 首帧写入失败: %v", next.Index, err)
		return
	}
	log.Printf("[workflow] 分段 %d 末帧已传递给分段 %d", seg.Index, next.Index)
}

// ApproveVideo 确认成片：generated → segment_approved
func (w *SegmentWorkflow) ApproveVideo(ctx context.Context, segmentID, userID string) (*models.Segment, error) {
	seg, _, err := w.store.GetSegmentOwned(segmentID, userID)
	if err != nil {
		return nil, err
	}
	if seg.Status != models.SegmentStatusGenerated {
		return nil, fmt.Errorf("%w: 分段 %d 当前状态 %s，只有 generated 可确认成片", ErrInvalidState, seg.Index, seg.Status)
	}

	if err := w.store.UpdateSegment(seg, map[string]interface{}{
		"status": models.SegmentStatusSegmentApproved,
	}); err != nil {
		return nil, err
	}
	seg.Status = models.SegmentStatusSegmentApproved
	return seg, nil
}

// Regenerate 显式重生成：清掉视频引用和任务句柄回到 approved，可重新派发。
// 对存在的分段不做状态前置检查；last_frame_url 只在非 generating 时清除
// （生成进行中帧字段有结构锁）。
func (w *SegmentWorkflow) Regenerate(ctx context.Context, segmentID, userID string) (*models.Segment, error) {
	seg, _, err := w.store.GetSegmentOwned(segmentID, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"status":        models.SegmentStatusApproved,
		"video_url":     "",
		"video_task_id": "",
		"error":         "",
	}
	if seg.Status != models.SegmentStatusGenerating {
		updates["last_frame_url"] = ""
	}

	if err := w.store.UpdateSegment(seg, updates); err != nil {
		return nil, err
	}
	seg.Status = models.SegmentStatusApproved
	seg.VideoURL = ""
	seg.VideoTaskID = ""
	seg.Error = ""
	return seg, nil
}

// UpdatePrompts 编辑分段脚本字段（空串跳过）
func (w *SegmentWorkflow) UpdatePrompts(ctx context.Context, segmentID, userID, videoPrompt, narration, endFramePrompt string) (*models.Segment, error) {
	seg, _, err := w.store.GetSegmentOwned(segmentID, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if videoPrompt != "" {
		updates["video_prompt"] = videoPrompt
		seg.VideoPrompt = videoPrompt
	}
	if narration != "" {
		updates["narration_text"] = narration
		seg.NarrationText = narration
	}
	if endFramePrompt != "" {
		updates["end_frame_prompt"] = endFramePrompt
		seg.EndFramePrompt = endFramePrompt
	}
	if len(updates) == 0 {
		return seg, nil
	}

	if err := w.store.UpdateSegment(seg, updates); err != nil {
		return nil, err
	}
	return seg, nil
}
