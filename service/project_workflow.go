package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"AIVideoCreator-server/models"

	"github.com/google/uuid"
)

// ProjectWorkflow 项目级生命周期：创建切段、脚本生成、音色克隆、最终合成。
// 分段级的生成/轮询在 SegmentWorkflow。
type ProjectWorkflow struct {
	store   *models.Store
	gateway GenerationGateway
	media   MediaTool
	storage *Storage
	oss     *OSS // 可为 nil，最终视频的对象存储发布是可选的
}

func NewProjectWorkflow(store *models.Store, gateway GenerationGateway, media MediaTool, storage *Storage, oss *OSS) *ProjectWorkflow {
	return &ProjectWorkflow{store: store, gateway: gateway, media: media, storage: storage, oss: oss}
}

// CreateProject 创建项目并按 目标时长/单段时长 整除切出空分段，
// 分段下标恰好是 0..n-1，单事务完成。
func (w *ProjectWorkflow) CreateProject(ctx context.Context, userID, name, storyPrompt string, targetDurationSec, segmentLenSec int) (*models.Project, error) {
	if segmentLenSec <= 0 {
		return nil, fmt.Errorf("%w: 单段时长必须为正", ErrPrecondition)
	}
	segmentCount := targetDurationSec / segmentLenSec

	project := &models.Project{
		ID:                uuid.NewString(),
		UserID:            userID,
		Name:              name,
		StoryPrompt:       storyPrompt,
		TargetDurationSec: targetDurationSec,
		SegmentLenSec:     segmentLenSec,
		SegmentCount:      segmentCount,
		Status:            models.ProjectStatusCreated,
	}

	segments := make([]models.Segment, 0, segmentCount)
	for i := 0; i < segmentCount; i++ {
		segments = append(segments, models.Segment{
			ID:        uuid.NewString(),
			ProjectID: project.ID,
			Index:     i,
			Status:    models.SegmentStatusPending,
		})
	}

	if err := w.store.CreateProject(project, segments); err != nil {
		return nil, err
	}
	log.Printf("[workflow] 项目 %s 已创建，共 %d 段", project.ID, segmentCount)
	return w.store.GetProject(project.ID, userID)
}

// GeneratePlan 调脚本能力生成分段提示词并按下标顺序写入各分段。
// plan 输出和已有分段按位置一一对应（positional zip），数量不一致时
// 静默截断到较短一方。提示词写入和 plan_ready 状态在一个事务里落库，
// 生成失败时状态回退，不留部分写入。
func (w *ProjectWorkflow) GeneratePlan(ctx context.Context, projectID, userID, storyPrompt string) (*PlanResult, error) {
	project, err := w.store.GetProject(projectID, userID)
	if err != nil {
		return nil, err
	}
	if storyPrompt == "" {
		storyPrompt = project.StoryPrompt
	}
	if storyPrompt == "" {
		return nil, fmt.Errorf("%w: 项目没有故事描述", ErrPrecondition)
	}

	prevStatus := project.Status
	if err := w.store.UpdateProject(projectID, map[string]interface{}{
		"status":       models.ProjectStatusPlanGenerating,
		"story_prompt": storyPrompt,
	}); err != nil {
		return nil, err
	}

	plan, err := w.gateway.GeneratePlan(ctx, storyPrompt, project.SegmentCount, project.SegmentLenSec)
	if err != nil {
		// 生成失败：状态回退，分段一个都没动
		_ = w.store.SetProjectStatus(projectID, prevStatus)
		return nil, fmt.Errorf("脚本生成失败: %w", err)
	}

	err = w.store.Transaction(func(tx *models.Store) error {
		segments, err := tx.GetSegmentsByProject(projectID)
		if err != nil {
			return err
		}
		n := len(segments)
		if len(plan.Segments) < n {
			n = len(plan.Segments)
		}
		for i := 0; i < n; i++ {
			seg := segments[i]
			if err := tx.UpdateSegment(&seg, map[string]interface{}{
				"video_prompt":     plan.Segments[i].VideoPrompt,
				"narration_text":   plan.Segments[i].NarrationText,
				"end_frame_prompt": plan.Segments[i].EndFramePrompt,
				"status":           models.SegmentStatusPromptReady,
			}); err != nil {
				return err
			}
		}
		return tx.SetProjectStatus(projectID, models.ProjectStatusPlanReady)
	})
	if err != nil {
		_ = w.store.SetProjectStatus(projectID, prevStatus)
		return nil, err
	}

	log.Printf("[workflow] 项目 %s 脚本已生成: %s（%d 段）", projectID, plan.Title, len(plan.Segments))
	return plan, nil
}

// CloneVoice 两步克隆：上传音频样本拿文件句柄，再克隆出音色句柄。
// 音色同时存成可复用的 Voice 记录（归属用户，其他项目可直接指派）。
// 无论成功失败，项目状态都回到进入前的稳定状态，绝不滞留 voice_cloning。
func (w *ProjectWorkflow) CloneVoice(ctx context.Context, projectID, userID, voiceName string) (string, error) {
	project, err := w.store.GetProject(projectID, userID)
	if err != nil {
		return "", err
	}
	if project.AudioSampleURL == "" {
		return "", fmt.Errorf("%w: 项目没有上传音频样本", ErrPrecondition)
	}

	samplePath := w.storage.Resolve(project.AudioSampleURL)
	audioBytes, err := os.ReadFile(samplePath)
	if err != nil {
		return "", fmt.Errorf("%w: 音频样本不可读 %s", ErrPrecondition, project.AudioSampleURL)
	}

	prevStatus := project.Status
	if err := w.store.SetProjectStatus(projectID, models.ProjectStatusVoiceCloning); err != nil {
		return "", err
	}

	voiceID, cloneErr := w.doClone(ctx, project, audioBytes, samplePath)

	// 成功失败都要回退状态
	if err := w.store.SetProjectStatus(projectID, prevStatus); err != nil {
		log.Printf("[workflow] 项目 %s 状态回退失败: %v", projectID, err)
	}
	if cloneErr != nil {
		return "", fmt.Errorf("音色克隆失败: %w", cloneErr)
	}

	if err := w.store.UpdateProject(projectID, map[string]interface{}{
		"voice_id": voiceID,
	}); err != nil {
		return "", err
	}

	if voiceName == "" {
		voiceName = "Voice from " + project.Name
	}
	voice := &models.Voice{
		ID:          uuid.NewString(),
		UserID:      userID,
		VoiceID:     voiceID,
		Name:        voiceName,
		Description: "Cloned from project: " + project.Name,
	}
	if err := w.store.CreateVoice(voice); err != nil {
		// 音色已经在项目上了，复用记录创建失败只记日志
		log.Printf("[workflow] 音色复用记录创建失败: %v", err)
	}

	log.Printf("[workflow] 项目 %s 音色克隆完成: %s", projectID, voiceID)
	return voiceID, nil
}

func (w *ProjectWorkflow) doClone(ctx context.Context, project *models.Project, audioBytes []byte, samplePath string) (string, error) {
	fileID, err := w.gateway.UploadFile(ctx, audioBytes, filepath.Base(samplePath), "voice_clone")
	if err != nil {
		return "", err
	}
	desired := "voice-" + shortID(project.ID)
	return w.gateway.CloneVoice(ctx, fileID, desired)
}

// AssignVoice 把已克隆的复用音色指派给项目（不重新克隆）
func (w *ProjectWorkflow) AssignVoice(ctx context.Context, projectID, userID, voiceID string) error {
	if _, err := w.store.GetProject(projectID, userID); err != nil {
		return err
	}
	if _, err := w.store.GetVoice(voiceID, userID); err != nil {
		return err
	}
	return w.store.UpdateProject(projectID, map[string]interface{}{"voice_id": voiceID})
}

// SetFirstFrame / SetAudioSample 上传登记。两者都齐时项目进入 media_uploaded。
func (w *ProjectWorkflow) SetFirstFrame(ctx context.Context, projectID, userID, ref string) error {
	return w.setMediaRef(projectID, userID, "first_frame_url", ref)
}

func (w *ProjectWorkflow) SetAudioSample(ctx context.Context, projectID, userID, ref string) error {
	return w.setMediaRef(projectID, userID, "audio_sample_url", ref)
}

func (w *ProjectWorkflow) setMediaRef(projectID, userID, column, ref string) error {
	project, err := w.store.GetProject(projectID, userID)
	if err != nil {
		return err
	}
	if err := w.store.UpdateProject(projectID, map[string]interface{}{column: ref}); err != nil {
		return err
	}

	first, audio := project.FirstFrameURL, project.AudioSampleURL
	switch column {
	case "first_frame_url":
		first = ref
	case "audio_sample_url":
		audio = ref
	}
	if first != "" && audio != "" && project.Status == models.ProjectStatusCreated {
		return w.store.SetProjectStatus(projectID, models.ProjectStatusMediaUploaded)
	}
	return nil
}

// FinalizeResult 合成结果：本地引用与（配置了对象存储时的）分享链接
type FinalizeResult struct {
	Project  *models.Project
	ShareURL string
}

// Finalize 最终合成。前置：所有分段都是 segment_approved，否则整体中止、
// 不写任何字段。按下标顺序逐段处理：有配音的段先把配音时长对齐到视频时长
// 再混流出临时段文件，没配音的段直接用原视频；最后按下标顺序流拷贝拼接。
// 拼接顺序就是成片的时间顺序。临时段文件无论成败都清理。
func (w *ProjectWorkflow) Finalize(ctx context.Context, projectID, userID string) (*FinalizeResult, error) {
	project, err := w.store.GetProject(projectID, userID)
	if err != nil {
		return nil, err
	}

	for _, seg := range project.Segments {
		if seg.Status != models.SegmentStatusSegmentApproved {
			return nil, fmt.Errorf("%w: 第 %d 段尚未确认成片（状态 %s）", ErrPrecondition, seg.Index+1, seg.Status)
		}
	}
	if len(project.Segments) == 0 {
		return nil, fmt.Errorf("%w: 项目没有分段", ErrPrecondition)
	}

	prevStatus := project.Status
	if err := w.store.SetProjectStatus(projectID, models.ProjectStatusFinalizing); err != nil {
		return nil, err
	}

	finalRef, err := w.assemble(ctx, project)
	if err != nil {
		_ = w.store.SetProjectStatus(projectID, prevStatus)
		return nil, err
	}

	if err := w.store.UpdateProject(projectID, map[string]interface{}{
		"final_video_url": finalRef.URL(),
		"status":          models.ProjectStatusCompleted,
	}); err != nil {
		return nil, err
	}

	shareURL := ""
	if w.oss != nil {
		objectName := fmt.Sprintf("projects/%s/%s", projectID, filepath.Base(finalRef.Key))
		url, err := w.oss.PublishFile(ctx, w.storage.Resolve(finalRef.URL()), objectName)
		if err != nil {
			// 对象存储发布失败不影响合成结果
			log.Printf("[workflow] 最终视频发布到对象存储失败: %v", err)
		} else {
			shareURL = url
		}
	}

	updated, err := w.store.GetProject(projectID, userID)
	if err != nil {
		return nil, err
	}
	log.Printf("[workflow] 项目 %s 合成完成: %s", projectID, finalRef.URL())
	return &FinalizeResult{Project: updated, ShareURL: shareURL}, nil
}

// assemble 逐段混流 + 拼接。临时文件用 defer 保证错误路径也清理。
func (w *ProjectWorkflow) assemble(ctx context.Context, project *models.Project) (FileRef, error) {
	var parts []string
	var temps []string
	defer func() {
		for _, t := range temps {
			if err := os.Remove(t); err != nil && !os.IsNotExist(err) {
				log.Printf("[workflow] 清理临时段文件失败: %v", err)
			}
		}
	}()

	for _, seg := range project.Segments {
		videoPath := w.storage.Resolve(seg.VideoURL)
		if seg.VideoURL == "" || !fileExists(videoPath) {
			return FileRef{}, fmt.Errorf("%w: 第 %d 段的视频文件缺失", ErrMissingFile, seg.Index+1)
		}

		if seg.AudioURL == "" {
			// 无配音：原视频直接作为该段的贡献
			parts = append(parts, videoPath)
			continue
		}

		audioPath := w.storage.Resolve(seg.AudioURL)
		if !fileExists(audioPath) {
			return FileRef{}, fmt.Errorf("%w: 第 %d 段的配音文件缺失", ErrMissingFile, seg.Index+1)
		}

		muxed := w.storage.Path(BucketTemp, fmt.Sprintf("muxed_%s.mp4", seg.ID))
		if err := os.MkdirAll(w.storage.bucketDir(BucketTemp), 0o755); err != nil {
			return FileRef{}, err
		}
		if err := w.media.MuxSegment(ctx, videoPath, audioPath, muxed); err != nil {
			return FileRef{}, fmt.Errorf("第 %d 段混流失败: %w", seg.Index+1, err)
		}
		temps = append(temps, muxed)
		parts = append(parts, muxed)
	}

	finalKey := fmt.Sprintf("final_%s_%s.mp4", project.ID, time.Now().Format("20060102150405"))
	finalPath := w.storage.Path(BucketOutput, finalKey)
	if err := os.MkdirAll(w.storage.bucketDir(BucketOutput), 0o755); err != nil {
		return FileRef{}, err
	}
	if err := w.media.ConcatVideos(ctx, parts, finalPath); err != nil {
		return FileRef{}, fmt.Errorf("最终拼接失败: %w", err)
	}
	return FileRef{Bucket: BucketOutput, Key: finalKey}, nil
}

// DeleteProject 删除项目及其全部分段
func (w *ProjectWorkflow) DeleteProject(ctx context.Context, projectID, userID string) error {
	return w.store.DeleteProject(projectID, userID)
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}


func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
