package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"AIVideoCreator-server/models"
	"AIVideoCreator-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 创建项目：按 目标时长/单段时长 切出空分段
func (h *Handler) CreateProject(c *gin.Context) {
	var req struct {
		Name              string `json:"name"`
		StoryPrompt       string `json:"story_prompt"`
		TargetDurationSec int    `json:"target_duration_sec"`
		SegmentLenSec     int    `json:"segment_len_sec"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.SegmentLenSec <= 0 {
		req.SegmentLenSec = 6
	}
	if req.TargetDurationSec <= 0 {
		req.TargetDurationSec = 30
	}

	project, err := h.Projects.CreateProject(c.Request.Context(), userID(c), req.Name, req.StoryPrompt, req.TargetDurationSec, req.SegmentLenSec)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// 项目列表（分页）
func (h *Handler) ListProjects(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	projects, total, err := h.Store.ListProjects(userID(c), (page-1)*size, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"projects": projects,
		"total":    total,
		"page":     page,
	})
}

// 项目详情（分段按下标升序）
func (h *Handler) GetProject(c *gin.Context) {
	project, err := h.Store.GetProject(c.Param("project_id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// 更新项目基础字段
func (h *Handler) UpdateProject(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		StoryPrompt string `json:"story_prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	projectID := c.Param("project_id")
	if _, err := h.Store.GetProject(projectID, userID(c)); err != nil {
		writeError(c, err)
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.StoryPrompt != "" {
		updates["story_prompt"] = req.StoryPrompt
	}
	if len(updates) > 0 {
		if err := h.Store.UpdateProject(projectID, updates); err != nil {
			writeError(c, err)
			return
		}
	}

	project, err := h.Store.GetProject(projectID, userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// 删除项目
func (h *Handler) DeleteProject(c *gin.Context) {
	if err := h.Projects.DeleteProject(c.Request.Context(), c.Param("project_id"), userID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "项目已删除"})
}

// 上传项目首帧图
func (h *Handler) UploadFirstFrame(c *gin.Context) {
	ref, err := h.saveUpload(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Projects.SetFirstFrame(c.Request.Context(), c.Param("project_id"), userID(c), ref.URL()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"first_frame_url": ref.URL()})
}

// 上传音色克隆用的音频样本
func (h *Handler) UploadAudioSample(c *gin.Context) {
	ref, err := h.saveUpload(c, "audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Projects.SetAudioSample(c.Request.Context(), c.Param("project_id"), userID(c), ref.URL()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audio_sample_url": ref.URL()})
}

// saveUpload 把 multipart 的 file 字段存进 uploads 桶
func (h *Handler) saveUpload(c *gin.Context, kind string) (service.FileRef, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return service.FileRef{}, fmt.Errorf("缺少 file 字段: %w", err)
	}
	f, err := fileHeader.Open()
	if err != nil {
		return service.FileRef{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return service.FileRef{}, err
	}

	ext := filepath.Ext(fileHeader.Filename)
	key := fmt.Sprintf("%s/%s%s", kind, uuid.NewString(), ext)
	return h.Storage.Write(service.BucketUploads, key, data)
}

// 生成分段脚本
func (h *Handler) GeneratePlan(c *gin.Context) {
	var req struct {
		StoryPrompt string `json:"story_prompt"`
	}
	// body 可省略，沿用项目上已有的故事描述
	_ = c.ShouldBindJSON(&req)

	plan, err := h.Projects.GeneratePlan(c.Request.Context(), c.Param("project_id"), userID(c), req.StoryPrompt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"title":    plan.Title,
		"segments": plan.Segments,
	})
}

// 克隆音色
func (h *Handler) CloneVoice(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)

	voiceID, err := h.Projects.CloneVoice(c.Request.Context(), c.Param("project_id"), userID(c), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voice_id": voiceID})
}

// 指派已有的复用音色（不重新克隆）
func (h *Handler) AssignVoice(c *gin.Context) {
	var req struct {
		VoiceID string `json:"voice_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Projects.AssignVoice(c.Request.Context(), c.Param("project_id"), userID(c), req.VoiceID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voice_id": req.VoiceID})
}

// 用户的可复用音色列表
func (h *Handler) ListVoices(c *gin.Context) {
	voices, err := h.Store.ListVoices(userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices})
}

// 最终合成：全部分段确认后拼出完整视频
func (h *Handler) FinalizeProject(c *gin.Context) {
	res, err := h.Projects.Finalize(c.Request.Context(), c.Param("project_id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project":         res.Project,
		"final_video_url": res.Project.FinalVideoURL,
		"share_url":       res.ShareURL,
	})
}

// 下载最终视频文件
func (h *Handler) DownloadFinalVideo(c *gin.Context) {
	project, err := h.Store.GetProject(c.Param("project_id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if project.Status != models.ProjectStatusCompleted || project.FinalVideoURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "最终视频尚未生成"})
		return
	}

	path := h.Storage.Resolve(project.FinalVideoURL)
	c.FileAttachment(path, filepath.Base(path))
}
