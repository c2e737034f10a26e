package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"AIVideoCreator-server/models"
)

// 项目的分段列表（下标升序）
func (h *Handler) ListSegments(c *gin.Context) {
	projectID := c.Param("project_id")
	if _, err := h.Store.GetProject(projectID, userID(c)); err != nil {
		writeError(c, err)
		return
	}
	segments, err := h.Store.GetSegmentsByProject(projectID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segments": segments})
}

// 分段详情
func (h *Handler) GetSegment(c *gin.Context) {
	seg, _, err := h.Store.GetSegmentOwned(c.Param("segment_id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg})
}

// 编辑分段脚本字段（提示词/旁白/尾帧提示，空字段跳过）
func (h *Handler) UpdateSegment(c *gin.Context) {
	var req struct {
		VideoPrompt    string `json:"video_prompt"`
		NarrationText  string `json:"narration_text"`
		EndFramePrompt string `json:"end_frame_prompt"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seg, err := h.Segments.UpdatePrompts(c.Request.Context(), c.Param("segment_id"), userID(c),
		req.VideoPrompt, req.NarrationText, req.EndFramePrompt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg})
}

// 确认分段脚本：prompt_ready → approved
func (h *Handler) ApproveSegmentPrompt(c *gin.Context) {
	seg, err := h.Segments.ApprovePrompt(c.Request.Context(), c.Param("segment_id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg})
}

// 派发生成并安排轮询
func (h *Handler) GenerateSegment(c *gin.Context) {
	segmentID := c.Param("segment_id")
	seg, err := h.Segments.StartGeneration(c.Request.Context(), segmentID, userID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	if h.Queue != nil {
		if err := h.Queue.EnqueueSegmentPoll(segmentID, userID(c), 0, 10*time.Second); err != nil {
			// 入队失败不影响已派发的任务，可手动调 check 接口
			log.Printf("[api] 分段 %s 轮询入队失败: %v", segmentID, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg, "video_task_id": seg.VideoTaskID})
}

// 手动查一次完成度。还在生成中返回 processing=true，不是错误。
func (h *Handler) CheckSegment(c *gin.Context) {
	res, err := h.Segments.CheckCompletion(c.Request.Context(), c.Param("segment_id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"segment":    res.Segment,
		"processing": res.Processing,
	})
}

// 确认成片：generated → segment_approved
func (h *Handler) ApproveSegmentVideo(c *gin.Context) {
	seg, err := h.Segments.ApproveVideo(c.Request.Context(), c.Param("segment_id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg})
}

// 重生成：清掉视频产物回到 approved
func (h *Handler) RegenerateSegment(c *gin.Context) {
	seg, err := h.Segments.Regenerate(c.Request.Context(), c.Param("segment_id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg})
}

// 上传分段级首帧（覆盖项目级首帧的回退）
func (h *Handler) UploadSegmentFrame(c *gin.Context) {
	seg, _, err := h.Store.GetSegmentOwned(c.Param("segment_id"), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	ref, err := h.saveUpload(c, "image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.UpdateSegment(seg, map[string]interface{}{
		"first_frame_url": ref.URL(),
	}); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"first_frame_url": ref.URL()})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 分段进度 WebSocket 推送。以数据库为来源：每秒读一次分段并在状态变化时
// 推送，到达终态（generated/segment_approved/failed）后发最终状态并关闭。
// 外部任务的轮询写库由队列处理器负责，这里只订阅。
func (h *Handler) SegmentProgressWebSocket(c *gin.Context) {
	segmentID := c.Param("segment_id")
	uid := userID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WebSocket升级失败"})
		return
	}
	defer conn.Close()

	seg, _, err := h.Store.GetSegmentOwned(segmentID, uid)
	if err != nil {
		_ = conn.WriteJSON(map[string]interface{}{"error": "segment not found"})
		return
	}
	_ = conn.WriteJSON(seg)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	prevStatus := seg.Status
	prevVideo := seg.VideoURL

	for range ticker.C {
		cur, _, err := h.Store.GetSegmentOwned(segmentID, uid)
		if err != nil {
			// 查询失败继续重试，分段被删除时下一轮还是错就断开
			continue
		}

		if cur.Status != prevStatus || cur.VideoURL != prevVideo {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prevStatus = cur.Status
			prevVideo = cur.VideoURL
		}

		if cur.Status == models.SegmentStatusGenerated ||
			cur.Status == models.SegmentStatusSegmentApproved ||
			cur.Status == models.SegmentStatusFailed {
			_ = conn.WriteJSON(cur)
			break
		}
	}
}
