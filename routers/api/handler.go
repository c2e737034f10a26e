package api

import (
	"errors"
	"net/http"

	"AIVideoCreator-server/models"
	"AIVideoCreator-server/service"

	"github.com/gin-gonic/gin"
)

// Handler 持有各工作流的 API 层。依赖在 main 里构造后注入，
// handler 不直接碰 gorm 和生成网关。
type Handler struct {
	Store    *models.Store
	Projects *service.ProjectWorkflow
	Segments *service.SegmentWorkflow
	Storage  *service.Storage
	Queue    *service.Queue // 可为 nil（没配 redis 时轮询靠手动 check 接口）
}

func NewHandler(store *models.Store, projects *service.ProjectWorkflow, segments *service.SegmentWorkflow, storage *service.Storage, queue *service.Queue) *Handler {
	return &Handler{Store: store, Projects: projects, Segments: segments, Storage: storage, Queue: queue}
}

// userID 从 X-User-ID 头取用户标识。没带头的请求归到 default 用户，
// 鉴权由网关层负责，这里只做数据隔离。
func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "default"
}

// writeError 统一错误映射：归属/不存在一律 404，状态机和前置条件
// 问题是 400，其余 500。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrPrecondition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
