package routers

import (
	"AIVideoCreator-server/config"
	"AIVideoCreator-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter(cfg *config.Config, h *api.Handler) *gin.Engine {
	r := gin.Default()

	// 本地存储直接静态暴露，库里的 /uploads/... /output/... 引用可直接访问
	r.Static("/uploads", cfg.Storage.Uploads)
	r.Static("/output", cfg.Storage.Output)

	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", h.CreateProject)
		v1.GET("/projects", h.ListProjects)
		v1.GET("/projects/:project_id", h.GetProject)
		v1.PUT("/projects/:project_id", h.UpdateProject)
		v1.DELETE("/projects/:project_id", h.DeleteProject)

		v1.POST("/projects/:project_id/first-frame", h.UploadFirstFrame)
		v1.POST("/projects/:project_id/audio-sample", h.UploadAudioSample)
		v1.POST("/projects/:project_id/plan", h.GeneratePlan)
		v1.POST("/projects/:project_id/voice/clone", h.CloneVoice)
		v1.POST("/projects/:project_id/voice/assign", h.AssignVoice)
		v1.GET("/voices", h.ListVoices)

		v1.GET("/projects/:project_id/segments", h.ListSegments)
		v1.GET("/segments/:segment_id", h.GetSegment)
		v1.PUT("/segments/:segment_id", h.UpdateSegment)
		v1.POST("/segments/:segment_id/approve-prompt", h.ApproveSegmentPrompt)
		v1.POST("/segments/:segment_id/generate", h.GenerateSegment)
		v1.GET("/segments/:segment_id/check", h.CheckSegment)
		v1.POST("/segments/:segment_id/approve-video", h.ApproveSegmentVideo)
		v1.POST("/segments/:segment_id/regenerate", h.RegenerateSegment)
		v1.POST("/segments/:segment_id/frame", h.UploadSegmentFrame)

		v1.POST("/projects/:project_id/finalize", h.FinalizeProject)
		v1.GET("/projects/:project_id/download", h.DownloadFinalVideo)
	}
	r.GET("/segments/:segment_id/wss", h.SegmentProgressWebSocket)
	return r
}
