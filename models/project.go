package models

import "time"

// 项目状态常量（项目级工作流的统一进度描述）
const (
	ProjectStatusCreated       = "created"        // 项目已创建，分镜段已按时长切分但内容为空
	ProjectStatusMediaUploaded = "media_uploaded" // 首帧图和音色样本已上传
	ProjectStatusVoiceCloning  = "voice_cloning"  // 正在克隆音色（瞬态，失败/成功都会回退）
	ProjectStatusPlanGenerating = "plan_generating" // 正在生成分段脚本
	ProjectStatusPlanReady     = "plan_ready"     // 分段脚本已生成，等待逐段确认
	ProjectStatusGenerating    = "generating"     // 有分段在生成视频/配音
	ProjectStatusFinalizing    = "finalizing"     // 正在拼接合成最终视频
	ProjectStatusCompleted     = "completed"      // 最终视频已生成，可播放/导出
	ProjectStatusFailed        = "failed"         // 不可恢复错误
)

type Project struct {
	ID                string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID            string    `gorm:"index;type:varchar(64)" json:"userId"`
	Name              string    `json:"name"`
	StoryPrompt       string    `json:"storyPrompt"`
	TargetDurationSec int       `json:"targetDurationSec"`
	SegmentLenSec     int       `json:"segmentLenSec"`
	SegmentCount      int       `json:"segmentCount"`
	VoiceID           string    `json:"voiceId"`
	FirstFrameURL     string    `gorm:"column:first_frame_url" json:"firstFrameUrl"`
	AudioSampleURL    string    `gorm:"column:audio_sample_url" json:"audioSampleUrl"`
	FinalVideoURL     string    `gorm:"column:final_video_url" json:"finalVideoUrl"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`

	Segments []Segment `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"segments,omitempty"`
}

func (Project) TableName() string {
	return "project"
}

// HasVoice 项目是否已指定克隆音色。配音是否为分段的必需产物以此为准，
// 而不是看哪个字段恰好为空。
func (p *Project) HasVoice() bool {
	return p.VoiceID != ""
}
