package models

import "time"

// 分段状态机：
// pending → prompt_ready → approved → generating → generated → segment_approved
// failed 可从任意活跃状态进入。
const (
	SegmentStatusPending         = "pending"          // 创建即空壳，等待脚本生成
	SegmentStatusPromptReady     = "prompt_ready"     // 提示词/旁白已写入，等待用户确认
	SegmentStatusApproved        = "approved"         // 提示词已确认，可派发生成
	SegmentStatusGenerating      = "generating"       // 外部视频任务进行中
	SegmentStatusGenerated       = "generated"        // 视频（及需要时的配音）都已就位
	SegmentStatusSegmentApproved = "segment_approved" // 成片已确认，可参与最终合成
	SegmentStatusFailed          = "failed"
)

type Segment struct {
	ID        string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectID string `gorm:"index;type:varchar(64)" json:"projectId"`
	// Index 在项目内 0 起且唯一，创建后不再变化
	Index          int    `gorm:"column:idx" json:"index"`
	VideoPrompt    string `json:"videoPrompt"`
	NarrationText  string `json:"narrationText"`
	EndFramePrompt string `json:"endFramePrompt"`

	FirstFrameURL string `gorm:"column:first_frame_url" json:"firstFrameUrl"`
	LastFrameURL  string `gorm:"column:last_frame_url" json:"lastFrameUrl"`
	VideoURL      string `gorm:"column:video_url" json:"videoUrl"`
	AudioURL      string `gorm:"column:audio_url" json:"audioUrl"`

	VideoTaskID string `json:"videoTaskId"`
	AudioTaskID string `json:"audioTaskId"`

	Status   string `json:"status"`
	Approved bool   `json:"approved"`
	Error    string `json:"error"`

	// Version 乐观锁版本号，分段的每次写入都带版本比较，
	// 两个并发的 regenerate/check 只会有一个生效
	Version int `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Segment) TableName() string {
	return "segment"
}

// AudioExpected 该分段是否应当产出配音：项目有音色且分段有旁白文本。
// generated 的判定以此为准。
func (s *Segment) AudioExpected(p *Project) bool {
	return p.HasVoice() && s.NarrationText != ""
}

// GenerationDone 视频已就位，且配音已就位或本就不需要配音
func (s *Segment) GenerationDone(p *Project) bool {
	if s.VideoURL == "" {
		return false
	}
	if s.AudioExpected(p) && s.AudioURL == "" {
		return false
	}
	return true
}
