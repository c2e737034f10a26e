package models

import "time"

// Voice 已克隆音色的可复用记录，按用户归属。
// 克隆一次后可以指派给其他项目，不必重新克隆。
type Voice struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID      string    `gorm:"index;type:varchar(64)" json:"userId"`
	VoiceID     string    `gorm:"uniqueIndex;type:varchar(255)" json:"voiceId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Voice) TableName() string {
	return "voice"
}
