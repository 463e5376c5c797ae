package model

import (
	"time"

	"gorm.io/datatypes"

	"archflow/platform"
)

// Message is immutable once scored: the technical flag, confidence and
// extracted entities are written exactly once when the row is created.
type Message struct {
	ID              uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationId  uint           `json:"conversation_id" gorm:"index:idx_conversation_id_created_at"`
	Author          string         `gorm:"type:varchar(255)" json:"author"`
	Content         string         `gorm:"type:text" json:"content"`
	IsTechnical     bool           `gorm:"index" json:"is_technical"`
	ConfidenceScore float64        `json:"confidence_score"`
	Entities        datatypes.JSON `json:"entities,omitempty"`
	CreatedAt       time.Time      `json:"created_at" gorm:"index:idx_conversation_id_created_at"`
}

func CreateMessage(message *Message) error {
	db := platform.DB
	return db.Create(message).Error
}

func GetRecentMessages(conversationId uint, limit int) ([]Message, error) {
	db := platform.DB
	var messages []Message
	err := db.Where("conversation_id = ?", conversationId).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// CountQualifying recomputes the number of qualifying technical messages
// from the message history. It is intentionally never cached so the count
// self-corrects as the time window slides.
func CountQualifying(conversationId uint, threshold float64, since time.Time) (int64, error) {
	db := platform.DB
	var count int64
	err := db.Model(&Message{}).
		Where("conversation_id = ? AND is_technical = ? AND confidence_score >= ? AND created_at >= ?",
			conversationId, true, threshold, since).
		Count(&count).Error
	return count, err
}
