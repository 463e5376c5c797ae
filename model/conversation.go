package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"archflow/graph"
	"archflow/platform"
)

// Conversation owns its messages, diagrams and the accumulated entity
// graph. The graph snapshot lives in a JSON column and is only written by
// the graph builder under the conversation lock.
type Conversation struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Platform  string         `gorm:"type:varchar(64);index:idx_platform_channel_thread" json:"platform"`
	ChannelId string         `gorm:"type:varchar(255);index:idx_platform_channel_thread" json:"channel_id"`
	ThreadId  string         `gorm:"type:varchar(255);index:idx_platform_channel_thread" json:"thread_id"`
	Graph     datatypes.JSON `json:"graph"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func CreateConversation(conversation *Conversation) error {
	db := platform.DB
	return db.Create(conversation).Error
}

func GetConversation(id uint) (*Conversation, error) {
	var conversation Conversation
	db := platform.DB
	if err := db.First(&conversation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %d %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &conversation, nil
}

func GetOrCreateConversation(platformName, channelId, threadId string) (*Conversation, error) {
	db := platform.DB
	var conversation Conversation
	err := db.Where("platform = ? AND channel_id = ? AND thread_id = ?",
		platformName, channelId, threadId).First(&conversation).Error
	if err == nil {
		return &conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	conversation = Conversation{
		Platform:  platformName,
		ChannelId: channelId,
		ThreadId:  threadId,
	}
	if err := db.Create(&conversation).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conversation, nil
}

// LoadGraph decodes the stored entity graph; an empty column yields an
// empty graph.
func (c *Conversation) LoadGraph() (graph.Graph, error) {
	var g graph.Graph
	if len(c.Graph) == 0 {
		return g, nil
	}
	if err := json.Unmarshal(c.Graph, &g); err != nil {
		return graph.Graph{}, fmt.Errorf("failed to decode graph for conversation %d: %w", c.ID, err)
	}
	return g, nil
}

func UpdateConversationGraph(id uint, g graph.Graph) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	db := platform.DB
	if err := db.Model(&Conversation{}).Where("id = ?", id).
		Update("graph", datatypes.JSON(payload)).Error; err != nil {
		return fmt.Errorf("failed to update graph: %w", err)
	}
	return nil
}

// DeleteConversation cascades: messages, diagrams and their modification
// records go with the conversation.
func DeleteConversation(id uint) error {
	db := platform.DB
	return db.Transaction(func(tx *gorm.DB) error {
		var diagramIds []uint
		if err := tx.Model(&Diagram{}).Where("conversation_id = ?", id).
			Pluck("id", &diagramIds).Error; err != nil {
			return err
		}
		if len(diagramIds) > 0 {
			if err := tx.Where("diagram_id IN ?", diagramIds).
				Delete(&Modification{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&Diagram{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Conversation{}, id).Error
	})
}
