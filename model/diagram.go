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

// ErrNotFound is wrapped into lookup errors so callers can map a missing
// row without matching message text.
var ErrNotFound = errors.New("not found")

// Diagram is one immutable synthesis output. A new version is always a new
// row; rows are never edited in place apart from attaching the rendered
// image path once rendering finishes.
type Diagram struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationId    uint      `gorm:"index:idx_conversation_id_version" json:"conversation_id"`
	Version           int       `gorm:"index:idx_conversation_id_version" json:"version"`
	PlantUML          string    `gorm:"type:text" json:"plantuml_code"`
	DrawioXML         string    `gorm:"type:text" json:"drawio_xml"`
	PngURL            string    `gorm:"type:varchar(512)" json:"png_url,omitempty"`
	ComponentCount    int       `json:"component_count"`
	RelationshipCount int       `json:"relationship_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// Modification records one natural-language change request and its outcome.
// DiagramId is the version the request was made against; ResultDiagramId
// points at the new version when the request succeeded.
type Modification struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DiagramId       uint      `gorm:"index" json:"diagram_id"`
	Request         string    `gorm:"type:text" json:"request"`
	Success         bool      `json:"success"`
	ErrorReason     string    `gorm:"type:text" json:"error_reason,omitempty"`
	ResultDiagramId *uint     `json:"result_diagram_id,omitempty"`
	AppliedAt       time.Time `gorm:"autoCreateTime" json:"applied_at"`
}

func GetDiagram(id uint) (*Diagram, error) {
	var diagram Diagram
	db := platform.DB
	if err := db.First(&diagram, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("diagram %d %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &diagram, nil
}

// GetLatestDiagram returns nil without error when the conversation has no
// diagram yet.
func GetLatestDiagram(conversationId uint) (*Diagram, error) {
	var diagram Diagram
	db := platform.DB
	err := db.Where("conversation_id = ?", conversationId).
		Order("version DESC").
		First(&diagram).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &diagram, nil
}

func GetDiagramsByConversation(conversationId uint) ([]Diagram, error) {
	db := platform.DB
	var diagrams []Diagram
	err := db.Where("conversation_id = ?", conversationId).
		Order("version DESC").
		Find(&diagrams).Error
	if err != nil {
		return nil, err
	}
	return diagrams, nil
}

// AppendDiagram assigns the next version for the conversation and inserts
// the row. Versions start at 1 and have no gaps because the caller holds
// the conversation lock.
func AppendDiagram(record *Diagram) error {
	return appendDiagram(platform.DB, record)
}

func appendDiagram(db *gorm.DB, record *Diagram) error {
	var latest Diagram
	err := db.Where("conversation_id = ?", record.ConversationId).
		Order("version DESC").
		First(&latest).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		record.Version = 1
	case err != nil:
		return fmt.Errorf("database query failed: %w", err)
	default:
		record.Version = latest.Version + 1
	}
	if err := db.Create(record).Error; err != nil {
		return fmt.Errorf("failed to store diagram: %w", err)
	}
	return nil
}

// CommitModification persists one successful modification atomically: the
// new diagram version, the updated graph snapshot and the audit row either
// all land or none do.
func CommitModification(conversationId uint, record *Diagram, g graph.Graph, modification *Modification) error {
	payload, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	db := platform.DB
	return db.Transaction(func(tx *gorm.DB) error {
		if err := appendDiagram(tx, record); err != nil {
			return err
		}
		if err := tx.Model(&Conversation{}).Where("id = ?", conversationId).
			Update("graph", datatypes.JSON(payload)).Error; err != nil {
			return fmt.Errorf("failed to update graph: %w", err)
		}
		modification.ResultDiagramId = &record.ID
		return tx.Create(modification).Error
	})
}

func UpdateDiagramPNG(id uint, pngURL string) error {
	db := platform.DB
	if err := db.Model(&Diagram{}).Where("id = ?", id).
		Update("png_url", pngURL).Error; err != nil {
		return fmt.Errorf("failed to update diagram png_url: %w", err)
	}
	return nil
}

func CreateModification(modification *Modification) error {
	db := platform.DB
	return db.Create(modification).Error
}

func GetModificationsByDiagram(diagramId uint) ([]Modification, error) {
	db := platform.DB
	var modifications []Modification
	err := db.Where("diagram_id = ?", diagramId).
		Order("applied_at DESC").
		Find(&modifications).Error
	if err != nil {
		return nil, err
	}
	return modifications, nil
}
