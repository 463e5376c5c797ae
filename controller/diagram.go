package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"archflow/model"
	"archflow/service"
)

type DiagramController struct {
	Diagrams *service.DiagramService
}

// Generate produces a new diagram version for a conversation. Without
// force the trigger policy decides; a declined generation is a 409, not an
// error.
func (d DiagramController) Generate(c *gin.Context) {
	var input struct {
		ConversationId uint `json:"conversation_id" binding:"required"`
		Force          bool `json:"force"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	diagram, err := d.Diagrams.Generate(c.Request.Context(), input.ConversationId, input.Force)
	if errors.Is(err, service.ErrNotEligible) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Warnf("[%s] generate diagram error, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate diagram"})
		return
	}

	c.JSON(http.StatusOK, diagram)
}

// Modify applies a natural-language change request against an existing
// diagram version and returns the new version.
func (d DiagramController) Modify(c *gin.Context) {
	var input struct {
		DiagramId uint   `json:"diagram_id" binding:"required"`
		Request   string `json:"request" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	diagram, err := d.Diagrams.Modify(c.Request.Context(), input.DiagramId, input.Request)
	var modErr *service.ModificationError
	if errors.As(err, &modErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": modErr.Reason})
		return
	}
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Warnf("[%s] modify diagram error, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to modify diagram"})
		return
	}

	c.JSON(http.StatusOK, diagram)
}

// UpdateCode appends a direct editor change as a new diagram version.
// Either format may be supplied; the other carries over unchanged.
func (d DiagramController) UpdateCode(c *gin.Context) {
	diagramId, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid diagram id"})
		return
	}

	var input struct {
		PlantUML  string `json:"plantuml_code"`
		DrawioXML string `json:"drawio_xml"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	diagram, err := d.Diagrams.UpdateCode(diagramId, input.PlantUML, input.DrawioXML)
	var modErr *service.ModificationError
	if errors.As(err, &modErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": modErr.Reason})
		return
	}
	if errors.Is(err, model.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		logger.Warnf("[%s] update diagram code error, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update diagram code"})
		return
	}

	c.JSON(http.StatusOK, diagram)
}

func (d DiagramController) Get(c *gin.Context) {
	diagramId, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid diagram id"})
		return
	}

	diagram, err := d.Diagrams.GetDiagram(diagramId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, diagram)
}

// Latest returns the newest diagram version of a conversation; 404 when no
// diagram exists yet.
func (d DiagramController) Latest(c *gin.Context) {
	conversationId, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return
	}

	diagram, err := d.Diagrams.GetLatestDiagram(conversationId)
	if err != nil {
		logger.Warnf("[%s] latest diagram error, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load diagram"})
		return
	}
	if diagram == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No diagram for conversation"})
		return
	}
	c.JSON(http.StatusOK, diagram)
}

// List returns every version for a conversation, newest first.
func (d DiagramController) List(c *gin.Context) {
	conversationId, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return
	}

	diagrams, err := d.Diagrams.GetConversationDiagrams(conversationId)
	if err != nil {
		logger.Warnf("[%s] list diagrams error, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list diagrams"})
		return
	}
	c.JSON(http.StatusOK, diagrams)
}
