package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"archflow/platform"
	"archflow/service"
)

var logger = platform.Logger

type MessageController struct {
	Conversations *service.ConversationService
}

// Create ingests one chat message: the service scores it, updates the
// conversation graph and may trigger diagram generation as a side effect.
func (m MessageController) Create(c *gin.Context) {
	var input struct {
		Content        string `json:"content" binding:"required"`
		Author         string `json:"author"`
		ConversationId uint   `json:"conversation_id"`
		Platform       string `json:"platform"`
		ChannelId      string `json:"channel_id"`
		ThreadId       string `json:"thread_id"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		logger.Warnf("[%s] Invalid input, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	conversationId := input.ConversationId
	if conversationId == 0 {
		platformName := input.Platform
		if platformName == "" {
			platformName = "web"
		}
		conversation, err := m.Conversations.GetOrCreate(platformName, input.ChannelId, input.ThreadId)
		if err != nil {
			logger.Warnf("[%s] get or create conversation error, %s", c.GetString("requestId"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve conversation"})
			return
		}
		conversationId = conversation.ID
	}

	message, err := m.Conversations.IngestMessage(c.Request.Context(), conversationId, input.Content, input.Author)
	if err != nil {
		logger.Warnf("[%s] ingest message error, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, message)
}

// List returns recent messages of a conversation, newest first.
func (m MessageController) List(c *gin.Context) {
	conversationId, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := m.Conversations.GetMessages(conversationId, limit)
	if err != nil {
		logger.Warnf("[%s] list messages error, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func parseUintParam(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	return uint(v), err
}
