package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"archflow/service"
)

type ConversationController struct {
	Conversations *service.ConversationService
}

// Graph exposes the accumulated entity graph for inspection and editors.
func (cc ConversationController) Graph(c *gin.Context) {
	conversationId, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return
	}

	g, err := cc.Conversations.Graph(conversationId)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, g)
}

// Delete destroys the conversation and everything it owns.
func (cc ConversationController) Delete(c *gin.Context) {
	conversationId, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid conversation id"})
		return
	}

	if err := cc.Conversations.Delete(conversationId); err != nil {
		logger.Warnf("[%s] delete conversation error, %s", c.GetString("requestId"), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": conversationId})
}
