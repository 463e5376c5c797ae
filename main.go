package main

import (
	"fmt"
	"os"
	"time"

	"archflow/config"
	"archflow/controller"
	"archflow/model"
	"archflow/platform"
	"archflow/service"

	_uuid "github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CORSMiddleware ...
// CORS (Cross-Origin Resource Sharing)
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, UPDATE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "X-Requested-With, Content-Type, Origin, Authorization, Accept, Client-Security-Token, Accept-Encoding, x-access-token")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			fmt.Println("OPTIONS")
			c.AbortWithStatus(200)
		} else {
			c.Next()
		}
	}
}

// RequestIDMiddleware ...
// Generate a unique ID and attach it to each request for future reference or use
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		uuid := _uuid.New()
		c.Writer.Header().Set("X-Request-Id", uuid.String())
		c.Set("requestId", uuid.String())
		c.Next()
	}
}

func LogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		if raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		status := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		userAgent := c.Request.UserAgent()
		requestId := c.GetString("requestId")

		logrus.Infof(
			" [%s] %d | %v | %s | %s | %s | %s ",
			requestId,
			status,
			latency,
			clientIP,
			method,
			path,
			userAgent,
		)
	}
}

func main() {
	fmt.Println("Server started...")

	//Load the .env file
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("failed to load the env file")
	}

	platform.InitFile("./log", "gin")

	r := gin.Default()
	r.Use(CORSMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LogMiddleware())

	//init database
	platform.InitDB()
	model.InstallDB()

	platform.InitLLMClient()

	settings := config.Load()

	llm := &platform.ChatModel{Model: settings.LLMModel, Temperature: 0.3}
	extraction := service.NewExtractionClient(llm, settings.LLMTimeout)
	registry := service.NewRegistry()
	events := service.NewEventBus()
	renderer := service.NewRenderer(settings.PlantUMLBin, settings.DiagramStoragePath)
	diagrams := service.NewDiagramService(extraction, registry, renderer, events)
	conversations := service.NewConversationService(settings, extraction, diagrams, registry, events)

	v1 := r.Group("/v1")
	{
		message := controller.MessageController{Conversations: conversations}
		v1.POST("/messages", message.Create)
		v1.GET("/conversations/:id/messages", message.List)

		conversation := controller.ConversationController{Conversations: conversations}
		v1.GET("/conversations/:id/graph", conversation.Graph)
		v1.DELETE("/conversations/:id", conversation.Delete)

		diagram := controller.DiagramController{Diagrams: diagrams}
		v1.POST("/diagrams/generate", diagram.Generate)
		v1.POST("/diagrams/modify", diagram.Modify)
		v1.PUT("/diagrams/:id/code", diagram.UpdateCode)
		v1.GET("/diagrams/:id", diagram.Get)
		v1.GET("/conversations/:id/diagrams", diagram.List)
		v1.GET("/conversations/:id/diagram/latest", diagram.Latest)

		ws := controller.NewWSController(events)
		v1.GET("/conversations/:id/ws", ws.Feed)
	}

	r.Static("/diagrams", settings.DiagramStoragePath)

	c := cron.New()
	c.AddFunc("0 * * * *", func() {
		service.CleanupArtifactsTask(renderer, settings.ArtifactRetention)
	})
	c.Start()

	port := os.Getenv("PORT")
	r.Run(":" + port)
}
