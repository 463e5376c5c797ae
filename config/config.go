package config

import (
	"os"
	"strconv"
	"time"
)

// Settings holds all tunables for the analysis and diagram pipeline.
// Values come from the environment; every field has a usable default so the
// service can start with nothing but SQL_* and LLM_* set.
type Settings struct {
	// Technical conversation detection
	TechnicalConfidenceThreshold float64
	ConversationTimeWindow       time.Duration
	MinTechnicalMessages         int
	ContextWindowSize            int
	AnalysisContextSize          int

	// LLM
	LLMModel   string
	LLMTimeout time.Duration

	// Diagram rendering
	PlantUMLBin        string
	DiagramStoragePath string
	ArtifactRetention  time.Duration
}

func Load() *Settings {
	return &Settings{
		TechnicalConfidenceThreshold: envFloat("TECHNICAL_CONFIDENCE_THRESHOLD", 0.7),
		ConversationTimeWindow:       time.Duration(envInt("CONVERSATION_TIME_WINDOW_MINUTES", 10)) * time.Minute,
		MinTechnicalMessages:         envInt("MIN_TECHNICAL_MESSAGES", 3),
		ContextWindowSize:            envInt("CONVERSATION_CONTEXT_WINDOW_SIZE", 50),
		AnalysisContextSize:          envInt("ANALYSIS_CONTEXT_SIZE", 5),
		LLMModel:                     envString("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:                   time.Duration(envInt("LLM_TIMEOUT_SECONDS", 30)) * time.Second,
		PlantUMLBin:                  envString("PLANTUML_BIN", "plantuml"),
		DiagramStoragePath:           envString("DIAGRAM_STORAGE_PATH", "./diagrams"),
		ArtifactRetention:            time.Duration(envInt("ARTIFACT_RETENTION_HOURS", 72)) * time.Hour,
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
