package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"archflow/config"
	"archflow/model"
	"archflow/platform"
)

// setupDB points the shared gorm handle at a fresh in-memory database, one
// per test.
func setupDB(t *testing.T) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	platform.DB = db
	model.InstallDB()
}

func testSettings() *config.Settings {
	return &config.Settings{
		TechnicalConfidenceThreshold: 0.7,
		ConversationTimeWindow:       10 * time.Minute,
		MinTechnicalMessages:         3,
		ContextWindowSize:            50,
		AnalysisContextSize:          5,
		LLMTimeout:                   5 * time.Second,
	}
}

// fakeLLM scripts responses in call order; it satisfies service.LLMClient.
type fakeLLM struct {
	mu        sync.Mutex
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	content string
	err     error
}

func (f *fakeLLM) Complete(_ context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		return "", errors.New("no response scripted")
	}
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	r := f.responses[idx]
	return r.content, r.err
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	llm           *fakeLLM
	conversations *ConversationService
	diagrams      *DiagramService
	registry      *Registry
	events        *EventBus
}

func newFixture(t *testing.T, responses ...fakeResponse) *fixture {
	t.Helper()
	setupDB(t)
	llm := &fakeLLM{responses: responses}
	extraction := NewExtractionClient(llm, 5*time.Second)
	registry := NewRegistry()
	events := NewEventBus()
	diagrams := NewDiagramService(extraction, registry, nil, events)
	conversations := NewConversationService(testSettings(), extraction, diagrams, registry, events)
	return &fixture{
		llm:           llm,
		conversations: conversations,
		diagrams:      diagrams,
		registry:      registry,
		events:        events,
	}
}

func (f *fixture) newConversation(t *testing.T) *model.Conversation {
	t.Helper()
	conversation, err := model.GetOrCreateConversation("web", "channel-"+t.Name(), "")
	require.NoError(t, err)
	return conversation
}
