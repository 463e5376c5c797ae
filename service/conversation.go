package service

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"archflow/config"
	"archflow/graph"
	"archflow/model"
)

// ConversationService orchestrates per-message analysis: score the message,
// stamp it, fold extracted entities into the conversation graph, then let
// the trigger policy decide whether to generate.
type ConversationService struct {
	cfg        *config.Settings
	extraction *ExtractionClient
	diagrams   *DiagramService
	registry   *Registry
	events     *EventBus
}

func NewConversationService(cfg *config.Settings, extraction *ExtractionClient, diagrams *DiagramService, registry *Registry, events *EventBus) *ConversationService {
	return &ConversationService{
		cfg:        cfg,
		extraction: extraction,
		diagrams:   diagrams,
		registry:   registry,
		events:     events,
	}
}

// IngestMessage scores and stores one incoming message. The analysis
// failure path never surfaces: the message is stamped non-technical with
// confidence exactly 0.0 and processing continues. When the trigger policy
// reaches PENDING_GENERATION a generation runs after the ingest lock is
// released.
//
// The row lookup happens under the conversation lock so a deletion that
// completes while this call is queued cannot be followed by new rows for
// the dead conversation.
func (s *ConversationService) IngestMessage(ctx context.Context, conversationId uint, content, author string) (*model.Message, error) {
	unlock := s.registry.Lock(conversationId)
	conversation, err := model.GetConversation(conversationId)
	if err != nil {
		unlock()
		return nil, err
	}

	message, triggered, err := s.ingestLocked(ctx, conversation, content, author)
	unlock()
	if err != nil {
		return nil, err
	}

	if triggered {
		if _, err := s.diagrams.Generate(ctx, conversation.ID, false); err != nil {
			// generation failure must not fail the ingest
			logger.Warnf("[conversation] triggered generation for conversation %d failed: %s", conversation.ID, err)
		}
	}
	return message, nil
}

func (s *ConversationService) ingestLocked(ctx context.Context, conversation *model.Conversation, content, author string) (*model.Message, bool, error) {
	// tie the model call to the conversation lifetime: Delete cancels it
	// without waiting for this lock
	convCtx := s.registry.Context(conversation.ID)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(convCtx, cancel)
	defer stop()

	contextMessages := s.recentContext(conversation.ID)

	analysis, err := s.extraction.AnalyzeMessage(ctx, content, contextMessages)
	if err != nil {
		if convCtx.Err() != nil {
			return nil, false, ErrConversationDeleted
		}
		logger.Warnf("[conversation] analysis failed for conversation %d: %s", conversation.ID, err)
		analysis = &Analysis{IsTechnical: false, ConfidenceScore: 0.0}
	}
	if convCtx.Err() != nil {
		return nil, false, ErrConversationDeleted
	}

	message := &model.Message{
		ConversationId:  conversation.ID,
		Author:          author,
		Content:         content,
		IsTechnical:     analysis.IsTechnical,
		ConfidenceScore: analysis.ConfidenceScore,
	}
	if len(analysis.Entities) > 0 || len(analysis.Relationships) > 0 {
		payload, marshalErr := json.Marshal(analysis)
		if marshalErr == nil {
			message.Entities = datatypes.JSON(payload)
		}
	}
	if err := model.CreateMessage(message); err != nil {
		return nil, false, err
	}

	if len(analysis.Entities) > 0 || len(analysis.Relationships) > 0 {
		g, err := conversation.LoadGraph()
		if err != nil {
			return nil, false, err
		}
		g.Merge(analysis.Entities, analysis.Relationships)
		if err := model.UpdateConversationGraph(conversation.ID, g); err != nil {
			return nil, false, err
		}
	}

	triggered := s.evaluateTrigger(conversation.ID)
	return message, triggered, nil
}

// evaluateTrigger recomputes the qualifying count from the message history
// and advances IDLE to PENDING_GENERATION when the threshold is reached.
// Caller holds the conversation lock.
func (s *ConversationService) evaluateTrigger(conversationId uint) bool {
	since := time.Now().Add(-s.cfg.ConversationTimeWindow)
	count, err := model.CountQualifying(conversationId, s.cfg.TechnicalConfidenceThreshold, since)
	if err != nil {
		logger.Warnf("[conversation] qualifying count failed for conversation %d: %s", conversationId, err)
		return false
	}

	if count < int64(s.cfg.MinTechnicalMessages) {
		return false
	}
	if s.registry.Trigger(conversationId) != TriggerIdle {
		return false
	}
	s.registry.SetTrigger(conversationId, TriggerPending)
	logger.Infof("[conversation] conversation %d reached %d qualifying messages, generation pending",
		conversationId, count)
	return true
}

// recentContext returns the most recent prior messages, oldest first, for
// the scoring call. The window is bounded before the model call to bound
// request size.
func (s *ConversationService) recentContext(conversationId uint) []ContextMessage {
	messages, err := model.GetRecentMessages(conversationId, s.cfg.AnalysisContextSize)
	if err != nil {
		logger.Warnf("[conversation] loading context for conversation %d failed: %s", conversationId, err)
		return nil
	}
	// GetRecentMessages returns newest first
	out := make([]ContextMessage, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		out = append(out, ContextMessage{Author: messages[i].Author, Content: messages[i].Content})
	}
	return out
}

func (s *ConversationService) GetOrCreate(platformName, channelId, threadId string) (*model.Conversation, error) {
	return model.GetOrCreateConversation(platformName, channelId, threadId)
}

func (s *ConversationService) GetMessages(conversationId uint, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > s.cfg.ContextWindowSize {
		limit = s.cfg.ContextWindowSize
	}
	return model.GetRecentMessages(conversationId, limit)
}

// Delete tears the conversation down: in-flight model calls are cancelled,
// rows cascade, and the per-conversation state is forgotten. A later ingest
// for the id fails its row lookup under the lock.
func (s *ConversationService) Delete(conversationId uint) error {
	s.registry.Cancel(conversationId)
	unlock := s.registry.Lock(conversationId)
	defer unlock()
	if err := model.DeleteConversation(conversationId); err != nil {
		return err
	}
	s.registry.Forget(conversationId)
	return nil
}

// Graph returns the current accumulated entity graph.
func (s *ConversationService) Graph(conversationId uint) (graph.Graph, error) {
	conversation, err := model.GetConversation(conversationId)
	if err != nil {
		return graph.Graph{}, err
	}
	return conversation.LoadGraph()
}
