package service

import (
	"context"
	"fmt"

	"archflow/diagram"
	"archflow/graph"
	"archflow/model"
)

// DiagramService produces diagram versions from a conversation's entity
// graph and applies natural-language modifications. All writes for one
// conversation run under its registry lock.
type DiagramService struct {
	extraction *ExtractionClient
	registry   *Registry
	renderer   *Renderer
	events     *EventBus
}

func NewDiagramService(extraction *ExtractionClient, registry *Registry, renderer *Renderer, events *EventBus) *DiagramService {
	return &DiagramService{
		extraction: extraction,
		registry:   registry,
		renderer:   renderer,
		events:     events,
	}
}

// Generate synthesizes a new diagram version from the conversation's
// current graph. Without force it requires the trigger policy to be in
// PENDING_GENERATION, otherwise ErrNotEligible. Concurrent callers for the
// same conversation collapse into one in-flight generation and observe the
// same result.
func (s *DiagramService) Generate(ctx context.Context, conversationId uint, force bool) (*model.Diagram, error) {
	result, err, _ := s.registry.flight.Do(fmt.Sprintf("generate-%d", conversationId), func() (interface{}, error) {
		return s.generate(ctx, conversationId, force)
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.Diagram), nil
}

func (s *DiagramService) generate(ctx context.Context, conversationId uint, force bool) (*model.Diagram, error) {
	unlock := s.registry.Lock(conversationId)
	defer unlock()

	if !force && s.registry.Trigger(conversationId) != TriggerPending {
		return nil, ErrNotEligible
	}

	conversation, err := model.GetConversation(conversationId)
	if err != nil {
		s.registry.SetTrigger(conversationId, TriggerIdle)
		return nil, err
	}
	g, err := conversation.LoadGraph()
	if err != nil {
		s.registry.SetTrigger(conversationId, TriggerIdle)
		return nil, err
	}

	record, err := s.appendVersion(conversationId, g)
	if err != nil {
		// back to IDLE so a future qualifying message can retry
		s.registry.SetTrigger(conversationId, TriggerIdle)
		s.events.Publish(conversationId, Event{
			Type:           EventGenerationFailed,
			ConversationId: conversationId,
			Error:          err.Error(),
		})
		return nil, err
	}
	s.registry.SetTrigger(conversationId, TriggerGenerated)

	logger.Infof("[diagram] generated version %d for conversation %d (%d components, %d relationships)",
		record.Version, conversationId, record.ComponentCount, record.RelationshipCount)

	s.publishAndRender(EventDiagramGenerated, record)
	return record, nil
}

// Modify applies a natural-language change request against the diagram's
// version and appends the result as a new version. On any parse failure the
// stored graph and diagram are left completely unchanged and a failed
// modification record is written.
func (s *DiagramService) Modify(ctx context.Context, diagramId uint, request string) (*model.Diagram, error) {
	current, err := model.GetDiagram(diagramId)
	if err != nil {
		return nil, err
	}
	conversationId := current.ConversationId

	unlock := s.registry.Lock(conversationId)
	defer unlock()

	conversation, err := model.GetConversation(conversationId)
	if err != nil {
		return nil, err
	}
	g, err := conversation.LoadGraph()
	if err != nil {
		return nil, err
	}

	delta, err := s.extraction.RequestModification(ctx, current.PlantUML, request)
	if err != nil {
		reason := err.Error()
		s.recordModification(diagramId, request, false, reason, nil)
		logger.Warnf("[diagram] modification of diagram %d failed: %s", diagramId, reason)
		return nil, &ModificationError{Reason: reason}
	}
	if delta.Empty() {
		reason := "model returned no applicable changes"
		s.recordModification(diagramId, request, false, reason, nil)
		return nil, &ModificationError{Reason: reason}
	}

	modified := delta.Apply(g)

	// one transaction: new version, graph snapshot and audit row land
	// together or not at all
	record := s.newRecord(conversationId, modified)
	modification := &model.Modification{
		DiagramId: diagramId,
		Request:   request,
		Success:   true,
	}
	if err := model.CommitModification(conversationId, record, modified, modification); err != nil {
		s.recordModification(diagramId, request, false, err.Error(), nil)
		return nil, fmt.Errorf("failed to commit modification: %w", err)
	}

	logger.Infof("[diagram] modified diagram %d -> version %d for conversation %d",
		diagramId, record.Version, conversationId)

	s.publishAndRender(EventDiagramModified, record)
	return record, nil
}

// UpdateCode applies a direct editor change to a diagram's source text.
// Validated code is appended as a new version; existing rows stay
// immutable. A format left empty carries over from the edited version, as
// do the component counts, since a code edit does not touch the stored
// graph.
func (s *DiagramService) UpdateCode(diagramId uint, plantuml, drawioXML string) (*model.Diagram, error) {
	current, err := model.GetDiagram(diagramId)
	if err != nil {
		return nil, err
	}
	if plantuml == "" && drawioXML == "" {
		return nil, &ModificationError{Reason: "no diagram code supplied"}
	}
	if plantuml == "" {
		plantuml = current.PlantUML
	} else if !diagram.ValidatePlantUML(plantuml) {
		reason := "invalid PlantUML code"
		s.recordModification(diagramId, "code edit", false, reason, nil)
		return nil, &ModificationError{Reason: reason}
	}
	if drawioXML == "" {
		drawioXML = current.DrawioXML
	} else if !diagram.ValidateDrawio(drawioXML) {
		reason := "invalid Draw.io XML"
		s.recordModification(diagramId, "code edit", false, reason, nil)
		return nil, &ModificationError{Reason: reason}
	}

	unlock := s.registry.Lock(current.ConversationId)
	defer unlock()

	record := &model.Diagram{
		ConversationId:    current.ConversationId,
		PlantUML:          plantuml,
		DrawioXML:         drawioXML,
		ComponentCount:    current.ComponentCount,
		RelationshipCount: current.RelationshipCount,
	}
	if err := model.AppendDiagram(record); err != nil {
		return nil, err
	}
	s.recordModification(diagramId, "code edit", true, "", &record.ID)

	logger.Infof("[diagram] code edit of diagram %d -> version %d for conversation %d",
		diagramId, record.Version, current.ConversationId)

	s.publishAndRender(EventDiagramModified, record)
	return record, nil
}

// newRecord synthesizes both formats from the graph snapshot; the version
// is assigned at insert time.
func (s *DiagramService) newRecord(conversationId uint, g graph.Graph) *model.Diagram {
	res := diagram.Synthesize(g)
	if res.UsedFallbackPlant || res.UsedFallbackDrawio {
		logger.Warnf("[diagram] synthesis for conversation %d substituted fallback output", conversationId)
	}
	return &model.Diagram{
		ConversationId:    conversationId,
		PlantUML:          res.PlantUML,
		DrawioXML:         res.DrawioXML,
		ComponentCount:    res.ComponentCount,
		RelationshipCount: res.RelationshipCount,
	}
}

// appendVersion stores the synthesized graph as the next diagram version.
// Caller holds the conversation lock.
func (s *DiagramService) appendVersion(conversationId uint, g graph.Graph) (*model.Diagram, error) {
	record := s.newRecord(conversationId, g)
	if err := model.AppendDiagram(record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *DiagramService) recordModification(diagramId uint, request string, success bool, reason string, resultId *uint) {
	modification := &model.Modification{
		DiagramId:       diagramId,
		Request:         request,
		Success:         success,
		ErrorReason:     reason,
		ResultDiagramId: resultId,
	}
	if err := model.CreateModification(modification); err != nil {
		logger.Warnf("[diagram] failed to record modification for diagram %d: %s", diagramId, err)
	}
}

// publishAndRender notifies subscribers and kicks off best-effort PNG
// rendering after the diagram row is committed.
func (s *DiagramService) publishAndRender(eventType string, record *model.Diagram) {
	s.events.Publish(record.ConversationId, Event{
		Type:           eventType,
		ConversationId: record.ConversationId,
		DiagramId:      record.ID,
		Version:        record.Version,
	})
	if s.renderer != nil {
		go s.renderer.RenderPNG(context.Background(), record.ID, record.PlantUML)
	}
}

func (s *DiagramService) GetDiagram(diagramId uint) (*model.Diagram, error) {
	return model.GetDiagram(diagramId)
}

func (s *DiagramService) GetLatestDiagram(conversationId uint) (*model.Diagram, error) {
	return model.GetLatestDiagram(conversationId)
}

func (s *DiagramService) GetConversationDiagrams(conversationId uint) ([]model.Diagram, error) {
	return model.GetDiagramsByConversation(conversationId)
}
