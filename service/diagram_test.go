package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archflow/graph"
	"archflow/model"
	"archflow/platform"
)

func seedGraph(t *testing.T, conversationId uint) {
	t.Helper()
	var g graph.Graph
	g.Merge(
		[]graph.Entity{
			{Name: "API", Kind: graph.KindGateway},
			{Name: "database", Kind: graph.KindDatabase, Technology: "PostgreSQL"},
		},
		[]graph.Relationship{
			{Source: "API", Target: "database", Kind: graph.RelStores},
		},
	)
	require.NoError(t, model.UpdateConversationGraph(conversationId, g))
}

func TestGenerateVersionsAreGaplessFromOne(t *testing.T) {
	f := newFixture(t)
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		d, err := f.diagrams.Generate(ctx, conversation.ID, true)
		require.NoError(t, err)
		assert.Equal(t, want, d.Version)
	}

	diagrams, err := f.diagrams.GetConversationDiagrams(conversation.ID)
	require.NoError(t, err)
	require.Len(t, diagrams, 3)
	// newest first
	assert.Equal(t, 3, diagrams[0].Version)
	assert.Equal(t, 1, diagrams[2].Version)
}

func TestGenerateNotEligibleWhenIdle(t *testing.T) {
	f := newFixture(t)
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)

	_, err := f.diagrams.Generate(context.Background(), conversation.ID, false)
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestPendingGenerationRunsExactlyOnceUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)
	f.registry.SetTrigger(conversation.ID, TriggerPending)

	var wg sync.WaitGroup
	results := make([]*model.Diagram, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.diagrams.Generate(context.Background(), conversation.ID, false)
		}(i)
	}
	wg.Wait()

	// exactly one generation ran: one version exists, every caller either
	// observed it or was declined
	diagrams, err := f.diagrams.GetConversationDiagrams(conversation.ID)
	require.NoError(t, err)
	require.Len(t, diagrams, 1)
	succeeded := 0
	for i := 0; i < 2; i++ {
		if errs[i] == nil {
			require.NotNil(t, results[i])
			assert.Equal(t, 1, results[i].Version)
			succeeded++
		} else {
			assert.ErrorIs(t, errs[i], ErrNotEligible)
		}
	}
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, TriggerGenerated, f.registry.Trigger(conversation.ID))
}

func TestGenerateEmptyGraphProducesFallback(t *testing.T) {
	f := newFixture(t)
	conversation := f.newConversation(t)

	d, err := f.diagrams.Generate(context.Background(), conversation.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 0, d.ComponentCount)
	assert.Contains(t, d.PlantUML, "No architecture detected yet")
	assert.NotEmpty(t, d.DrawioXML)
}

func TestModifyAddsCacheBetweenAPIAndDatabase(t *testing.T) {
	f := newFixture(t, fakeResponse{content: `{
		"add_entities": [{"name": "Redis", "kind": "cache", "technology": "Redis"}],
		"add_relationships": [
			{"source": "API", "target": "Redis", "kind": "calls"},
			{"source": "Redis", "target": "database", "kind": "stores"}
		],
		"remove_entities": [],
		"remove_relationships": []
	}`})
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)
	ctx := context.Background()

	base, err := f.diagrams.Generate(ctx, conversation.ID, true)
	require.NoError(t, err)

	modified, err := f.diagrams.Modify(ctx, base.ID, "add a Redis cache between API and database")
	require.NoError(t, err)
	assert.Equal(t, base.Version+1, modified.Version)
	assert.Equal(t, 3, modified.ComponentCount)
	assert.Equal(t, 3, modified.RelationshipCount)

	g, err := f.conversations.Graph(conversation.ID)
	require.NoError(t, err)
	var redis *graph.Entity
	for i := range g.Entities {
		if graph.NormalizeName(g.Entities[i].Name) == "redis" {
			redis = &g.Entities[i]
		}
	}
	require.NotNil(t, redis)
	assert.Equal(t, graph.KindCache, redis.Kind)
	// prior entities survive
	assert.Len(t, g.Entities, 3)

	mods, err := model.GetModificationsByDiagram(base.ID)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.True(t, mods[0].Success)
	require.NotNil(t, mods[0].ResultDiagramId)
	assert.Equal(t, modified.ID, *mods[0].ResultDiagramId)
}

func TestModifyUnparsableLeavesDiagramUnchanged(t *testing.T) {
	f := newFixture(t, fakeResponse{content: "sorry, I can't do that"})
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)
	ctx := context.Background()

	base, err := f.diagrams.Generate(ctx, conversation.ID, true)
	require.NoError(t, err)

	_, err = f.diagrams.Modify(ctx, base.ID, "add a kafka queue")
	var modErr *ModificationError
	require.ErrorAs(t, err, &modErr)
	assert.NotEmpty(t, modErr.Reason)

	latest, err := f.diagrams.GetLatestDiagram(conversation.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, base.ID, latest.ID)
	assert.Equal(t, base.PlantUML, latest.PlantUML)

	// graph untouched
	g, err := f.conversations.Graph(conversation.ID)
	require.NoError(t, err)
	assert.Len(t, g.Entities, 2)

	mods, err := model.GetModificationsByDiagram(base.ID)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.False(t, mods[0].Success)
	assert.NotEmpty(t, mods[0].ErrorReason)
	assert.Nil(t, mods[0].ResultDiagramId)
}

func TestModifyRemovalOfMissingEntityIsNoOp(t *testing.T) {
	f := newFixture(t, fakeResponse{content: `{
		"add_entities": [],
		"add_relationships": [],
		"remove_entities": ["Kafka"],
		"remove_relationships": []
	}`})
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)
	ctx := context.Background()

	base, err := f.diagrams.Generate(ctx, conversation.ID, true)
	require.NoError(t, err)

	modified, err := f.diagrams.Modify(ctx, base.ID, "remove the kafka queue")
	require.NoError(t, err)
	assert.Equal(t, base.Version+1, modified.Version)
	assert.Equal(t, base.ComponentCount, modified.ComponentCount)
}

func TestGenerateThenModifyVersionsInterleave(t *testing.T) {
	f := newFixture(t, fakeResponse{content: `{
		"add_entities": [{"name": "Cache", "kind": "cache"}],
		"add_relationships": [],
		"remove_entities": [],
		"remove_relationships": []
	}`})
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)
	ctx := context.Background()

	first, err := f.diagrams.Generate(ctx, conversation.ID, true)
	require.NoError(t, err)
	second, err := f.diagrams.Modify(ctx, first.ID, "add a cache")
	require.NoError(t, err)
	third, err := f.diagrams.Generate(ctx, conversation.ID, true)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, []int{first.Version, second.Version, third.Version})
	// the regenerated diagram reflects the modified graph
	assert.Equal(t, 3, third.ComponentCount)
}

func TestEventBusPublishesAfterCommit(t *testing.T) {
	f := newFixture(t)
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)

	events, cancel := f.events.Subscribe(conversation.ID)
	defer cancel()

	d, err := f.diagrams.Generate(context.Background(), conversation.ID, true)
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, EventDiagramGenerated, event.Type)
		assert.Equal(t, d.ID, event.DiagramId)
		assert.Equal(t, d.Version, event.Version)
		// the diagram the event refers to is already queryable
		stored, err := f.diagrams.GetDiagram(event.DiagramId)
		require.NoError(t, err)
		assert.Equal(t, d.PlantUML, stored.PlantUML)
	default:
		t.Fatal("expected a generation event")
	}
}

func TestModifyRollsBackWhenCommitFails(t *testing.T) {
	f := newFixture(t, fakeResponse{content: `{
		"add_entities": [{"name": "Redis", "kind": "cache"}],
		"add_relationships": [],
		"remove_entities": [],
		"remove_relationships": []
	}`})
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)
	ctx := context.Background()

	base, err := f.diagrams.Generate(ctx, conversation.ID, true)
	require.NoError(t, err)
	before, err := f.conversations.Graph(conversation.ID)
	require.NoError(t, err)

	// make the audit insert fail so the commit cannot complete
	require.NoError(t, platform.DB.Migrator().DropTable(&model.Modification{}))

	_, err = f.diagrams.Modify(ctx, base.ID, "add a redis cache")
	require.Error(t, err)
	// an internal failure, not a rejected request
	var modErr *ModificationError
	assert.False(t, errors.As(err, &modErr))

	// nothing from the failed commit persists
	latest, err := f.diagrams.GetLatestDiagram(conversation.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, base.ID, latest.ID)
	assert.Equal(t, base.Version, latest.Version)

	after, err := f.conversations.Graph(conversation.ID)
	require.NoError(t, err)
	assert.Len(t, after.Entities, len(before.Entities))
}

func TestUpdateCodeAppendsNewVersion(t *testing.T) {
	f := newFixture(t)
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)
	ctx := context.Background()

	base, err := f.diagrams.Generate(ctx, conversation.ID, true)
	require.NoError(t, err)

	edited := "@startuml\ncomponent \"API\" as api\n@enduml"
	updated, err := f.diagrams.UpdateCode(base.ID, edited, "")
	require.NoError(t, err)
	assert.Equal(t, base.Version+1, updated.Version)
	assert.Equal(t, edited, updated.PlantUML)
	// the untouched format carries over
	assert.Equal(t, base.DrawioXML, updated.DrawioXML)

	// the edited row itself stays immutable
	reloaded, err := f.diagrams.GetDiagram(base.ID)
	require.NoError(t, err)
	assert.Equal(t, base.PlantUML, reloaded.PlantUML)

	mods, err := model.GetModificationsByDiagram(base.ID)
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.True(t, mods[0].Success)
	require.NotNil(t, mods[0].ResultDiagramId)
	assert.Equal(t, updated.ID, *mods[0].ResultDiagramId)
}

func TestUpdateCodeRejectsInvalidCode(t *testing.T) {
	f := newFixture(t)
	conversation := f.newConversation(t)
	seedGraph(t, conversation.ID)
	ctx := context.Background()

	base, err := f.diagrams.Generate(ctx, conversation.ID, true)
	require.NoError(t, err)

	var modErr *ModificationError
	_, err = f.diagrams.UpdateCode(base.ID, `component "API"`, "")
	require.ErrorAs(t, err, &modErr)

	_, err = f.diagrams.UpdateCode(base.ID, "", "")
	require.ErrorAs(t, err, &modErr)

	latest, err := f.diagrams.GetLatestDiagram(conversation.ID)
	require.NoError(t, err)
	assert.Equal(t, base.Version, latest.Version)
}
