package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archflow/graph"
)

func sampleGraph() graph.Graph {
	var g graph.Graph
	g.Merge(
		[]graph.Entity{
			{Name: "API Gateway", Kind: graph.KindGateway, Technology: "Nginx"},
			{Name: "PostgreSQL", Kind: graph.KindDatabase, Technology: "PostgreSQL"},
			{Name: "Auth Service", Kind: graph.KindService, Technology: "Go"},
			{Name: "Redis", Kind: graph.KindCache},
		},
		[]graph.Relationship{
			{Source: "API Gateway", Target: "Auth Service", Kind: graph.RelCalls, Label: "authenticate"},
			{Source: "Auth Service", Target: "PostgreSQL", Kind: graph.RelStores},
			{Source: "API Gateway", Target: "Redis", Kind: graph.RelCalls, Label: "sessions"},
		},
	)
	return g
}

func TestSynthesizeDeterministic(t *testing.T) {
	g := sampleGraph()
	first := Synthesize(g)
	second := Synthesize(g)

	assert.Equal(t, first.PlantUML, second.PlantUML)
	assert.Equal(t, first.DrawioXML, second.DrawioXML)
}

func TestSynthesizeIndependentOfInsertionOrder(t *testing.T) {
	a := sampleGraph()

	var b graph.Graph
	b.Merge(
		[]graph.Entity{
			{Name: "Redis", Kind: graph.KindCache},
			{Name: "Auth Service", Kind: graph.KindService, Technology: "Go"},
			{Name: "PostgreSQL", Kind: graph.KindDatabase, Technology: "PostgreSQL"},
			{Name: "API Gateway", Kind: graph.KindGateway, Technology: "Nginx"},
		},
		[]graph.Relationship{
			{Source: "API Gateway", Target: "Redis", Kind: graph.RelCalls, Label: "sessions"},
			{Source: "Auth Service", Target: "PostgreSQL", Kind: graph.RelStores},
			{Source: "API Gateway", Target: "Auth Service", Kind: graph.RelCalls, Label: "authenticate"},
		},
	)

	resA := Synthesize(a)
	resB := Synthesize(b)
	assert.Equal(t, resA.PlantUML, resB.PlantUML)
	assert.Equal(t, resA.DrawioXML, resB.DrawioXML)
}

func TestSynthesizeCountsAndContent(t *testing.T) {
	res := Synthesize(sampleGraph())

	assert.Equal(t, 4, res.ComponentCount)
	assert.Equal(t, 3, res.RelationshipCount)
	assert.False(t, res.UsedFallbackPlant)
	assert.False(t, res.UsedFallbackDrawio)

	assert.True(t, strings.HasPrefix(res.PlantUML, "@startuml"))
	assert.Contains(t, res.PlantUML, `database "PostgreSQL" as postgresql <<PostgreSQL>>`)
	assert.Contains(t, res.PlantUML, `component "API Gateway" as api_gateway <<Nginx>>`)
	assert.Contains(t, res.PlantUML, "api_gateway --> auth_service : authenticate")
	// unlabeled edges fall back to the relationship kind
	assert.Contains(t, res.PlantUML, "auth_service --> postgresql : stores")

	require.True(t, ValidateDrawio(res.DrawioXML))
	assert.Contains(t, res.DrawioXML, `value="API Gateway"`)
	assert.Contains(t, res.DrawioXML, "shape=cylinder3")
}

func TestSynthesizeEmptyGraphUsesFallback(t *testing.T) {
	res := Synthesize(graph.Graph{})

	assert.Equal(t, 0, res.ComponentCount)
	assert.Equal(t, 0, res.RelationshipCount)
	assert.True(t, ValidatePlantUML(res.PlantUML))
	assert.True(t, ValidateDrawio(res.DrawioXML))
	assert.Contains(t, res.PlantUML, "No architecture detected yet")
}

func TestValidatePlantUML(t *testing.T) {
	assert.True(t, ValidatePlantUML("@startuml\ncomponent a\n@enduml"))
	assert.False(t, ValidatePlantUML(""))
	assert.False(t, ValidatePlantUML("component a"))
	assert.False(t, ValidatePlantUML("@enduml\n@startuml"))
	assert.False(t, ValidatePlantUML("@startuml\ncomponent a"))
}

func TestValidateDrawio(t *testing.T) {
	assert.True(t, ValidateDrawio(FallbackDrawio()))
	assert.False(t, ValidateDrawio("<mxfile><unclosed"))
	assert.False(t, ValidateDrawio("not xml at all"))
}

func TestAlias(t *testing.T) {
	assert.Equal(t, "api_gateway", Alias("API Gateway"))
	assert.Equal(t, "c_3rd_party", Alias("3rd Party"))
	assert.Equal(t, "component", Alias("   "))
}

func TestDrawioEdgesRequireKnownEndpoints(t *testing.T) {
	// a relationship whose endpoint was never materialized is skipped
	g := graph.Graph{
		Entities:      []graph.Entity{{Name: "API", Kind: graph.KindGateway}},
		Relationships: []graph.Relationship{{Source: "API", Target: "Ghost", Kind: graph.RelCalls}},
	}
	doc := RenderDrawio(g)
	require.True(t, ValidateDrawio(doc))
	assert.NotContains(t, doc, `edge="1"`)
}

func TestAliasCollisionsGetSuffixed(t *testing.T) {
	var g graph.Graph
	g.Merge(
		[]graph.Entity{
			{Name: "api gateway", Kind: graph.KindGateway},
			{Name: "api-gateway", Kind: graph.KindService},
		},
		[]graph.Relationship{
			{Source: "api-gateway", Target: "api gateway", Kind: graph.RelCalls},
		},
	)

	code := RenderPlantUML(g)
	require.True(t, ValidatePlantUML(code))

	// both entities sanitize to api_gateway; the later one gets a suffix
	// and the edge references the suffixed identifier
	assert.Equal(t, 1, strings.Count(code, "as api_gateway\n"))
	assert.Contains(t, code, "as api_gateway_2")
	assert.Contains(t, code, "api_gateway_2 --> api_gateway : calls")
}
