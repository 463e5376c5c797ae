package diagram

import "archflow/graph"

// Result carries both diagram renditions of one graph snapshot.
type Result struct {
	PlantUML           string
	DrawioXML          string
	ComponentCount     int
	RelationshipCount  int
	UsedFallbackPlant  bool
	UsedFallbackDrawio bool
}

// Synthesize renders the graph into both formats and self-validates each
// one. A rendition that fails validation is replaced by the empty-graph
// fallback, so the result is always structurally valid.
func Synthesize(g graph.Graph) Result {
	res := Result{
		PlantUML:          RenderPlantUML(g),
		DrawioXML:         RenderDrawio(g),
		ComponentCount:    len(g.Entities),
		RelationshipCount: len(g.Relationships),
	}

	if !ValidatePlantUML(res.PlantUML) {
		res.PlantUML = FallbackPlantUML()
		res.UsedFallbackPlant = true
	}
	if !ValidateDrawio(res.DrawioXML) {
		res.DrawioXML = FallbackDrawio()
		res.UsedFallbackDrawio = true
	}
	return res
}
