package graph

// Delta is the structured change set the model returns for a modification
// request. Replace swaps the whole graph for the added set instead of
// merging into the current one.
type Delta struct {
	Replace             bool           `json:"replace"`
	AddEntities         []Entity       `json:"add_entities"`
	AddRelationships    []Relationship `json:"add_relationships"`
	RemoveEntities      []string       `json:"remove_entities"`
	RemoveRelationships []Key          `json:"remove_relationships"`
}

// Empty reports whether applying the delta could not change any graph.
func (d Delta) Empty() bool {
	return !d.Replace &&
		len(d.AddEntities) == 0 &&
		len(d.AddRelationships) == 0 &&
		len(d.RemoveEntities) == 0 &&
		len(d.RemoveRelationships) == 0
}

// Apply returns a new graph with the delta applied; the receiver's graph is
// never mutated. Removals run before additions so a "replace X with Y"
// style delta behaves predictably.
func (d Delta) Apply(g Graph) Graph {
	if d.Replace {
		out := Graph{}
		out.Merge(d.AddEntities, d.AddRelationships)
		return out
	}

	out := g.Clone()
	out.Remove(d.RemoveEntities, d.RemoveRelationships)
	out.Merge(d.AddEntities, d.AddRelationships)
	return out
}
