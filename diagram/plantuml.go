// Package diagram deterministically renders an architecture graph into two
// diagram description formats: PlantUML component-diagram text and Draw.io
// (mxGraph) XML. The same graph always produces byte-identical output.
package diagram

import (
	"fmt"
	"strings"

	"archflow/graph"
)

// RenderPlantUML emits a component diagram. Entities are emitted in
// canonical order with per-kind keywords and the technology as a
// stereotype; relationships follow as arrows with optional labels.
func RenderPlantUML(g graph.Graph) string {
	entities := g.SortedEntities()
	relationships := g.SortedRelationships()

	if len(entities) == 0 {
		return FallbackPlantUML()
	}

	// distinct names can sanitize to the same identifier ("api-gateway"
	// vs "api gateway"); suffix later entities so every declaration stays
	// unique. Canonical entity order keeps the assignment deterministic.
	aliases := make(map[string]string, len(entities))
	taken := make(map[string]bool, len(entities))
	for _, e := range entities {
		alias := Alias(e.Name)
		for n := 2; taken[alias]; n++ {
			alias = fmt.Sprintf("%s_%d", Alias(e.Name), n)
		}
		taken[alias] = true
		aliases[graph.NormalizeName(e.Name)] = alias
	}
	aliasOf := func(name string) string {
		if alias, ok := aliases[graph.NormalizeName(name)]; ok {
			return alias
		}
		return Alias(name)
	}

	var b strings.Builder
	b.WriteString("@startuml\n")
	b.WriteString("skinparam componentStyle rectangle\n\n")

	for _, e := range entities {
		keyword := plantumlKeyword(e.Kind)
		stereotype := ""
		if e.Technology != "" {
			stereotype = fmt.Sprintf(" <<%s>>", e.Technology)
		}
		fmt.Fprintf(&b, "%s \"%s\" as %s%s\n", keyword, e.Name, aliasOf(e.Name), stereotype)
	}

	if len(relationships) > 0 {
		b.WriteString("\n")
	}
	for _, r := range relationships {
		label := r.Label
		if label == "" {
			label = r.Kind
		}
		fmt.Fprintf(&b, "%s --> %s : %s\n", aliasOf(r.Source), aliasOf(r.Target), label)
	}

	b.WriteString("@enduml\n")
	return b.String()
}

// FallbackPlantUML is the minimal well-formed diagram substituted for empty
// graphs and for output that fails self-validation.
func FallbackPlantUML() string {
	return "@startuml\nskinparam componentStyle rectangle\n\nnote \"No architecture detected yet\" as empty\n@enduml\n"
}

// ValidatePlantUML is a structural well-formedness check, not a full parse:
// non-empty, delimited, and with the start tag before the end tag.
func ValidatePlantUML(code string) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return false
	}
	start := strings.Index(trimmed, "@startuml")
	end := strings.LastIndex(trimmed, "@enduml")
	return start == 0 && end > start && strings.HasSuffix(trimmed, "@enduml")
}

// Alias turns a display name into a PlantUML-safe identifier.
func Alias(name string) string {
	normalized := graph.NormalizeName(name)
	var b strings.Builder
	for _, r := range normalized {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "component"
	}
	alias := b.String()
	// identifiers must not start with a digit
	if alias[0] >= '0' && alias[0] <= '9' {
		return "c_" + alias
	}
	return alias
}

func plantumlKeyword(kind string) string {
	switch kind {
	case graph.KindDatabase:
		return "database"
	case graph.KindQueue:
		return "queue"
	case graph.KindExternal:
		return "cloud"
	default:
		return "component"
	}
}
