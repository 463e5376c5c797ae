// Package graph holds the canonical architecture graph accumulated for a
// conversation: components mentioned in chat and the relationships between
// them. Entity identity is the normalized name, relationship identity the
// ordered (source, target, kind) triple.
package graph

import (
	"sort"
	"strings"
)

// Entity kinds recognized by the extraction prompt. Anything else collapses
// to KindUnknown.
const (
	KindService  = "service"
	KindDatabase = "database"
	KindQueue    = "queue"
	KindGateway  = "gateway"
	KindCache    = "cache"
	KindExternal = "external"
	KindUnknown  = "unknown"
)

// Relationship kinds.
const (
	RelCalls     = "calls"
	RelStores    = "stores"
	RelPublishes = "publishes"
	RelDependsOn = "depends_on"
	RelUnknown   = "unknown"
)

type Entity struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Technology string `json:"technology,omitempty"`
}

type Relationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
	Label  string `json:"label,omitempty"`
}

// Key identifies a relationship independent of its label.
type Key struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"`
}

type Graph struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// NormalizeName lowercases a component name and collapses runs of
// whitespace, so "API  Gateway" and "api gateway" resolve to the same node.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func NormalizeKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindService:
		return KindService
	case KindDatabase:
		return KindDatabase
	case KindQueue:
		return KindQueue
	case KindGateway:
		return KindGateway
	case KindCache:
		return KindCache
	case KindExternal:
		return KindExternal
	default:
		return KindUnknown
	}
}

func NormalizeRelKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case RelCalls:
		return RelCalls
	case RelStores:
		return RelStores
	case RelPublishes:
		return RelPublishes
	case RelDependsOn:
		return RelDependsOn
	default:
		return RelUnknown
	}
}

func (r Relationship) key() Key {
	return Key{
		Source: NormalizeName(r.Source),
		Target: NormalizeName(r.Target),
		Kind:   NormalizeRelKind(r.Kind),
	}
}

func (g *Graph) findEntity(normalized string) int {
	for i := range g.Entities {
		if NormalizeName(g.Entities[i].Name) == normalized {
			return i
		}
	}
	return -1
}

func (g *Graph) hasRelationship(k Key) bool {
	for i := range g.Relationships {
		if g.Relationships[i].key() == k {
			return true
		}
	}
	return false
}

// Merge folds new extraction output into the graph. Merging is idempotent:
// an entity re-mentioned under the same normalized name stays a single node,
// and the earlier kind/technology win unless they were unknown/empty and the
// new extraction fills them in. Self-relationships are dropped; entities
// that appear only as relationship endpoints are materialized with an
// unknown kind.
func (g *Graph) Merge(entities []Entity, relationships []Relationship) {
	for _, e := range entities {
		g.mergeEntity(e)
	}

	for _, r := range relationships {
		src := NormalizeName(r.Source)
		dst := NormalizeName(r.Target)
		if src == "" || dst == "" || src == dst {
			continue
		}
		g.materialize(r.Source)
		g.materialize(r.Target)
		k := r.key()
		if g.hasRelationship(k) {
			continue
		}
		g.Relationships = append(g.Relationships, Relationship{
			Source: r.Source,
			Target: r.Target,
			Kind:   k.Kind,
			Label:  strings.TrimSpace(r.Label),
		})
	}
}

func (g *Graph) mergeEntity(e Entity) {
	normalized := NormalizeName(e.Name)
	if normalized == "" {
		return
	}
	kind := NormalizeKind(e.Kind)
	tech := strings.TrimSpace(e.Technology)

	i := g.findEntity(normalized)
	if i < 0 {
		g.Entities = append(g.Entities, Entity{
			Name:       strings.TrimSpace(e.Name),
			Kind:       kind,
			Technology: tech,
		})
		return
	}

	// fill in the blanks, never downgrade
	if g.Entities[i].Kind == KindUnknown && kind != KindUnknown {
		g.Entities[i].Kind = kind
	}
	if g.Entities[i].Technology == "" && tech != "" {
		g.Entities[i].Technology = tech
	}
}

func (g *Graph) materialize(name string) {
	if g.findEntity(NormalizeName(name)) >= 0 {
		return
	}
	g.mergeEntity(Entity{Name: name, Kind: KindUnknown})
}

// Remove deletes exact identity matches only; a name or triple that is not
// in the graph is a no-op. Removing an entity also drops its incident
// relationships.
func (g *Graph) Remove(entityNames []string, relationships []Key) {
	removed := make(map[string]bool, len(entityNames))
	for _, name := range entityNames {
		removed[NormalizeName(name)] = true
	}

	if len(removed) > 0 {
		kept := g.Entities[:0]
		for _, e := range g.Entities {
			if !removed[NormalizeName(e.Name)] {
				kept = append(kept, e)
			}
		}
		g.Entities = kept
	}

	drop := func(r Relationship) bool {
		k := r.key()
		if removed[k.Source] || removed[k.Target] {
			return true
		}
		for _, want := range relationships {
			if k.Source == NormalizeName(want.Source) &&
				k.Target == NormalizeName(want.Target) &&
				k.Kind == NormalizeRelKind(want.Kind) {
				return true
			}
		}
		return false
	}

	kept := g.Relationships[:0]
	for _, r := range g.Relationships {
		if !drop(r) {
			kept = append(kept, r)
		}
	}
	g.Relationships = kept
}

// Clone returns a deep copy, used by the modification path so a failed
// delta never touches the stored graph.
func (g Graph) Clone() Graph {
	out := Graph{
		Entities:      make([]Entity, len(g.Entities)),
		Relationships: make([]Relationship, len(g.Relationships)),
	}
	copy(out.Entities, g.Entities)
	copy(out.Relationships, g.Relationships)
	return out
}

// SortedEntities returns the entities in canonical order (lexicographic by
// normalized name). Diagram emission depends on this for byte-identical
// output regardless of insertion order.
func (g Graph) SortedEntities() []Entity {
	out := make([]Entity, len(g.Entities))
	copy(out, g.Entities)
	sort.Slice(out, func(i, j int) bool {
		return NormalizeName(out[i].Name) < NormalizeName(out[j].Name)
	})
	return out
}

// SortedRelationships returns the relationships ordered by
// (source, target, kind).
func (g Graph) SortedRelationships() []Relationship {
	out := make([]Relationship, len(g.Relationships))
	copy(out, g.Relationships)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].key(), out[j].key()
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Kind < b.Kind
	})
	return out
}
