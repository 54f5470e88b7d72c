// Package graph models the relationship graph extracted from
// genealogical records: people linked to partners, children, places
// and events, each link carrying the chunk it was read from.
package graph

import (
	"time"

	"github.com/google/uuid"
)

// EntityKind classifies graph nodes.
type EntityKind string

const (
	EntityPerson EntityKind = "person"
	EntityPlace  EntityKind = "place"
	EntityEvent  EntityKind = "event"
)

// EdgeKind classifies relationships between entities.
type EdgeKind string

const (
	EdgeParentOf   EdgeKind = "parent-of"
	EdgePartnerOf  EdgeKind = "partner-of"
	EdgeSiblingOf  EdgeKind = "sibling-of"
	EdgeLocatedAt  EdgeKind = "located-at"
	EdgeOccurredAt EdgeKind = "occurred-at"
)

// symmetric edge kinds are stored once and traversed both ways.
func (k EdgeKind) Symmetric() bool {
	return k == EdgePartnerOf || k == EdgeSiblingOf
}

// Entity is a disambiguated person, place or event. Name is the
// display form; the anchor code distinguishes same-named people
// (every "Jan Jansen" in a register keeps a distinct entity per
// genealogical code).
type Entity struct {
	ID         string
	Name       string
	Kind       EntityKind
	AnchorCode string
	DocumentID string
	CreatedAt  time.Time
}

// NewPerson creates a person entity with a fresh identifier. Identity
// is the id, not the name: two people sharing a name stay distinct
// entities as long as their anchor codes differ.
func NewPerson(name, anchorCode, documentID string) *Entity {
	return &Entity{
		ID:         uuid.NewString(),
		Name:       name,
		Kind:       EntityPerson,
		AnchorCode: anchorCode,
		DocumentID: documentID,
		CreatedAt:  time.Now().UTC(),
	}
}

// Edge links two entities with provenance: the chunk the relationship
// was read from.
type Edge struct {
	ID      string
	From    string
	To      string
	Kind    EdgeKind
	ChunkID string
}

// NewEdge creates an edge with a fresh identifier.
func NewEdge(from, to string, kind EdgeKind, chunkID string) *Edge {
	return &Edge{
		ID:      uuid.NewString(),
		From:    from,
		To:      to,
		Kind:    kind,
		ChunkID: chunkID,
	}
}
