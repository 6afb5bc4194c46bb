package nest

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// EntityType identifies a kind of indexable OWASP domain object.
type EntityType string

const (
	EntityChapter    EntityType = "chapter"
	EntityCommittee  EntityType = "committee"
	EntityProject    EntityType = "project"
	EntityEvent      EntityType = "event"
	EntityRepository EntityType = "repository"
	EntityUser       EntityType = "user"
	EntityIssue      EntityType = "issue"
	EntityRelease    EntityType = "release"
)

// EntityTypes lists all known entity types in stable order.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityChapter,
		EntityCommittee,
		EntityProject,
		EntityEvent,
		EntityRepository,
		EntityUser,
		EntityIssue,
		EntityRelease,
	}
}

// ParseEntityType validates and normalizes an entity type string.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case EntityChapter, EntityCommittee, EntityProject, EntityEvent,
		EntityRepository, EntityUser, EntityIssue, EntityRelease:
		return t, nil
	}
	return "", fmt.Errorf("unknown entity type: %q", s)
}

// Validate reports whether t is one of the known entity types.
func (t EntityType) Validate() error {
	_, err := ParseEntityType(string(t))
	return err
}

// Collection returns the engine collection name for the entity type.
func (t EntityType) Collection() string {
	if t == EntityRepository {
		return "repositories"
	}
	return string(t) + "s"
}

// EntityRef identifies one entity by (type, id). The retrieval layer does not
// own entity storage; it reads entity attributes through an Extractor.
type EntityRef struct {
	Type EntityType
	ID   uint64
}

// Key returns the stable string identity used across engines and caches,
// e.g. "project:42".
func (r EntityRef) Key() string {
	return string(r.Type) + ":" + strconv.FormatUint(r.ID, 10)
}

func (r EntityRef) String() string { return r.Key() }

// ParseEntityRef parses a "type:id" key back into an EntityRef.
func ParseEntityRef(key string) (EntityRef, error) {
	idx := strings.LastIndex(key, ":")
	if idx < 0 {
		return EntityRef{}, fmt.Errorf("invalid entity key: %q", key)
	}

	t, err := ParseEntityType(key[:idx])
	if err != nil {
		return EntityRef{}, err
	}

	id, err := strconv.ParseUint(key[idx+1:], 10, 64)
	if err != nil {
		return EntityRef{}, fmt.Errorf("invalid entity id in key %q: %w", key, err)
	}

	return EntityRef{Type: t, ID: id}, nil
}

// Extractor turns a source entity into the denormalized field map indexed by
// the search engine. One extractor is registered per entity type; index-field
// computations (leaders, top contributors, geo points) live inside it.
type Extractor func(entity any) (map[string]any, error)

// ExtractorRegistry maps entity types to their extractors.
//
// Thread-safe; registration happens at startup, lookups at ingest time.
type ExtractorRegistry struct {
	mu         sync.RWMutex
	extractors map[EntityType]Extractor
}

func NewExtractorRegistry() *ExtractorRegistry {
	return &ExtractorRegistry{
		extractors: make(map[EntityType]Extractor),
	}
}

// Register installs the extractor for an entity type, replacing any previous one.
func (r *ExtractorRegistry) Register(t EntityType, fn Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[t] = fn
}

// Extract runs the registered extractor for ref's type.
func (r *ExtractorRegistry) Extract(ref EntityRef, entity any) (map[string]any, error) {
	r.mu.RLock()
	fn, ok := r.extractors[ref.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no extractor registered for entity type %q", ref.Type)
	}

	doc, err := fn(entity)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", ref.Key(), err)
	}
	return doc, nil
}

// Types returns the registered entity types in sorted order.
func (r *ExtractorRegistry) Types() []EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]EntityType, 0, len(r.extractors))
	for t := range r.extractors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
