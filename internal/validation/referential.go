package validation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// Relationship declares a parent/child foreign-key relationship
type Relationship struct {
	ChildEntity string `json:"child_entity"`
	ForeignKey  string `json:"foreign_key"`
	ParentKey   string `json:"parent_key"`
}

// EntityLookup resolves an entity record by key from an external store.
// A nil record with a nil error means the entity does not exist.
type EntityLookup func(ctx context.Context, key interface{}) (map[string]interface{}, error)

// ReferentialValidator checks foreign-key integrity against pluggable
// entity stores and detects circular references in entity graphs.
type ReferentialValidator struct {
	logger        *zap.Logger
	mu            sync.RWMutex
	relationships map[string][]Relationship
	stores        map[string]EntityLookup
}

// NewReferentialValidator creates a referential integrity validator
func NewReferentialValidator(logger *zap.Logger) *ReferentialValidator {
	return &ReferentialValidator{
		logger:        logger,
		relationships: make(map[string][]Relationship),
		stores:        make(map[string]EntityLookup),
	}
}

// RegisterRelationship declares that records of rel.ChildEntity reference
// parentEntity through rel.ForeignKey
func (v *ReferentialValidator) RegisterRelationship(parentEntity string, rel Relationship) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.relationships[parentEntity] = append(v.relationships[parentEntity], rel)
	v.logger.Info("Registered relationship",
		zap.String("parent", parentEntity),
		zap.String("child", rel.ChildEntity),
		zap.String("foreign_key", rel.ForeignKey))
}

// RegisterEntityStore registers the lookup function for an entity name
func (v *ReferentialValidator) RegisterEntityStore(entityName string, lookup EntityLookup) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stores[entityName] = lookup
}

// ValidateForeignKey resolves one key against the parent entity's store
func (v *ReferentialValidator) ValidateForeignKey(ctx context.Context, parentEntity string, key interface{}) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	lookup, exists := v.stores[parentEntity]
	v.mu.RUnlock()

	if !exists {
		result.AddError(fmt.Sprintf("no entity store registered for: %s", parentEntity))
		return result
	}

	record, err := lookup(ctx, key)
	if err != nil {
		result.AddError(fmt.Sprintf("lookup failed for %s key %v: %v", parentEntity, key, err))
		return result
	}
	if record == nil {
		result.AddError(fmt.Sprintf("foreign key violation: %s with key %v does not exist", parentEntity, key))
	}

	return result
}

// ValidateEntityRelationships evaluates every registered relationship in
// which entityName participates as the child, resolving the record's
// foreign keys against the corresponding parent stores.
func (v *ReferentialValidator) ValidateEntityRelationships(ctx context.Context, entityName string, record map[string]interface{}) *models.ValidationResult {
	result := models.NewValidationResult()

	v.mu.RLock()
	type binding struct {
		parent string
		rel    Relationship
	}
	var bindings []binding
	for parent, rels := range v.relationships {
		for _, rel := range rels {
			if rel.ChildEntity == entityName {
				bindings = append(bindings, binding{parent: parent, rel: rel})
			}
		}
	}
	v.mu.RUnlock()

	for _, b := range bindings {
		key, exists := record[b.rel.ForeignKey]
		if !exists || key == nil {
			result.AddWarning(fmt.Sprintf("field '%s': foreign key to %s is not set", b.rel.ForeignKey, b.parent))
			continue
		}
		result.Merge(v.ValidateForeignKey(ctx, b.parent, key))
	}

	result.SetMetadata("entity_name", entityName)
	result.SetMetadata("relationships_checked", len(bindings))

	return result
}

// ValidateCircularReferences detects cycles in an adjacency-list entity
// graph using a depth-first search with an explicit recursion stack. Every
// node participating in a cycle is reported.
func (v *ReferentialValidator) ValidateCircularReferences(graph map[string][]string) *models.ValidationResult {
	result := models.NewValidationResult()

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	inCycle := make(map[string]bool)

	var visit func(node string, stack []string)
	visit = func(node string, stack []string) {
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)

		for _, next := range graph[node] {
			if onStack[next] {
				// Back edge: everything from next to the top of the stack
				// is part of the cycle.
				marking := false
				for _, member := range stack {
					if member == next {
						marking = true
					}
					if marking {
						inCycle[member] = true
					}
				}
				continue
			}
			if !visited[next] {
				visit(next, stack)
			}
		}

		onStack[node] = false
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	for _, node := range nodes {
		if !visited[node] {
			visit(node, nil)
		}
	}

	cycleNodes := make([]string, 0, len(inCycle))
	for node := range inCycle {
		cycleNodes = append(cycleNodes, node)
	}
	sort.Strings(cycleNodes)

	for _, node := range cycleNodes {
		result.AddError(fmt.Sprintf("circular reference detected involving entity '%s'", node))
	}

	return result
}
