package monitoring

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// ImpactedNode is one downstream node reached by a quality impact analysis
type ImpactedNode struct {
	Node     *models.LineageNode `json:"node"`
	Severity models.Severity     `json:"severity"`
}

// ImpactAnalysis is the outcome of propagating quality issues through the
// lineage graph
type ImpactAnalysis struct {
	SourceNodeID  string              `json:"source_node_id"`
	MetricTypes   []models.MetricType `json:"metric_types"`
	AffectedNodes []ImpactedNode      `json:"affected_nodes"`
	Summary       string              `json:"summary"`
}

// LineageTracker maintains the data lineage graph and answers traversal and
// impact queries over it.
type LineageTracker struct {
	logger *zap.Logger
	mu     sync.RWMutex
	nodes  map[string]*models.LineageNode
	edges  []models.LineageEdge
}

// NewLineageTracker creates an empty lineage graph
func NewLineageTracker(logger *zap.Logger) *LineageTracker {
	return &LineageTracker{
		logger: logger,
		nodes:  make(map[string]*models.LineageNode),
	}
}

// AddNode registers a node. Duplicate ids are rejected.
func (t *LineageTracker) AddNode(node *models.LineageNode) error {
	if node == nil || node.ID == "" {
		return fmt.Errorf("node must have an id")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.nodes[node.ID]; exists {
		return fmt.Errorf("node already exists: %s", node.ID)
	}
	stored := *node
	stored.UpstreamIDs = append([]string{}, node.UpstreamIDs...)
	stored.DownstreamIDs = append([]string{}, node.DownstreamIDs...)
	t.nodes[node.ID] = &stored
	return nil
}

// AddEdge connects two registered nodes and keeps their upstream and
// downstream lists in sync with the edge list
func (t *LineageTracker) AddEdge(edge models.LineageEdge) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	source, exists := t.nodes[edge.SourceID]
	if !exists {
		return fmt.Errorf("source node not found: %s", edge.SourceID)
	}
	target, exists := t.nodes[edge.TargetID]
	if !exists {
		return fmt.Errorf("target node not found: %s", edge.TargetID)
	}
	if edge.SourceID == edge.TargetID {
		return fmt.Errorf("node cannot feed itself: %s", edge.SourceID)
	}

	for _, existing := range t.edges {
		if existing.SourceID == edge.SourceID && existing.TargetID == edge.TargetID {
			return fmt.Errorf("edge already exists: %s -> %s", edge.SourceID, edge.TargetID)
		}
	}

	t.edges = append(t.edges, edge)
	source.DownstreamIDs = append(source.DownstreamIDs, edge.TargetID)
	target.UpstreamIDs = append(target.UpstreamIDs, edge.SourceID)
	return nil
}

// GetNode returns a copy of the node with the given id
func (t *LineageTracker) GetNode(id string) (*models.LineageNode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, exists := t.nodes[id]
	if !exists {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	copied := *node
	return &copied, nil
}

// Nodes returns every node id in the graph, sorted
func (t *LineageTracker) Nodes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TraceUpstream returns every transitive ancestor of a node. Traversal is
// cycle safe; the start node is not included.
func (t *LineageTracker) TraceUpstream(id string) ([]*models.LineageNode, error) {
	return t.trace(id, func(n *models.LineageNode) []string { return n.UpstreamIDs })
}

// TraceDownstream returns every transitive descendant of a node
func (t *LineageTracker) TraceDownstream(id string) ([]*models.LineageNode, error) {
	return t.trace(id, func(n *models.LineageNode) []string { return n.DownstreamIDs })
}

func (t *LineageTracker) trace(id string, next func(*models.LineageNode) []string) ([]*models.LineageNode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	start, exists := t.nodes[id]
	if !exists {
		return nil, fmt.Errorf("node not found: %s", id)
	}

	visited := map[string]bool{id: true}
	var result []*models.LineageNode
	stack := append([]string{}, next(start)...)

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current] {
			continue
		}
		visited[current] = true

		node, ok := t.nodes[current]
		if !ok {
			continue
		}
		copied := *node
		result = append(result, &copied)
		stack = append(stack, next(node)...)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// AnalyzeQualityImpact propagates a set of quality issues at a node to
// everything downstream of it. Severity follows the worst dimension in the
// set: accuracy, completeness and integrity issues corrupt derived data
// directly and rate high; consistency and timeliness rate medium; the rest
// low.
func (t *LineageTracker) AnalyzeQualityImpact(nodeID string, metricTypes []models.MetricType) (*ImpactAnalysis, error) {
	if len(metricTypes) == 0 {
		return nil, fmt.Errorf("at least one metric type is required")
	}

	downstream, err := t.TraceDownstream(nodeID)
	if err != nil {
		return nil, err
	}

	severity := models.SeverityLow
	names := make([]string, 0, len(metricTypes))
	for _, metricType := range metricTypes {
		names = append(names, string(metricType))
		if candidate := impactSeverity(metricType); severityRank(candidate) > severityRank(severity) {
			severity = candidate
		}
	}

	affected := make([]ImpactedNode, 0, len(downstream))
	for _, node := range downstream {
		affected = append(affected, ImpactedNode{Node: node, Severity: severity})
	}

	analysis := &ImpactAnalysis{
		SourceNodeID:  nodeID,
		MetricTypes:   metricTypes,
		AffectedNodes: affected,
		Summary: fmt.Sprintf("%s issues at %s affect %d downstream nodes at %s severity",
			strings.Join(names, ", "), nodeID, len(affected), severity),
	}

	t.logger.Info("Analyzed lineage impact",
		zap.String("node", nodeID),
		zap.Strings("metric_types", names),
		zap.Int("affected", len(affected)))

	return analysis, nil
}

func impactSeverity(metricType models.MetricType) models.Severity {
	switch metricType {
	case models.MetricAccuracy, models.MetricCompleteness, models.MetricIntegrity:
		return models.SeverityHigh
	case models.MetricConsistency, models.MetricTimeliness:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func severityRank(severity models.Severity) int {
	switch severity {
	case models.SeverityCritical:
		return 3
	case models.SeverityHigh:
		return 2
	case models.SeverityMedium:
		return 1
	default:
		return 0
	}
}
