// SPDX-License-Identifier: MPL-2.0

// Package dag orders build stages. Nodes are stage names; an edge from a
// producer to a consumer means the consumer copies the producer's published
// artifact and therefore cannot start until the producer has finished.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrCycle is the sentinel error wrapped by CycleError.
var ErrCycle = errors.New("stage dependency cycle")

type (
	// CycleError indicates that the stage graph cannot be ordered.
	CycleError struct {
		// Cycle lists the stages still blocked after ordering, in insertion
		// order. It contains at least the stages forming the cycle.
		Cycle []string
	}

	// Graph is a directed producer/consumer graph.
	Graph struct {
		// consumers maps a producer to the stages that read its output.
		consumers map[string][]string
		// producers is the reverse of consumers.
		producers map[string][]string
		// nodes keeps insertion order for deterministic output.
		nodes   []string
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("stage dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// Unwrap returns ErrCycle for errors.Is() compatibility.
func (e *CycleError) Unwrap() error { return ErrCycle }

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		consumers: make(map[string][]string),
		producers: make(map[string][]string),
		nodeSet:   make(map[string]bool),
	}
}

// AddNode adds a stage. Adding an existing stage is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge records that consumer reads the output of producer.
// Both stages are added if missing; duplicate edges are ignored.
func (g *Graph) AddEdge(producer, consumer string) {
	g.AddNode(producer)
	g.AddNode(consumer)
	if slices.Contains(g.consumers[producer], consumer) {
		return
	}
	g.consumers[producer] = append(g.consumers[producer], consumer)
	g.producers[consumer] = append(g.producers[consumer], producer)
}

// Has reports whether name is a stage of the graph.
func (g *Graph) Has(name string) bool { return g.nodeSet[name] }

// Nodes returns all stages in insertion order.
func (g *Graph) Nodes() []string { return slices.Clone(g.nodes) }

// Producers returns the stages whose outputs name consumes.
func (g *Graph) Producers(name string) []string { return slices.Clone(g.producers[name]) }

// Consumers returns the stages that consume the output of name.
func (g *Graph) Consumers(name string) []string { return slices.Clone(g.consumers[name]) }

// TopologicalSort returns a valid execution order using Kahn's algorithm.
// Stages at the same level keep their insertion order.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = len(g.producers[node])
	}

	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, next := range g.consumers[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var blocked []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				blocked = append(blocked, node)
			}
		}
		return nil, &CycleError{Cycle: blocked}
	}

	return result, nil
}
