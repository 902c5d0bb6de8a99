// Package diagram renders flow graphs as Mermaid flowcharts for
// documentation and debugging. The walk is wiring-only; no flow is
// executed.
package diagram

import (
	"fmt"
	"sort"
	"strings"

	"github.com/drmaniak/discovery-dojo/pkg/flow"
)

// starter is any node that exposes an entry point into a sub-graph,
// i.e. a nested flow.
type starter interface {
	Start() flow.Node
}

// Mermaid walks the graph reachable from start and renders it as a
// Mermaid flowchart. Nested flows are rendered as subgraphs; cycles
// are rendered as back-edges.
func Mermaid(title string, start flow.Node) string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	if title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", title)
	}

	w := &walker{ids: map[flow.Node]string{}}
	w.walk(start)

	for _, line := range w.defs {
		b.WriteString("    " + line + "\n")
	}
	for _, line := range w.edges {
		b.WriteString("    " + line + "\n")
	}
	return b.String()
}

type walker struct {
	ids   map[flow.Node]string
	defs  []string
	edges []string
}

// id assigns a stable identifier on first sight and emits the node
// definition.
func (w *walker) id(n flow.Node) (string, bool) {
	if id, ok := w.ids[n]; ok {
		return id, true
	}
	id := fmt.Sprintf("n%d", len(w.ids))
	w.ids[n] = id
	w.defs = append(w.defs, nodeDef(id, n))
	return id, false
}

func (w *walker) walk(n flow.Node) string {
	id, seen := w.id(n)
	if seen {
		return id
	}

	// Expand a nested flow's own graph before following its outer edges.
	if sub, ok := n.(starter); ok {
		if inner := sub.Start(); inner != nil {
			innerID := w.walk(inner)
			w.edges = append(w.edges, fmt.Sprintf("%s -.-> %s", id, innerID))
		}
	}

	succ := n.Successors()
	actions := make([]string, 0, len(succ))
	for action := range succ {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	for _, action := range actions {
		nextID := w.walk(succ[action])
		if action == flow.DefaultAction {
			w.edges = append(w.edges, fmt.Sprintf("%s --> %s", id, nextID))
		} else {
			w.edges = append(w.edges, fmt.Sprintf("%s -->|%s| %s", id, escape(action), nextID))
		}
	}
	return id
}

// nodeDef picks a shape by node kind: nested flows get the subroutine
// shape, plain nodes a rectangle.
func nodeDef(id string, n flow.Node) string {
	label := escape(n.Name())
	if _, ok := n.(starter); ok {
		return fmt.Sprintf("%s[[%q]]", id, label)
	}
	return fmt.Sprintf("%s[%q]", id, label)
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	return strings.ReplaceAll(s, "|", "/")
}
