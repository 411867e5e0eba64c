package tree

import (
	"fmt"
	"strings"
)

// RenderOutline renders a forest as a compact indented outline for direct
// display: one bullet per node, annotated with child counts and notes.
//
//	- Groceries (3 children)
//	    note: weekly run
//	  - Milk [completed]
func RenderOutline(nodes []*Node) string {
	var sb strings.Builder
	for _, n := range nodes {
		renderNode(&sb, n, 0)
	}
	return sb.String()
}

func renderNode(sb *strings.Builder, n *Node, indent int) {
	prefix := strings.Repeat("  ", indent)

	sb.WriteString(prefix)
	sb.WriteString("- ")
	sb.WriteString(n.Name)
	if n.ChildrenCount > 0 {
		fmt.Fprintf(sb, " (%d %s)", n.ChildrenCount, plural(n.ChildrenCount, "child", "children"))
	}
	if n.Completed {
		sb.WriteString(" [completed]")
	}
	sb.WriteByte('\n')

	if n.Note != "" {
		for _, line := range strings.Split(n.Note, "\n") {
			fmt.Fprintf(sb, "%s    note: %s\n", prefix, line)
		}
	}

	for _, c := range n.Children {
		renderNode(sb, c, indent+1)
	}
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
