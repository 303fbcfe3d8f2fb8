package production

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/comalice/autotask/internal/primitives"
)

// ExportDOT generates Graphviz DOT source showing every resource, the task
// that owns it and the current state of each task. Active tasks are filled.
func ExportDOT(snapshot Snapshot) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph Robot {
  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)

	for _, id := range primitives.AllResources() {
		style := ""
		if _, owned := snapshot.Owners[id]; owned {
			style = ` style=filled fillcolor=orange`
		}
		fmt.Fprintf(&buf, "  %q [shape=ellipse%s];\n", "res:"+id.String(), style)
	}

	tasks := append(snapshot.Tasks[:0:0], snapshot.Tasks...)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	for _, t := range tasks {
		label := t.Name
		style := ""
		if t.Active {
			label = fmt.Sprintf("%s\\n%s", t.Name, t.State)
			style = ` style=filled fillcolor=lightgreen`
		} else if t.LastOutcome != primitives.Pending {
			label = fmt.Sprintf("%s\\n(%s)", t.Name, t.LastOutcome)
		}
		fmt.Fprintf(&buf, "  %q [label=\"%s\"%s];\n", "task:"+t.Owner, label, style)
	}

	ids := make([]primitives.ResourceID, 0, len(snapshot.Owners))
	for id := range snapshot.Owners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fmt.Fprintf(&buf, "  %q -> %q [label=\"owns\"];\n", "task:"+snapshot.Owners[id], "res:"+id.String())
	}

	buf.WriteString("}\n")
	return buf.String()
}
