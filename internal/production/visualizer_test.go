// Tests for ExportDOT ownership edges and active-state highlighting.
package production

import (
	"strings"
	"testing"
)

func TestExportDOT(t *testing.T) {
	dot := ExportDOT(testSnapshot())

	if !strings.HasPrefix(dot, "digraph Robot {") {
		t.Error("Missing DOT header")
	}
	for _, res := range []string{"drivetrain", "shooter", "intake", "climber"} {
		if !strings.Contains(dot, `"res:`+res+`" [shape=ellipse`) {
			t.Errorf("Missing resource node %s", res)
		}
	}
	if !strings.Contains(dot, `"task:pickup" -> "res:drivetrain" [label="owns"]`) {
		t.Error("Missing ownership edge")
	}
	if strings.Contains(dot, `-> "res:shooter"`) {
		t.Error("Unowned resource has an edge")
	}
	if !strings.Contains(dot, `"task:pickup" [label="pickup\nDRIVE_TO_NOTE" style=filled fillcolor=lightgreen]`) {
		t.Errorf("Missing active task highlight:\n%s", dot)
	}
	if !strings.Contains(dot, `"task:score" [label="score\n(failed)"]`) {
		t.Errorf("Missing inactive task outcome:\n%s", dot)
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("Missing closing brace")
	}
}

func TestExportDOT_Empty(t *testing.T) {
	dot := ExportDOT(Snapshot{})
	if strings.Contains(dot, "->") || strings.Contains(dot, "fillcolor") {
		t.Errorf("unexpected content for empty snapshot:\n%s", dot)
	}
}
