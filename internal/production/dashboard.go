package production

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/comalice/autotask/internal/core"
)

// Dashboard keeps numbered text lines for the driver station plus the
// latest status of every task it has heard from.
type Dashboard struct {
	mu     sync.Mutex
	lines  map[int]string
	latest map[string]core.Status
}

func NewDashboard() *Dashboard {
	return &Dashboard{
		lines:  make(map[int]string),
		latest: make(map[string]core.Status),
	}
}

// Printf sets line n, replacing what was there.
func (d *Dashboard) Printf(line int, format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines[line] = fmt.Sprintf(format, args...)
}

// Clear removes line n.
func (d *Dashboard) Clear(line int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lines, line)
}

// Line returns the text of line n.
func (d *Dashboard) Line(line int) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines[line]
}

// Publish records status as the latest for its task.
func (d *Dashboard) Publish(status core.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latest[status.Task] = status
}

// Latest returns the most recent status published for task.
func (d *Dashboard) Latest(task string) (core.Status, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.latest[task]
	return s, ok
}

// Render writes the numbered lines in order, then one line per task.
func (d *Dashboard) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	nums := make([]int, 0, len(d.lines))
	for n := range d.lines {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		fmt.Fprintf(&b, "%2d: %s\n", n, d.lines[n])
	}

	tasks := make([]string, 0, len(d.latest))
	for name := range d.latest {
		tasks = append(tasks, name)
	}
	sort.Strings(tasks)
	for _, name := range tasks {
		s := d.latest[name]
		fmt.Fprintf(&b, "%s: %s", name, s.To)
		if s.To == core.InactiveState {
			fmt.Fprintf(&b, " (%s)", s.Outcome)
		}
		if s.Error != "" {
			fmt.Fprintf(&b, " error=%q", s.Error)
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}
