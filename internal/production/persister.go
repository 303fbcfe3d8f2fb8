package production

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
)

// Snapshot is the robot's task and ownership state at one instant.
type Snapshot struct {
	Name   string                          `yaml:"name"`
	Time   time.Time                       `yaml:"time"`
	Tick   uint64                          `yaml:"tick"`
	Owners map[primitives.ResourceID]string `yaml:"owners"`
	Tasks  []core.TaskStatus               `yaml:"tasks"`
}

// Task returns the status of the named task.
func (s Snapshot) Task(name string) (core.TaskStatus, bool) {
	for _, t := range s.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return core.TaskStatus{}, false
}

// Recorder writes snapshots as YAML files in a directory, one file per name.
type Recorder struct {
	dir string
}

// NewRecorder creates a Recorder, ensuring the directory exists.
func NewRecorder(dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Recorder{dir: dir}, nil
}

// Dir returns the directory snapshots are written to.
func (r *Recorder) Dir() string { return r.dir }

// Save writes snapshot and returns the file path.
func (r *Recorder) Save(ctx context.Context, snapshot Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := checkName(snapshot.Name); err != nil {
		return "", err
	}
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("yaml marshal: %w", err)
	}

	fn := filepath.Join(r.dir, snapshot.Name+".yaml")
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", fn, err)
	}
	return fn, nil
}

// Load reads the snapshot saved under name.
func (r *Recorder) Load(ctx context.Context, name string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if err := checkName(name); err != nil {
		return Snapshot{}, err
	}
	fn := filepath.Join(r.dir, name+".yaml")
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("snapshot %q: %w", name, os.ErrNotExist)
		}
		return Snapshot{}, fmt.Errorf("read %s: %w", fn, err)
	}

	var snapshot Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("yaml unmarshal: %w", err)
	}
	snapshot.Name = name
	for id := range snapshot.Owners {
		if !id.Valid() {
			return Snapshot{}, fmt.Errorf("snapshot %q: %w: %q", name, core.ErrUnknownResource, id)
		}
	}
	return snapshot, nil
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}
