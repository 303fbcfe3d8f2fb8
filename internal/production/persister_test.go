// Tests for Recorder YAML round-trip and error paths.
package production

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
)

func testSnapshot() Snapshot {
	return Snapshot{
		Name: "match-1",
		Time: time.Date(2024, time.April, 6, 9, 0, 3, 0, time.UTC),
		Tick: 150,
		Owners: map[primitives.ResourceID]string{
			primitives.Drivetrain: "pickup",
			primitives.Intake:     "pickup",
		},
		Tasks: []core.TaskStatus{
			{
				Name:       "pickup",
				Owner:      "pickup",
				Active:     true,
				State:      "DRIVE_TO_NOTE",
				Activation: "0f8fad5b-d9cb-469f-a165-70867728950e",
				Resources:  []primitives.ResourceID{primitives.Drivetrain, primitives.Intake, primitives.Shooter},
			},
			{
				Name:        "score",
				Owner:       "score",
				LastOutcome: primitives.Failed,
				LastError:   "no game piece",
			},
		},
	}
}

func TestRecorder_RoundTrip(t *testing.T) {
	r, err := NewRecorder(filepath.Join(t.TempDir(), "status"))
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	snap := testSnapshot()
	path, err := r.Save(context.Background(), snap)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Base(path) != "match-1.yaml" {
		t.Errorf("path = %s", path)
	}

	loaded, err := r.Load(context.Background(), "match-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.Time.Equal(snap.Time) {
		t.Errorf("Time = %v, want %v", loaded.Time, snap.Time)
	}
	loaded.Time = snap.Time
	if !reflect.DeepEqual(loaded, snap) {
		t.Errorf("Snapshot mismatch:\n got %+v\nwant %+v", loaded, snap)
	}

	task, ok := loaded.Task("score")
	if !ok || task.LastOutcome != primitives.Failed {
		t.Errorf("Task(score) = %+v, %v", task, ok)
	}
}

func TestRecorder_LoadNonExistent(t *testing.T) {
	r, err := NewRecorder(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Load(context.Background(), "missing")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestRecorder_RejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	r, err := NewRecorder(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"", "..", "a/b"} {
		snap := testSnapshot()
		snap.Name = name
		if _, err := r.Save(context.Background(), snap); err == nil {
			t.Errorf("Save(%q) succeeded", name)
		}
	}

	bad := "owners:\n  arm: auto\n"
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Load(context.Background(), "bad"); !errors.Is(err, core.ErrUnknownResource) {
		t.Errorf("expected ErrUnknownResource, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Save(ctx, testSnapshot()); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
