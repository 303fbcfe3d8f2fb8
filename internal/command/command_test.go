package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/autotask/testutil"
)

type queue struct {
	fns []func()
	err error
}

func (q *queue) Post(fn func()) error {
	if q.err != nil {
		return q.err
	}
	q.fns = append(q.fns, fn)
	return nil
}

func (q *queue) drain() {
	for _, fn := range q.fns {
		fn()
	}
	q.fns = nil
}

func TestChannelSource(t *testing.T) {
	ch := make(chan Command, 1)
	s := NewChannelSource(ch)
	ch <- Command{Name: "pickup"}
	assert.Equal(t, Command{Name: "pickup"}, <-s.Commands())
}

func TestDispatchRunsHandlerOnLoop(t *testing.T) {
	var calls []string
	q := &queue{}
	d := NewDispatcher(q, Table{
		"pickup": {
			Start:  func() { calls = append(calls, "start") },
			Cancel: func() { calls = append(calls, "cancel") },
		},
		"extend": {Start: func() { calls = append(calls, "extend") }},
	}, testutil.QuietLogger())

	assert.True(t, d.Dispatch(Command{Name: "pickup"}))
	assert.Empty(t, calls, "handler ran off the loop")
	assert.True(t, d.Dispatch(Command{Name: "pickup", Cancel: true}))
	assert.False(t, d.Dispatch(Command{Name: "extend", Cancel: true}), "no cancel handler")
	assert.False(t, d.Dispatch(Command{Name: "dance"}))

	q.drain()
	assert.Equal(t, []string{"start", "cancel"}, calls)
}

func TestDispatchPostFailure(t *testing.T) {
	q := &queue{err: errors.New("post queue full")}
	d := NewDispatcher(q, Table{"score": {Start: func() {}}}, testutil.QuietLogger())
	assert.False(t, d.Dispatch(Command{Name: "score"}))
}

func TestRunEndsWhenSourceCloses(t *testing.T) {
	ch := make(chan Command, 2)
	ch <- Command{Name: "climb"}
	close(ch)

	started := 0
	q := &queue{}
	d := NewDispatcher(q, Table{"climb": {Start: func() { started++ }}}, testutil.QuietLogger())
	require.NoError(t, d.Run(context.Background(), NewChannelSource(ch)))
	q.drain()
	assert.Equal(t, 1, started)
}

func TestRunEndsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDispatcher(&queue{}, nil, testutil.QuietLogger())
	err := d.Run(ctx, NewChannelSource(make(chan Command)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseStep(t *testing.T) {
	step, err := ParseStep("pickup@1.5s")
	require.NoError(t, err)
	assert.Equal(t, Step{At: 1500 * time.Millisecond, Command: Command{Name: "pickup"}}, step)

	step, err = ParseStep("-pickup@3s")
	require.NoError(t, err)
	assert.True(t, step.Command.Cancel)
	assert.Equal(t, "cancel pickup", step.Command.String())

	for _, bad := range []string{"pickup", "@1s", "-@1s", "pickup@soon", "pickup@-1s"} {
		_, err := ParseStep(bad)
		assert.Error(t, err, bad)
	}
}

func TestScriptSourceReplaysInOrder(t *testing.T) {
	s := NewScriptSource([]Step{
		{At: 20 * time.Millisecond, Command: Command{Name: "score"}},
		{At: 0, Command: Command{Name: "pickup"}},
	})

	var got []string
	timeout := time.After(time.Second)
	for done := false; !done; {
		select {
		case cmd, ok := <-s.Commands():
			if !ok {
				done = true
				break
			}
			got = append(got, cmd.Name)
		case <-timeout:
			t.Fatal("script did not finish")
		}
	}
	assert.Equal(t, []string{"pickup", "score"}, got)
}

func TestScriptSourceStop(t *testing.T) {
	s := NewScriptSource([]Step{{At: time.Hour, Command: Command{Name: "auto"}}})
	s.Stop()
	select {
	case _, ok := <-s.Commands():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Stop")
	}
}
