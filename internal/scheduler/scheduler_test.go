package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houra-app/houra/internal/model"
	"github.com/houra-app/houra/internal/service/agent"
	"github.com/houra-app/houra/internal/testutil"
)

type fakeRunner struct {
	mu       sync.Mutex
	seen     []uuid.UUID
	failFor  uuid.UUID
	inFlight atomic.Int32
	peak     atomic.Int32
	gotObj   string
}

func (f *fakeRunner) RunAutonomous(_ context.Context, studentID uuid.UUID, in agent.AutonomousInput) (agent.AutonomousResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.seen = append(f.seen, studentID)
	f.gotObj = in.Objective
	f.mu.Unlock()

	if studentID == f.failFor {
		return agent.AutonomousResult{}, errors.New("proposer unavailable")
	}
	return agent.AutonomousResult{RunID: uuid.New(), Proposed: 2, AppliedSafe: 1}, nil
}

type fakeStudents struct {
	students []model.Student
	err      error
	gotLimit int
}

func (f *fakeStudents) ListActiveStudents(_ context.Context, limit int) ([]model.Student, error) {
	f.gotLimit = limit
	return f.students, f.err
}

func makeStudents(n int) []model.Student {
	out := make([]model.Student, n)
	for i := range out {
		out[i] = model.Student{ID: uuid.New(), Approved: true}
	}
	return out
}

func TestPass_RunsEveryStudentWithBoundedConcurrency(t *testing.T) {
	students := &fakeStudents{students: makeStudents(10)}
	runner := &fakeRunner{}
	s := New(Config{Enabled: true, Concurrency: 3, Objective: "keep things tidy"}, runner, students, testutil.TestLogger())

	res, err := s.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PassResult{Students: 10, Runs: 10, AppliedSafe: 10}, res)
	assert.Len(t, runner.seen, 10)
	assert.LessOrEqual(t, runner.peak.Load(), int32(3))
	assert.Equal(t, "keep things tidy", runner.gotObj)
	assert.Equal(t, 100, students.gotLimit)
}

func TestPass_FailureIsCountedNotFatal(t *testing.T) {
	students := &fakeStudents{students: makeStudents(4)}
	runner := &fakeRunner{failFor: students.students[2].ID}
	s := New(Config{Enabled: true}, runner, students, testutil.TestLogger())

	res, err := s.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Runs)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, runner.seen, 4)
}

func TestPass_ListError(t *testing.T) {
	s := New(Config{Enabled: true}, &fakeRunner{}, &fakeStudents{err: errors.New("db down")}, testutil.TestLogger())
	_, err := s.Pass(context.Background())
	assert.Error(t, err)
}

func TestRun_DisabledReturnsImmediately(t *testing.T) {
	runner := &fakeRunner{}
	s := New(Config{Enabled: false, Interval: time.Millisecond}, runner, &fakeStudents{students: makeStudents(1)}, testutil.TestLogger())

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled scheduler did not return")
	}
	assert.Empty(t, runner.seen)
}

func TestRun_TicksUntilCanceled(t *testing.T) {
	runner := &fakeRunner{}
	s := New(Config{Enabled: true, Interval: 10 * time.Millisecond}, runner, &fakeStudents{students: makeStudents(1)}, testutil.TestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return len(runner.seen) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
