package collab

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"collabd/pkg/types"
)

func TestSweepEvictsSilentUsers(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "alice", "Alice")
	mustJoin(t, c, "A1", "bob", "Bob")
	drainEvents(c)

	// Bob heartbeats, Alice goes silent past the 30 minute timeout.
	clk.Advance(29 * time.Minute)
	c.Heartbeat("A1", "bob")
	clk.Advance(2 * time.Minute)

	c.Sweep()

	snapshot := c.Snapshot("A1")
	if len(snapshot.Users) != 1 || snapshot.Users[0].UserID != "bob" {
		t.Fatalf("expected only bob to remain, got %+v", snapshot.Users)
	}

	// Eviction must emit user_left so rosters stay correct.
	var left *types.Event
	for _, ev := range drainEvents(c) {
		if ev.Type == types.EventUserLeft {
			left = ev
		}
	}
	if left == nil {
		t.Fatal("expected user_left event for evicted user")
	}
	if left.UserID != "alice" {
		t.Errorf("expected alice evicted, got %s", left.UserID)
	}
	if left.Data["evicted"] != true {
		t.Error("sweep eviction must be marked in the event payload")
	}
}

func TestSweepEvictionReleasesLocks(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "alice", "Alice")
	mustJoin(t, c, "A1", "bob", "Bob")
	c.Lock("A1", "Q1", "alice")

	clk.Advance(31 * time.Minute)
	mustJoin(t, c, "A1", "bob", "Bob") // keep bob fresh
	c.Sweep()

	if res := c.Lock("A1", "Q1", "bob"); !res.Granted {
		t.Errorf("evicting alice must free her locks, denied: %s", res.Reason)
	}
}

func TestSweepDropsExpiredLocks(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "alice", "Alice")
	c.Lock("A1", "Q1", "alice")
	drainEvents(c)

	clk.Advance(6 * time.Minute)
	c.Heartbeat("A1", "alice") // alice is present, just stopped editing
	c.Sweep()

	snapshot := c.Snapshot("A1")
	if len(snapshot.Locks) != 0 {
		t.Fatal("sweep must drop expired locks")
	}

	var unlocked *types.Event
	for _, ev := range drainEvents(c) {
		if ev.Type == types.EventQuestionUnlocked {
			unlocked = ev
		}
	}
	if unlocked == nil {
		t.Fatal("expected question_unlocked for expired lock")
	}
	if unlocked.Data["expired"] != true {
		t.Error("expiry eviction must be marked in the event payload")
	}
}

func TestSweepKeepsBrieflyEmptySessions(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "alice", "Alice")
	c.Leave("A1", "alice")

	// Empty for 59 minutes: still inside the grace period.
	clk.Advance(59 * time.Minute)
	c.Sweep()
	if c.Snapshot("A1") == nil {
		t.Fatal("session empty for 59 minutes must survive the sweep")
	}

	// At 61 minutes it goes.
	clk.Advance(2 * time.Minute)
	c.Sweep()
	if c.Snapshot("A1") != nil {
		t.Fatal("session idle past the grace period must be destroyed")
	}
}

func TestJoinAfterDestructionRecreatesSession(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "alice", "Alice")
	c.Leave("A1", "alice")
	clk.Advance(2 * time.Hour)
	c.Sweep()

	snapshot := mustJoin(t, c, "A1", "alice", "Alice")
	if len(snapshot.Users) != 1 {
		t.Fatal("join after destruction must create a fresh session")
	}
	if !snapshot.StartedAt.Equal(clk.Now()) {
		t.Error("recreated session must have a fresh startedAt")
	}
}

func TestSweeperRunsOnClockTicks(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)
	sw := NewSweeper(c, zap.NewNop())
	sw.Start()
	defer sw.Stop()

	mustJoin(t, c, "A1", "alice", "Alice")
	c.Leave("A1", "alice")
	clk.Advance(2 * time.Hour)

	// The sweep runs on the sweeper goroutine; keep firing ticks until it
	// lands or the deadline passes.
	deadline := time.After(2 * time.Second)
	for c.Snapshot("A1") != nil {
		select {
		case <-deadline:
			t.Fatal("sweeper did not run on clock tick")
		default:
			clk.Fire()
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestSweeperStartStopIdempotent(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	sw := NewSweeper(c, zap.NewNop())

	sw.Start()
	sw.Start()
	sw.Stop()
	sw.Stop()
}
