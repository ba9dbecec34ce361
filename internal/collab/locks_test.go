package collab

import (
	"sync"
	"testing"
	"time"

	"collabd/pkg/types"
)

func TestLockGrantAndDeny(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "x", "Xavier")
	mustJoin(t, c, "A1", "y", "Yvonne")
	drainEvents(c)

	res := c.Lock("A1", "Q7", "x")
	if !res.Granted {
		t.Fatalf("expected grant, denied: %s", res.Reason)
	}
	if res.Lock == nil || res.Lock.LockedBy != "x" {
		t.Fatal("granted result must carry the lock")
	}

	denied := c.Lock("A1", "Q7", "y")
	if denied.Granted {
		t.Fatal("second lock by another user must be denied")
	}
	if denied.HolderID != "x" || denied.HolderName != "Xavier" {
		t.Errorf("denial must name the holder, got %s/%s", denied.HolderID, denied.HolderName)
	}

	events := drainEvents(c)
	if len(events) != 1 || events[0].Type != types.EventQuestionLocked {
		t.Fatalf("expected exactly one question_locked event, got %d", len(events))
	}
}

func TestRelockBySameHolderRefreshesTTL(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "x", "Xavier")
	first := c.Lock("A1", "Q1", "x")

	clk.Advance(4 * time.Minute)
	second := c.Lock("A1", "Q1", "x")
	if !second.Granted {
		t.Fatalf("holder re-lock must succeed: %s", second.Reason)
	}
	if !second.Lock.ExpiresAt.After(first.Lock.ExpiresAt) {
		t.Error("re-lock must push expiry forward")
	}
}

func TestExpiredLockNeverBlocks(t *testing.T) {
	c, clk, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "x", "Xavier")
	mustJoin(t, c, "A1", "y", "Yvonne")

	if res := c.Lock("A1", "Q3", "x"); !res.Granted {
		t.Fatalf("setup lock failed: %s", res.Reason)
	}

	// TTL is 300s; at 301s the stale lock is replaced.
	clk.Advance(301 * time.Second)
	res := c.Lock("A1", "Q3", "y")
	if !res.Granted {
		t.Fatalf("expired lock must not block, denied: %s", res.Reason)
	}
	if res.Lock.LockedBy != "y" {
		t.Errorf("lock must now belong to y, got %s", res.Lock.LockedBy)
	}
}

func TestUnlockByNonOwnerDeniedWithoutSideEffects(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "x", "Xavier")
	mustJoin(t, c, "A1", "y", "Yvonne")
	granted := c.Lock("A1", "Q1", "x")

	res := c.Unlock("A1", "Q1", "y")
	if res.Granted {
		t.Fatal("non-owner unlock must be denied")
	}
	if res.Reason != ReasonNotLockOwner {
		t.Errorf("expected reason %q, got %q", ReasonNotLockOwner, res.Reason)
	}

	snapshot := c.Snapshot("A1")
	if len(snapshot.Locks) != 1 {
		t.Fatal("denied unlock must not remove the lock")
	}
	if snapshot.Locks[0].LockedBy != "x" || !snapshot.Locks[0].ExpiresAt.Equal(granted.Lock.ExpiresAt) {
		t.Error("denied unlock must not alter owner or expiry")
	}
}

func TestUnlockWithNoLockIsSuccessfulNoOp(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "x", "Xavier")
	drainEvents(c)

	res := c.Unlock("A1", "Q9", "x")
	if !res.Granted {
		t.Fatalf("unlock on already-unlocked question must succeed, got %s", res.Reason)
	}
	if events := drainEvents(c); len(events) != 0 {
		t.Errorf("no state changed, expected no events, got %d", len(events))
	}
}

func TestLockOnUnknownSessionIsSoftDenial(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	res := c.Lock("missing", "Q1", "x")
	if res.Granted {
		t.Fatal("lock on unknown session must be denied")
	}
	if res.Reason != ReasonSessionNotFound {
		t.Errorf("expected reason %q, got %q", ReasonSessionNotFound, res.Reason)
	}
}

func TestLockUpdatesCurrentQuestion(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "x", "Xavier")
	c.Lock("A1", "Q5", "x")

	snapshot := c.Snapshot("A1")
	if snapshot.Users[0].CurrentQuestionID != "Q5" {
		t.Errorf("expected currentQuestionId Q5, got %q", snapshot.Users[0].CurrentQuestionID)
	}

	c.Unlock("A1", "Q5", "x")
	snapshot = c.Snapshot("A1")
	if snapshot.Users[0].CurrentQuestionID != "" {
		t.Error("unlock must clear currentQuestionId")
	}
}

// At most one live lock per question: concurrent attempts from many users
// yield exactly one grant.
func TestConcurrentLockAttemptsSingleWinner(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	users := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	for _, u := range users {
		mustJoin(t, c, "A1", u, "User "+u)
	}
	drainEvents(c)

	var wg sync.WaitGroup
	results := make([]*types.LockResult, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i] = c.Lock("A1", "Q1", u)
		}(i, u)
	}
	wg.Wait()

	granted := 0
	for _, res := range results {
		if res.Granted {
			granted++
		}
	}
	if granted != 1 {
		t.Errorf("expected exactly 1 grant, got %d", granted)
	}
}
