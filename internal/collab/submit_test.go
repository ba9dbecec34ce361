package collab

import (
	"context"
	"errors"
	"strings"
	"testing"

	"collabd/pkg/types"
)

func TestSubmitReleasesLockAndEmits(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	mustJoin(t, c, "A1", "x", "Xavier")
	mustJoin(t, c, "A1", "y", "Yvonne")

	if res := c.Lock("A1", "Q7", "x"); !res.Granted {
		t.Fatalf("setup lock failed: %s", res.Reason)
	}
	if res := c.Lock("A1", "Q7", "y"); res.Granted {
		t.Fatal("y must be denied while x holds Q7")
	}
	drainEvents(c)

	result, err := c.Submit(ctx, "A1", "Q7", "x", "42", "")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.Accepted {
		t.Fatal("submission must be accepted")
	}
	if result.Conflict != nil {
		t.Fatal("first write must not conflict")
	}

	events := drainEvents(c)
	if len(events) != 1 || events[0].Type != types.EventAnswerSubmitted {
		t.Fatalf("expected answer_submitted, got %d events", len(events))
	}
	if events[0].Data["value"] != "42" {
		t.Errorf("event must carry the new value, got %v", events[0].Data["value"])
	}

	// Submission implicitly released the lock.
	if snapshot := c.Snapshot("A1"); len(snapshot.Locks) != 0 {
		t.Fatal("submit must release the submitter's lock")
	}
	if res := c.Lock("A1", "Q7", "y"); !res.Granted {
		t.Errorf("y must lock Q7 after x submitted, denied: %s", res.Reason)
	}
}

func TestSubmitDetectsRacingWrite(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	mustJoin(t, c, "A1", "x", "Xavier")
	mustJoin(t, c, "A1", "y", "Yvonne")

	// Both clients loaded the question before either wrote: both saw "".
	if _, err := c.Submit(ctx, "A1", "Q1", "x", "first", ""); err != nil {
		t.Fatalf("x submit failed: %v", err)
	}
	result, err := c.Submit(ctx, "A1", "Q1", "y", "second", "")
	if err != nil {
		t.Fatalf("y submit failed: %v", err)
	}

	if !result.Accepted {
		t.Fatal("racing submission is still accepted, never silently dropped")
	}
	if result.Conflict == nil {
		t.Fatal("expected a conflict record for the racing write")
	}

	conflict := result.Conflict
	if conflict.Stored.UserID != "x" || conflict.Stored.Value != "first" {
		t.Errorf("conflict must archive the stored side, got %+v", conflict.Stored)
	}
	if conflict.Incoming.UserID != "y" || conflict.Incoming.Value != "second" {
		t.Errorf("conflict must archive the incoming side, got %+v", conflict.Incoming)
	}
	if conflict.IsResolved() {
		t.Error("fresh conflict must be open")
	}
}

func TestSubmitWithMatchingLastSeenValueDoesNotConflict(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	mustJoin(t, c, "A1", "x", "Xavier")
	mustJoin(t, c, "A1", "y", "Yvonne")

	if _, err := c.Submit(ctx, "A1", "Q1", "x", "first", ""); err != nil {
		t.Fatal(err)
	}
	// y saw x's write before editing: a clean sequential update.
	result, err := c.Submit(ctx, "A1", "Q1", "y", "second", "first")
	if err != nil {
		t.Fatal(err)
	}
	if result.Conflict != nil {
		t.Error("sequential update must not be flagged as a conflict")
	}
}

func TestOwnRewriteNeverConflicts(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	mustJoin(t, c, "A1", "x", "Xavier")
	if _, err := c.Submit(ctx, "A1", "Q1", "x", "v1", ""); err != nil {
		t.Fatal(err)
	}
	result, err := c.Submit(ctx, "A1", "Q1", "x", "v2", "stale")
	if err != nil {
		t.Fatal(err)
	}
	if result.Conflict != nil {
		t.Error("a user overwriting their own answer is not a conflict")
	}
}

func TestResolveConflictClosesRecordAndBroadcasts(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	mustJoin(t, c, "A1", "x", "Xavier")
	mustJoin(t, c, "A1", "y", "Yvonne")
	mustJoin(t, c, "A1", "lead", "Lead Reviewer")

	c.Submit(ctx, "A1", "Q1", "x", "first", "")
	result, _ := c.Submit(ctx, "A1", "Q1", "y", "second", "")
	if result.Conflict == nil {
		t.Fatal("setup: expected conflict")
	}
	drainEvents(c)

	resolved, err := c.ResolveConflict(ctx, result.Conflict.ID, "lead", "second")
	if err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}
	if !resolved.IsResolved() || resolved.ResolvedValue != "second" || resolved.ResolvedBy != "lead" {
		t.Errorf("resolution fields wrong: %+v", resolved)
	}

	events := drainEvents(c)
	if len(events) != 1 || events[0].Type != types.EventAnswerSubmitted {
		t.Fatalf("resolution must broadcast the final value, got %d events", len(events))
	}
	if events[0].Data["conflict_id"] != resolved.ID {
		t.Error("broadcast must reference the conflict it closes")
	}

	// A closed conflict cannot be resolved again.
	if _, err := c.ResolveConflict(ctx, result.Conflict.ID, "lead", "first"); err == nil {
		t.Error("expected error resolving an already-resolved conflict")
	}
}

func TestSubmitOnUnknownSessionOrUser(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	if _, err := c.Submit(ctx, "missing", "Q1", "x", "v", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	mustJoin(t, c, "A1", "x", "Xavier")
	if _, err := c.Submit(ctx, "A1", "Q1", "nobody", "v", ""); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCommentAppendsIndependentOfLocks(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	mustJoin(t, c, "A1", "x", "Xavier")
	mustJoin(t, c, "A1", "y", "Yvonne")
	c.Lock("A1", "Q1", "x")
	drainEvents(c)

	// y comments on a question x has locked.
	comment, err := c.Comment("A1", "Q1", "y", "should this include subsidiaries?")
	if err != nil {
		t.Fatalf("Comment failed: %v", err)
	}
	if comment.AuthorName != "Yvonne" || comment.Resolved {
		t.Errorf("unexpected comment fields: %+v", comment)
	}

	events := drainEvents(c)
	if len(events) != 1 || events[0].Type != types.EventCommentAdded {
		t.Fatalf("expected comment_added, got %d events", len(events))
	}
}

func TestSubmitAndCommentRejectInvalidQuestionID(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()
	mustJoin(t, c, "A1", "x", "Xavier")
	drainEvents(c)

	for _, qid := range []string{"", "has space", strings.Repeat("q", 65)} {
		if _, err := c.Submit(ctx, "A1", qid, "x", "v", ""); !errors.Is(err, types.ErrInvalidQuestionID) {
			t.Errorf("Submit(%q): expected ErrInvalidQuestionID, got %v", qid, err)
		}
		if _, err := c.Comment("A1", qid, "x", "note"); !errors.Is(err, types.ErrInvalidQuestionID) {
			t.Errorf("Comment(%q): expected ErrInvalidQuestionID, got %v", qid, err)
		}
	}
	if events := drainEvents(c); len(events) != 0 {
		t.Errorf("rejected operations must not emit events, got %d", len(events))
	}
}

func TestCommentValidation(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	mustJoin(t, c, "A1", "x", "Xavier")

	if _, err := c.Comment("A1", "Q1", "x", ""); !errors.Is(err, types.ErrEmptyComment) {
		t.Errorf("expected ErrEmptyComment, got %v", err)
	}
	huge := strings.Repeat("a", 17*1024)
	if _, err := c.Comment("A1", "Q1", "x", huge); !errors.Is(err, types.ErrCommentTooLarge) {
		t.Errorf("expected ErrCommentTooLarge, got %v", err)
	}
}
