package collab

import (
	"sync"

	"go.uber.org/zap"

	"collabd/internal/monitoring"
	"collabd/pkg/types"
)

// Sweeper periodically evicts disconnected users, expired locks, and
// empty idle sessions. It runs on the injected clock so tests drive sweeps
// deterministically.
type Sweeper struct {
	coord *Coordinator
	log   *zap.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func NewSweeper(coord *Coordinator, log *zap.Logger) *Sweeper {
	return &Sweeper{
		coord: coord,
		log:   log,
		done:  make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling Start twice is a no-op.
func (sw *Sweeper) Start() {
	sw.startOnce.Do(func() {
		sw.wg.Add(1)
		go sw.run()
	})
}

// Stop terminates the loop and waits for an in-flight sweep to finish.
func (sw *Sweeper) Stop() {
	sw.stopOnce.Do(func() {
		close(sw.done)
	})
	sw.wg.Wait()
}

func (sw *Sweeper) run() {
	defer sw.wg.Done()

	ticks, stop := sw.coord.clk.Tick(sw.coord.cfg.SweepInterval)
	defer stop()

	for {
		select {
		case <-ticks:
			sw.coord.Sweep()
		case <-sw.done:
			return
		}
	}
}

// Sweep runs one cleanup pass over every session:
//  1. users silent beyond the presence timeout are evicted, with user_left
//     emitted so client rosters stay correct;
//  2. expired locks are dropped, with question_unlocked emitted;
//  3. sessions with zero users are destroyed only once lastActivity is older
//     than the idle timeout — a brief reconnect gap must not kill a session.
func (c *Coordinator) Sweep() {
	c.mu.RLock()
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.RUnlock()

	now := c.clk.Now()
	var emptyCandidates []*session

	for _, s := range sessions {
		s.mu.Lock()

		for userID, user := range s.users {
			if now.Sub(user.LastSeen) <= c.cfg.PresenceTimeout {
				continue
			}
			c.releaseUserLocks(s, userID, now)
			delete(s.users, userID)
			monitoring.ConnectedUsers.Dec()
			c.emit(newEvent(types.EventUserLeft, s.assessmentID, userID, user.DisplayName, now, map[string]any{
				"participants": s.participants(),
				"count":        len(s.users),
				"evicted":      true,
			}))
			c.log.Info("evicted inactive user",
				zap.String("assessment_id", s.assessmentID),
				zap.String("user_id", userID))
		}

		for _, lock := range s.pruneExpiredLocks(now) {
			c.emit(newEvent(types.EventQuestionUnlocked, s.assessmentID, lock.LockedBy, displayName(s, lock.LockedBy), now, map[string]any{
				"question_id": lock.QuestionID,
				"expired":     true,
			}))
		}

		if len(s.users) == 0 && now.Sub(s.lastActivity) > c.cfg.IdleSessionTimeout {
			emptyCandidates = append(emptyCandidates, s)
		}
		s.mu.Unlock()
	}

	if len(emptyCandidates) == 0 {
		return
	}

	c.mu.Lock()
	for _, s := range emptyCandidates {
		s.mu.Lock()
		// Re-check under both locks: a join may have landed since the scan.
		if len(s.users) == 0 && now.Sub(s.lastActivity) > c.cfg.IdleSessionTimeout {
			s.destroyed = true
			delete(c.sessions, s.assessmentID)
			c.log.Info("destroyed idle session", zap.String("assessment_id", s.assessmentID))
		}
		s.mu.Unlock()
	}
	monitoring.ActiveSessions.Set(float64(len(c.sessions)))
	c.mu.Unlock()
}
