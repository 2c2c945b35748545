package cloudsync

import (
	"context"
	"fmt"

	"nodue/internal/attendance"
	"nodue/internal/queue"
	"nodue/internal/store"
)

// SessionSource returns the signed-in session, or nil when signed out.
type SessionSource interface {
	LoadSession(ctx context.Context) (*store.Session, error)
}

// Publisher turns collection changes into sync jobs on a queue. It is a no-op
// while no account is linked.
type Publisher struct {
	sessions SessionSource
	q        queue.Queue
}

// NewPublisher builds a publisher that enqueues onto q.
func NewPublisher(sessions SessionSource, q queue.Queue) *Publisher {
	return &Publisher{sessions: sessions, q: q}
}

// Changed implements attendance.Notifier.
func (p *Publisher) Changed(ctx context.Context, c attendance.Collection, snap attendance.Snapshot) error {
	sess, err := p.sessions.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if sess == nil || sess.UserID == "" {
		return nil
	}
	msg, err := queue.NewMessage(JobType, NewJob(sess.UserID, c, snap))
	if err != nil {
		return err
	}
	if err := p.q.Publish(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s: %w", c, err)
	}
	return nil
}
