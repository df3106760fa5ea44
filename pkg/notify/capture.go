package notify

import (
	"context"
	"sync"
)

// CapturePublisher records notifications in memory. It backs unit tests and
// local dry runs.
type CapturePublisher struct {
	mu        sync.Mutex
	published []Notification
	// PublishErr, when set, is returned from every Publish call.
	PublishErr error
}

// NewCapturePublisher creates an empty capturing publisher.
func NewCapturePublisher() *CapturePublisher {
	return &CapturePublisher{}
}

func (p *CapturePublisher) Publish(_ context.Context, n Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PublishErr != nil {
		return p.PublishErr
	}
	p.published = append(p.published, n)
	return nil
}

// Published returns a copy of everything published so far.
func (p *CapturePublisher) Published() []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Notification, len(p.published))
	copy(out, p.published)
	return out
}

func (p *CapturePublisher) Stop() {}
