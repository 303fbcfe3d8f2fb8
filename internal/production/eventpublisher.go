package production

import (
	"sync"
	"sync/atomic"

	"github.com/comalice/autotask/internal/core"
)

// ChannelPublisher forwards status records to a Go channel. Publish never
// blocks; records are dropped when the channel is full.
type ChannelPublisher struct {
	mu      sync.RWMutex
	ch      chan<- core.Status
	closed  bool
	dropped atomic.Uint64
}

// NewChannelPublisher creates a ChannelPublisher with the given output channel.
func NewChannelPublisher(ch chan<- core.Status) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(status core.Status) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return
	}
	select {
	case p.ch <- status:
	default:
		p.dropped.Add(1)
	}
}

// Dropped returns how many records were discarded.
func (p *ChannelPublisher) Dropped() uint64 { return p.dropped.Load() }

// Close closes the output channel. Later publishes are dropped.
func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

// MultiPublisher fans each record out to every publisher in order. Nil
// entries are skipped.
type MultiPublisher []core.StatusPublisher

func (m MultiPublisher) Publish(status core.Status) {
	for _, p := range m {
		if p != nil {
			p.Publish(status)
		}
	}
}
