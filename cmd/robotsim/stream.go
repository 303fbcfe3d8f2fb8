package main

import (
	"github.com/sirupsen/logrus"

	"github.com/comalice/autotask/internal/core"
	"github.com/comalice/autotask/internal/primitives"
	"github.com/comalice/autotask/internal/production"
)

// statusStream logs every status record published to it from its own
// goroutine, off the scheduler loop.
type statusStream struct {
	*production.ChannelPublisher
	log  logrus.FieldLogger
	done chan struct{}
}

func newStatusStream(log logrus.FieldLogger, buffer int) *statusStream {
	ch := make(chan core.Status, buffer)
	s := &statusStream{
		ChannelPublisher: production.NewChannelPublisher(ch),
		log:              log,
		done:             make(chan struct{}),
	}
	go s.drain(ch)
	return s
}

func (s *statusStream) drain(ch <-chan core.Status) {
	defer close(s.done)
	for status := range ch {
		entry := s.log.WithFields(logrus.Fields{
			"task":       status.Task,
			"activation": status.Activation,
			"from":       status.From,
			"to":         status.To,
		})
		if status.Outcome != primitives.Pending {
			entry = entry.WithField("outcome", status.Outcome)
		}
		if status.Error != "" {
			entry = entry.WithField("error", status.Error)
		}
		entry.Info("Status")
	}
}

// Close stops accepting records and returns once the buffered ones have
// been logged.
func (s *statusStream) Close() error {
	err := s.ChannelPublisher.Close()
	<-s.done
	if n := s.Dropped(); n > 0 {
		s.log.WithField("dropped", n).Warn("Status stream fell behind")
	}
	return err
}
