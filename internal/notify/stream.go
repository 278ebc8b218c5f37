package notify

import (
	"errors"
	"sync"
)

var (
	ErrSubscriberClosed = errors.New("subscriber closed")
	ErrSubscriberSlow   = errors.New("subscriber buffer full")
)

// StreamSubscriber buffers frames for one event-stream connection. The
// connection's writer drains Frames until Done is closed.
type StreamSubscriber struct {
	frames    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamSubscriber(buffer int) *StreamSubscriber {
	if buffer <= 0 {
		buffer = 16
	}
	return &StreamSubscriber{
		frames: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (s *StreamSubscriber) Send(frame []byte) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}
	select {
	case s.frames <- frame:
		return nil
	default:
		return ErrSubscriberSlow
	}
}

func (s *StreamSubscriber) Frames() <-chan []byte {
	return s.frames
}

func (s *StreamSubscriber) Done() <-chan struct{} {
	return s.done
}

func (s *StreamSubscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
