// Package bus broadcasts one channel to many consumers.
package bus

import (
	"context"
	"log"
	"sync"
)

// FanOut broadcasts values from a single input channel to N output channels.
// If an output channel is full, the value is dropped for that consumer to
// prevent a slow consumer from blocking the pipeline. Subscribers that set
// blocking=true are never dropped for; the fan-out waits for them instead.
type FanOut[T any] struct {
	name    string
	mu      sync.RWMutex
	outputs []output[T]
	bufSize int

	// OnDrop is called when a value is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

type output[T any] struct {
	ch       chan T
	blocking bool
}

// New creates a FanOut with the given buffer size for output channels.
// name is used in log lines only.
func New[T any](name string, outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{
		name:    name,
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new lossy output channel.
func (f *FanOut[T]) Subscribe() <-chan T {
	return f.subscribe(false)
}

// SubscribeBlocking creates an output channel that never drops; a full
// channel back-pressures the input.
func (f *FanOut[T]) SubscribeBlocking() <-chan T {
	return f.subscribe(true)
}

func (f *FanOut[T]) subscribe(blocking bool) <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, output[T]{ch: ch, blocking: blocking})
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed; closes every output.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, o := range f.outputs {
			close(o.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, o := range f.outputs {
				if o.blocking {
					select {
					case o.ch <- v:
					case <-ctx.Done():
						f.mu.RUnlock()
						return
					}
					continue
				}
				select {
				case o.ch <- v:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						log.Printf("[bus] %s output channel %d full, dropping", f.name, i)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel.
// Used for reporting channel saturation percentage.
type ChannelStat struct {
	Len int
	Cap int
}

func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, o := range f.outputs {
		stats[i] = ChannelStat{Len: len(o.ch), Cap: cap(o.ch)}
	}
	return stats
}
