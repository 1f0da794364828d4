// ABOUTME: Stream Bridge converting a token-push model call into a pull-based item sequence
// ABOUTME: Single bounded channel, one producer, one consumer, distinguished terminal markers

package chat

import (
	"context"
	"sync"
)

// Item is one element of the bridged stream. Exactly one terminal item
// (Done=true) ends every stream: Err is nil on success and carries the
// provider fault otherwise.
type Item struct {
	Chunk string
	Done  bool
	Err   error
}

// Bridge adapts a push-callback producer into an ordered pull sequence.
// Tokens come out in exactly the order the producer pushed them. The
// consumer must either drain Items() to the terminal item or call Close().
type Bridge struct {
	items  chan Item
	cancel context.CancelFunc
	joined chan struct{}
	once   sync.Once
}

// NewBridge starts the producer in its own goroutine. run receives a push
// function that enqueues one chunk; pushing fails once the bridge is closed,
// which aborts the producer. When run returns, a terminal item is enqueued
// and the item channel is closed.
func NewBridge(ctx context.Context, buffer int, run func(ctx context.Context, push func(chunk string) error) error) *Bridge {
	if buffer <= 0 {
		buffer = 1
	}

	pctx, cancel := context.WithCancel(ctx)
	b := &Bridge{
		items:  make(chan Item, buffer),
		cancel: cancel,
		joined: make(chan struct{}),
	}

	push := func(chunk string) error {
		select {
		case b.items <- Item{Chunk: chunk}:
			return nil
		case <-pctx.Done():
			return pctx.Err()
		}
	}

	go func() {
		defer close(b.joined)
		defer close(b.items)

		err := run(pctx, push)

		// After cancellation nobody is reading; skip the terminal marker
		// rather than block forever.
		select {
		case b.items <- Item{Done: true, Err: err}:
		case <-pctx.Done():
		}
	}()

	return b
}

// Items returns the stream. The channel is closed after the terminal item.
func (b *Bridge) Items() <-chan Item {
	return b.items
}

// Close cancels the producer, discards any queued items, and joins the
// producer goroutine. Safe to call multiple times and after a full drain.
func (b *Bridge) Close() {
	b.once.Do(func() {
		b.cancel()
		for range b.items {
		}
		<-b.joined
	})
}
