// ABOUTME: Tests for the Stream Bridge
// ABOUTME: Covers ordering, terminal markers, and producer cancellation on early close

package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeDeliversChunksInOrder(t *testing.T) {
	b := NewBridge(context.Background(), 4, func(ctx context.Context, push func(string) error) error {
		for _, c := range []string{"he", "llo", " wor", "ld"} {
			if err := push(c); err != nil {
				return err
			}
		}
		return nil
	})

	var got []string
	var sawDone bool
	for item := range b.Items() {
		if item.Done {
			sawDone = true
			assert.NoError(t, item.Err)
			continue
		}
		got = append(got, item.Chunk)
	}

	assert.True(t, sawDone)
	assert.Equal(t, []string{"he", "llo", " wor", "ld"}, got)
}

func TestBridgeErrorTerminal(t *testing.T) {
	providerErr := errors.New("rate limited")

	b := NewBridge(context.Background(), 4, func(ctx context.Context, push func(string) error) error {
		if err := push("partial"); err != nil {
			return err
		}
		return providerErr
	})

	var chunks []string
	var terminal *Item
	for item := range b.Items() {
		if item.Done {
			it := item
			terminal = &it
			continue
		}
		chunks = append(chunks, item.Chunk)
	}

	assert.Equal(t, []string{"partial"}, chunks)
	require.NotNil(t, terminal)
	assert.ErrorIs(t, terminal.Err, providerErr)
}

func TestBridgeCloseCancelsProducer(t *testing.T) {
	producerDone := make(chan struct{})

	// Tiny buffer so the producer blocks on push once the consumer stops
	b := NewBridge(context.Background(), 1, func(ctx context.Context, push func(string) error) error {
		defer close(producerDone)
		for i := 0; ; i++ {
			if err := push("chunk"); err != nil {
				return err
			}
		}
	})

	// Consume one chunk, then walk away
	<-b.Items()
	b.Close()

	select {
	case <-producerDone:
	case <-time.After(time.Second):
		t.Fatal("producer was not cancelled by Close")
	}
}

func TestBridgeCloseAfterFullDrain(t *testing.T) {
	b := NewBridge(context.Background(), 2, func(ctx context.Context, push func(string) error) error {
		return push("only")
	})

	for range b.Items() {
	}

	// Must not hang or panic
	b.Close()
	b.Close()
}

func TestBridgeParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	producerDone := make(chan struct{})
	b := NewBridge(ctx, 1, func(ctx context.Context, push func(string) error) error {
		defer close(producerDone)
		for {
			if err := push("chunk"); err != nil {
				return err
			}
		}
	})

	<-b.Items()
	cancel()

	select {
	case <-producerDone:
	case <-time.After(time.Second):
		t.Fatal("producer did not observe parent cancellation")
	}
	b.Close()
}
