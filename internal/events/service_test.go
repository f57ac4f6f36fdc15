package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/interfaces"
)

func TestSubscribeRejectsNilHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	err := svc.Subscribe(interfaces.EventApplicationProgress, nil)
	assert.Error(t, err)
}

func TestPublishSyncDeliversToAllSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var count atomic.Int64
	for i := 0; i < 3; i++ {
		err := svc.Subscribe(interfaces.EventInterventionCreated, func(_ context.Context, event interfaces.Event) error {
			assert.Equal(t, "sess_1", event.SessionID)
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
	}

	err := svc.PublishSync(context.Background(), interfaces.Event{
		Type:      interfaces.EventInterventionCreated,
		SessionID: "sess_1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), count.Load())
}

func TestPublishSyncAggregatesHandlerErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	require.NoError(t, svc.Subscribe(interfaces.EventPipelineFinished, func(context.Context, interfaces.Event) error {
		return fmt.Errorf("boom")
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventPipelineFinished, func(context.Context, interfaces.Event) error {
		return nil
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventPipelineFinished})
	assert.ErrorContains(t, err, "1 errors")
}

func TestPublishIsAsynchronous(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, svc.Subscribe(interfaces.EventSessionStatusChanged, func(context.Context, interfaces.Event) error {
		defer wg.Done()
		return nil
	}))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSessionStatusChanged}))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

func TestPublishWithoutSubscribersIsNoop(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: "unknown"}))
	assert.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: "unknown"}))
}

func TestCloseDropsSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var count atomic.Int64
	require.NoError(t, svc.Subscribe(interfaces.EventApplicationProgress, func(context.Context, interfaces.Event) error {
		count.Add(1)
		return nil
	}))
	require.NoError(t, svc.Close())

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventApplicationProgress}))
	assert.Equal(t, int64(0), count.Load())
}
