package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/events"
	"github.com/ohd-platform/facility-helpdesk/internal/repository/memory"
	"github.com/ohd-platform/facility-helpdesk/internal/service"
	"github.com/ohd-platform/facility-helpdesk/internal/worker"
	"github.com/ohd-platform/facility-helpdesk/internal/workflow"
)

func within(t *testing.T, limit time.Duration, name string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(limit):
		t.Fatalf("%s did not return within %s", name, limit)
	}
}

func TestTransitionsDoNotWaitForSlowSubscribers(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	facilities := memory.NewFacilityRepository()
	require.NoError(t, facilities.Save(ctx, &domain.Facility{ID: "f1", HeadManagerID: "m1", TechnicianIDs: []string{"t1"}}))

	pool := worker.NewPool(worker.PoolConfig{Workers: 1, QueueSize: 1, MaxAttempts: 1, RetryBase: time.Millisecond}, logger)
	release := make(chan struct{})
	var handled atomic.Int32
	blocking := func(context.Context, events.Event) error {
		<-release
		handled.Add(1)
		return nil
	}
	dispatcher := events.NewInMemoryDispatcher(logger)
	for _, eventType := range events.AllTypes() {
		dispatcher.Subscribe(eventType, worker.Async(pool, blocking))
	}

	svc := service.NewRequestService(service.RequestDependencies{
		RequestRepo: memory.NewRequestRepository(),
		HistoryRepo: memory.NewHistoryRepository(),
		Facilities:  facilities,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	var ids []string
	for i := 0; i < 4; i++ {
		var (
			r   *domain.Request
			err error
		)
		within(t, time.Second, "CreateRequest", func() {
			callCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			r, err = svc.CreateRequest(callCtx, creator, workflow.CreateInput{
				Facility: "f1",
				Title:    "Broken window",
				Severity: domain.SeverityMedium,
			})
		})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	for _, id := range ids[:2] {
		var (
			r   *domain.Request
			err error
		)
		within(t, time.Second, "UpdateRequest", func() {
			callCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()
			r, err = svc.UpdateRequest(callCtx, headM, id, string(workflow.ActionAssignTechnician), workflow.Input{AssignedTo: domain.StringPtr("t1")})
		})
		require.NoError(t, err)
		assert.Equal(t, domain.StatusAssigned, r.Status)
	}

	// a later transition on the same request is not stuck behind the lock
	var err error
	within(t, time.Second, "UpdateRequest on the same request", func() {
		_, err = svc.UpdateRequest(ctx, tech1, ids[0], string(workflow.ActionStartWork), workflow.Input{})
	})
	require.NoError(t, err)

	close(release)
	require.NoError(t, pool.Close(context.Background()))
	assert.Equal(t, int32(7), handled.Load())
}
