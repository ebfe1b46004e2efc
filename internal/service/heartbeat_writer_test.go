package service

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/devrev/facet/internal/metrics"
)

func TestHeartbeatWriter_StampsAtEachInterval(t *testing.T) {
	clock := quartz.NewMock(t)
	sink := new(MockHeartbeatSink)
	interval := 5 * time.Second
	hw := NewHeartbeatWriter(interval, sink, clock,
		metrics.NewMetrics(prometheus.NewRegistry()), zap.NewNop())

	start := clock.Now()
	sink.On("WriteHeartbeat", mock.Anything, start.Add(interval)).Return(nil).Once()
	sink.On("WriteHeartbeat", mock.Anything, start.Add(2*interval)).Return(nil).Once()

	hw.Start()
	defer hw.Close()

	ctx := context.Background()
	clock.Advance(interval).MustWait(ctx)
	clock.Advance(interval).MustWait(ctx)

	sink.AssertExpectations(t)
}

func TestHeartbeatWriter_KeepsGoingAfterWriteFailure(t *testing.T) {
	clock := quartz.NewMock(t)
	sink := new(MockHeartbeatSink)
	hw := NewHeartbeatWriter(5*time.Second, sink, clock,
		metrics.NewMetrics(prometheus.NewRegistry()), zap.NewNop())

	sink.On("WriteHeartbeat", mock.Anything, mock.Anything).Return(assert.AnError).Once()
	sink.On("WriteHeartbeat", mock.Anything, mock.Anything).Return(nil).Once()

	hw.Start()
	defer hw.Close()

	ctx := context.Background()
	clock.Advance(5 * time.Second).MustWait(ctx)
	clock.Advance(5 * time.Second).MustWait(ctx)

	sink.AssertExpectations(t)
}

func TestHeartbeatWriter_CloseStopsStamping(t *testing.T) {
	clock := quartz.NewMock(t)
	sink := new(MockHeartbeatSink)
	hw := NewHeartbeatWriter(5*time.Second, sink, clock,
		metrics.NewMetrics(prometheus.NewRegistry()), zap.NewNop())

	// Close before Start is a no-op.
	hw.Close()

	hw.Start()
	hw.Close()

	clock.Advance(time.Minute)
	sink.AssertNotCalled(t, "WriteHeartbeat", mock.Anything, mock.Anything)
}
