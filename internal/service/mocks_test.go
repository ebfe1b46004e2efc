package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/devrev/facet/internal/model"
)

// MockPrimaryStore is a mock implementation of store.PrimaryStore
type MockPrimaryStore struct {
	mock.Mock
}

func (m *MockPrimaryStore) BatchInsert(ctx context.Context, events []model.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockPrimaryStore) Query(ctx context.Context, query string, params []interface{}) ([]model.Row, error) {
	args := m.Called(ctx, query, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Row), args.Error(1)
}

func (m *MockPrimaryStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockPrimaryStore) Close() {
	m.Called()
}

// MockReplicaStore is a mock implementation of store.ReplicaStore
type MockReplicaStore struct {
	mock.Mock
}

func (m *MockReplicaStore) Query(ctx context.Context, query string, params []interface{}) ([]model.Row, error) {
	args := m.Called(ctx, query, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Row), args.Error(1)
}

func (m *MockReplicaStore) ObserveHeartbeat(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockReplicaStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockReplicaStore) Close() {
	m.Called()
}

// MockHotStore is a mock implementation of store.HotStore
type MockHotStore struct {
	mock.Mock
}

func (m *MockHotStore) MergeUpsert(ctx context.Context, tenantID, entityID string, attrs map[string]interface{}) error {
	args := m.Called(ctx, tenantID, entityID, attrs)
	return args.Error(0)
}

func (m *MockHotStore) GetEntry(ctx context.Context, tenantID, entityID string) (*model.HotEntry, error) {
	args := m.Called(ctx, tenantID, entityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.HotEntry), args.Error(1)
}

func (m *MockHotStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockHotStore) Close() {
	m.Called()
}

// MockResponseCache is a mock implementation of store.ResponseCache
type MockResponseCache struct {
	mock.Mock
}

func (m *MockResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockResponseCache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockResponseCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockHeartbeatSink is a mock implementation of store.HeartbeatSink
type MockHeartbeatSink struct {
	mock.Mock
}

func (m *MockHeartbeatSink) WriteHeartbeat(ctx context.Context, ts time.Time) error {
	args := m.Called(ctx, ts)
	return args.Error(0)
}
