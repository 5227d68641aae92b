package service

import (
	"context"
	"strings"
	"sync"

	"github.com/revloop/overseer/internal/domain"
	"github.com/revloop/overseer/internal/domain/decision"
	"github.com/revloop/overseer/internal/port/coordinator"
	"github.com/revloop/overseer/internal/port/eventbus"
	"github.com/revloop/overseer/internal/port/memorystore"
)

// Ensure mock types implement their interfaces at compile time.
var (
	_ eventbus.Bus            = (*mockBus)(nil)
	_ memorystore.Store       = (*mockStore)(nil)
	_ coordinator.Coordinator = (*mockCoordinator)(nil)
)

type mockBus struct {
	mu         sync.Mutex
	published  []publishedMsg
	publishErr error
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (m *mockBus) Publish(_ context.Context, subject string, data []byte) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMsg{subject, data})
	return nil
}

func (m *mockBus) Subscribe(context.Context, string, eventbus.Handler) (func(), error) {
	return func() {}, nil
}

func (m *mockBus) Drain() error      { return nil }
func (m *mockBus) Close() error      { return nil }
func (m *mockBus) IsConnected() bool { return true }

// subjects returns every published subject in order.
func (m *mockBus) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.published))
	for i, p := range m.published {
		out[i] = p.subject
	}
	return out
}

// count returns how many messages were published on subject.
func (m *mockBus) count(subject string) int {
	n := 0
	for _, s := range m.subjects() {
		if s == subject {
			n++
		}
	}
	return n
}

type mockStore struct {
	mu       sync.Mutex
	values   map[string][]byte
	storeErr error
}

func newMockStore() *mockStore {
	return &mockStore{values: make(map[string][]byte)}
}

func (m *mockStore) Store(_ context.Context, key string, value []byte) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *mockStore) Retrieve(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *mockStore) List(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.values {
		if strings.HasPrefix(k, pattern) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type mockCoordinator struct {
	mu          sync.Mutex
	executed    []string // decision IDs whose recommendation was executed
	overrides   []coordinator.Override
	retrains    []coordinator.RetrainRequest
	executeErr  error
	overrideErr error
}

func (m *mockCoordinator) Broadcast(context.Context, string, any) error { return nil }

func (m *mockCoordinator) ExecuteDecision(_ context.Context, d *decision.Decision) error {
	if m.executeErr != nil {
		return m.executeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, d.ID)
	return nil
}

func (m *mockCoordinator) ExecuteRecommendation(_ context.Context, decisionID string, _ decision.Recommendation) error {
	if m.executeErr != nil {
		return m.executeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, decisionID)
	return nil
}

func (m *mockCoordinator) ApplyOverride(_ context.Context, o coordinator.Override) error {
	return m.recordOverride(o)
}

func (m *mockCoordinator) EmergencyOverride(_ context.Context, o coordinator.Override) error {
	return m.recordOverride(o)
}

func (m *mockCoordinator) recordOverride(o coordinator.Override) error {
	if m.overrideErr != nil {
		return m.overrideErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = append(m.overrides, o)
	return nil
}

func (m *mockCoordinator) NotifyAgent(context.Context, string, coordinator.Notification) error {
	return nil
}

func (m *mockCoordinator) InitiateRetraining(_ context.Context, req coordinator.RetrainRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrains = append(m.retrains, req)
	return nil
}

func (m *mockCoordinator) overrideCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.overrides)
}
