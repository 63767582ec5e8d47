package gateway

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/Joapozzo/loopin-gateway/internal/authflow"
	"github.com/Joapozzo/loopin-gateway/internal/persist"
	"github.com/Joapozzo/loopin-gateway/internal/query"
	"github.com/Joapozzo/loopin-gateway/internal/rest"
	"github.com/Joapozzo/loopin-gateway/internal/session"
)

func newManagerFixture(t *testing.T) *SessionManager {
	t.Helper()
	logger := zaptest.NewLogger(t)
	client, clientErr := rest.NewClient("http://backend.invalid", nil, logger)
	if clientErr != nil {
		t.Fatalf("client: %v", clientErr)
	}
	cache := query.NewCache(logger, nil)
	t.Cleanup(cache.Close)
	manager := NewSessionManager(persist.NewMemoryStore(time.Hour, nil), client, cache, logger, nil, authflow.Config{})
	t.Cleanup(manager.Close)
	return manager
}

func TestEngineForReturnsSameEnginePerSubject(t *testing.T) {
	t.Parallel()
	manager := newManagerFixture(t)

	first := manager.EngineFor(context.Background(), "sub-001")
	second := manager.EngineFor(context.Background(), "sub-001")
	if first != second {
		t.Fatalf("expected one engine per subject")
	}
	other := manager.EngineFor(context.Background(), "sub-002")
	if other == first {
		t.Fatalf("subjects must not share engines")
	}
}

func TestEngineForBootstrapsFreshSubjectAsUnauthenticated(t *testing.T) {
	t.Parallel()
	manager := newManagerFixture(t)

	engine := manager.EngineFor(context.Background(), "sub-001")
	state := engine.Store.Current()
	if state.Status() != session.StatusUnauthenticated {
		t.Fatalf("fresh subject without a record must resolve unauthenticated, got %q", state.Status())
	}
	if !state.HasLoadedFromStorage() {
		t.Fatalf("bootstrap must mark the storage read")
	}
}

func TestRemoveShutsDownEngine(t *testing.T) {
	t.Parallel()
	manager := newManagerFixture(t)

	engine := manager.EngineFor(context.Background(), "sub-001")
	manager.Remove("sub-001")

	select {
	case <-engine.Provider.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("provider loop must stop after removal")
	}
	if _, exists := manager.Peek("sub-001"); exists {
		t.Fatalf("removed engine must be forgotten")
	}
}

func TestCloseIsIdempotentAndStopsCreation(t *testing.T) {
	t.Parallel()
	manager := newManagerFixture(t)

	manager.EngineFor(context.Background(), "sub-001")
	manager.Close()
	manager.Close()

	if engine := manager.EngineFor(context.Background(), "sub-002"); engine != nil {
		t.Fatalf("closed manager must not create engines")
	}
}
