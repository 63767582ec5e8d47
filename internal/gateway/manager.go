package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Joapozzo/loopin-gateway/internal/authflow"
	"github.com/Joapozzo/loopin-gateway/internal/identity"
	"github.com/Joapozzo/loopin-gateway/internal/loopin"
	"github.com/Joapozzo/loopin-gateway/internal/persist"
	"github.com/Joapozzo/loopin-gateway/internal/query"
	"github.com/Joapozzo/loopin-gateway/internal/rest"
	"github.com/Joapozzo/loopin-gateway/internal/session"
)

// Engine bundles one principal's session machinery: the state store, the
// identity event channel feeding it, the auth provider that owns transitions,
// and the cached resource catalog bound to the session.
type Engine struct {
	Store      *session.Store
	Identities *identity.ChannelProvider
	Provider   *authflow.Provider
	Catalog    *loopin.Catalog
	cancel     context.CancelFunc
}

func (engine *Engine) shutdown() {
	engine.Identities.Close()
	engine.cancel()
	<-engine.Provider.Done()
}

// SessionManager multiplexes per-principal engines over shared storage, the
// shared query cache, and the shared backend client. Engines are created on
// first sight of a subject and live until Remove or Close.
type SessionManager struct {
	mutex   sync.Mutex
	engines map[string]*Engine
	closed  bool

	records persist.Store
	client  *rest.Client
	cache   *query.Cache
	logger  *zap.Logger
	metrics authflow.MetricsRecorder
	config  authflow.Config
}

// NewSessionManager constructs a manager. The cache is shared by every
// engine; catalog keys carry the subject so principals never collide.
func NewSessionManager(records persist.Store, client *rest.Client, cache *query.Cache, logger *zap.Logger, metrics authflow.MetricsRecorder, config authflow.Config) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		engines: make(map[string]*Engine),
		records: records,
		client:  client,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		config:  config,
	}
}

// EngineFor returns the engine for a subject, creating and bootstrapping one
// on first sight. The engine's provider loop runs until Remove or Close.
func (manager *SessionManager) EngineFor(ctx context.Context, subject string) *Engine {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	if manager.closed {
		return nil
	}
	if engine, exists := manager.engines[subject]; exists {
		return engine
	}

	store := session.NewStore()
	identities := identity.NewChannelProvider()
	provider := authflow.New(store, manager.records, identities, rest.NewUsuarioService(manager.client), manager.logger, manager.metrics, nil, manager.config)
	runCtx, cancel := context.WithCancel(context.Background())
	engine := &Engine{
		Store:      store,
		Identities: identities,
		Provider:   provider,
		Catalog:    loopin.NewCatalog(manager.cache, store, manager.client),
		cancel:     cancel,
	}

	provider.Bootstrap(ctx, subject)
	go provider.Run(runCtx)

	manager.engines[subject] = engine
	return engine
}

// DiscardRecord deletes a subject's durable auth record directly. Logout
// uses it when a valid cookie arrives for a subject with no live engine,
// as after a process restart.
func (manager *SessionManager) DiscardRecord(ctx context.Context, subject string) error {
	return manager.records.Delete(ctx, subject)
}

// Peek returns the engine for a subject without creating one.
func (manager *SessionManager) Peek(subject string) (*Engine, bool) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	engine, exists := manager.engines[subject]
	return engine, exists
}

// Remove shuts down and forgets the engine for a subject.
func (manager *SessionManager) Remove(subject string) {
	manager.mutex.Lock()
	engine, exists := manager.engines[subject]
	delete(manager.engines, subject)
	manager.mutex.Unlock()
	if exists {
		engine.shutdown()
	}
}

// Close shuts down every engine. The manager creates no engines afterwards.
func (manager *SessionManager) Close() {
	manager.mutex.Lock()
	if manager.closed {
		manager.mutex.Unlock()
		return
	}
	manager.closed = true
	drained := make([]*Engine, 0, len(manager.engines))
	for subject, engine := range manager.engines {
		drained = append(drained, engine)
		delete(manager.engines, subject)
	}
	manager.mutex.Unlock()

	for _, engine := range drained {
		engine.shutdown()
	}
}
