package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Joapozzo/loopin-gateway/internal/identity"
	"github.com/Joapozzo/loopin-gateway/internal/persist"
	"github.com/Joapozzo/loopin-gateway/internal/rest"
	"github.com/Joapozzo/loopin-gateway/internal/session"
)

// Metric event names recorded by the provider.
const (
	MetricLogin          = "auth.login"
	MetricLogout         = "auth.logout"
	MetricOnboarding     = "auth.onboarding"
	MetricSupersede      = "auth.supersede"
	MetricProfileRetry   = "auth.profile_retry"
	MetricProfileFailure = "auth.profile_failure"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns a Clock backed by the wall clock.
func NewSystemClock() Clock {
	return systemClock{}
}

// ProfileFetcher retrieves the backend usuario record for a subject.
type ProfileFetcher interface {
	Get(ctx context.Context, bearerToken string, subject string) (rest.Usuario, error)
}

// Config bounds the profile-fetch retry policy.
type Config struct {
	// RetryAttempts is the total number of profile-fetch attempts per event.
	RetryAttempts int
	// RetryBaseDelay is the delay before the second attempt; it doubles per retry.
	RetryBaseDelay time.Duration
}

func (config Config) withDefaults() Config {
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 250 * time.Millisecond
	}
	return config
}

// Provider is the single authority over the session store. It consumes the
// identity provider's event stream and drives every transition; no other
// component writes session state.
type Provider struct {
	store      *session.Store
	records    persist.Store
	identities identity.Provider
	profiles   ProfileFetcher
	logger     *zap.Logger
	metrics    MetricsRecorder
	clock      Clock
	config     Config

	// epochMutex orders epoch bumps against state commits so a late result
	// for a superseded identity can never overwrite a newer transition.
	epochMutex sync.Mutex
	epoch      uint64

	// lastSubject is the principal whose record was most recently loaded or
	// saved, so Logout can clear storage even after a failed login left the
	// session without an identity.
	subjectMutex sync.Mutex
	lastSubject  string

	runDone chan struct{}
}

// New constructs a provider. Logger, metrics, and clock may be nil.
func New(store *session.Store, records persist.Store, identities identity.Provider, profiles ProfileFetcher, logger *zap.Logger, metrics MetricsRecorder, clock Clock, config Config) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewCounterMetrics()
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &Provider{
		store:      store,
		records:    records,
		identities: identities,
		profiles:   profiles,
		logger:     logger,
		metrics:    metrics,
		clock:      clock,
		config:     config.withDefaults(),
		runDone:    make(chan struct{}),
	}
}

// Bootstrap synchronously seeds the session store from durable storage so an
// already-authenticated principal does not flash unauthenticated at boot. The
// seeded state is provisional until the identity provider's first event
// confirms or corrects it. An empty subject leaves the store loading.
func (provider *Provider) Bootstrap(ctx context.Context, subject string) {
	if subject == "" {
		return
	}
	record, loadErr := provider.records.Load(ctx, subject)
	if loadErr != nil {
		if !persist.IsAbsent(loadErr) {
			provider.logger.Warn("auth record load failed",
				zap.String("code", "authflow.bootstrap.load"),
				zap.String("subject", subject),
				zap.Error(loadErr))
		}
		provider.store.Set(session.Unauthenticated(true))
		return
	}
	state, rebuildErr := rebuildState(record)
	if rebuildErr != nil {
		provider.logger.Warn("auth record unusable, discarding",
			zap.String("code", "authflow.bootstrap.rebuild"),
			zap.String("subject", subject),
			zap.Error(rebuildErr))
		_ = provider.records.Delete(ctx, subject)
		provider.store.Set(session.Unauthenticated(true))
		return
	}
	provider.rememberSubject(subject)
	provider.store.Set(state.Provisional())
}

// Run consumes identity events until the context ends or the stream closes.
// Each event is handled on its own goroutine so a newer event can supersede
// an in-flight profile fetch.
func (provider *Provider) Run(ctx context.Context) {
	defer close(provider.runDone)
	events := provider.identities.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			epochValue := provider.bumpEpoch()
			go provider.handleEvent(ctx, event, epochValue)
		}
	}
}

// Done is closed when Run has returned.
func (provider *Provider) Done() <-chan struct{} {
	return provider.runDone
}

// Logout clears durable storage and resets the session. It supersedes any
// in-flight profile fetch and is idempotent. The record is deleted by the
// current identity's subject, falling back to the last subject that touched
// storage when the session no longer carries one.
func (provider *Provider) Logout(ctx context.Context) error {
	provider.bumpEpoch()

	subject := provider.recallSubject()
	if currentIdentity := provider.store.Current().Identity(); currentIdentity != nil {
		subject = currentIdentity.Subject
	}
	var deleteErr error
	if subject != "" {
		deleteErr = provider.records.Delete(ctx, subject)
		provider.rememberSubject("")
	}
	provider.store.Set(session.Unauthenticated(true))
	provider.metrics.Increment(MetricLogout)
	if deleteErr != nil {
		return fmt.Errorf("authflow.logout: %w", deleteErr)
	}
	return nil
}

func (provider *Provider) rememberSubject(subject string) {
	provider.subjectMutex.Lock()
	provider.lastSubject = subject
	provider.subjectMutex.Unlock()
}

func (provider *Provider) recallSubject() string {
	provider.subjectMutex.Lock()
	defer provider.subjectMutex.Unlock()
	return provider.lastSubject
}

func (provider *Provider) handleEvent(ctx context.Context, event identity.Event, epochValue uint64) {
	if event.Handle == nil {
		provider.commit(epochValue, session.Unauthenticated(true))
		return
	}
	handle := *event.Handle

	if !handle.EmailVerified {
		state, stateErr := session.EmailUnverified(toSessionIdentity(handle))
		if stateErr != nil {
			provider.logger.Error("invalid identity handle",
				zap.String("code", "authflow.event.invalid_handle"),
				zap.Error(stateErr))
			provider.commit(epochValue, session.UnauthenticatedAfterFailure(stateErr))
			return
		}
		provider.commit(epochValue, state)
		return
	}

	bearerToken, tokenErr := provider.identities.BearerToken(ctx, handle)
	if tokenErr != nil {
		provider.logger.Warn("bearer token unavailable",
			zap.String("code", "authflow.event.bearer_token"),
			zap.String("subject", handle.Subject),
			zap.Error(tokenErr))
		provider.commit(epochValue, session.UnauthenticatedAfterFailure(tokenErr))
		return
	}

	provider.resolveProfile(ctx, handle, bearerToken, epochValue)
}

// resolveProfile fetches role and profile with bounded backoff. The
// onboarding-incomplete signal is a terminal outcome, not a retryable error.
func (provider *Provider) resolveProfile(ctx context.Context, handle identity.Handle, bearerToken string, epochValue uint64) {
	var lastErr error
	for attempt := 0; attempt < provider.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			provider.metrics.Increment(MetricProfileRetry)
			if !provider.sleepBeforeRetry(ctx, attempt, epochValue) {
				return
			}
		}

		usuario, fetchErr := provider.profiles.Get(ctx, bearerToken, handle.Subject)
		if errors.Is(fetchErr, rest.ErrOnboardingIncomplete) {
			state, stateErr := session.NeedsOnboarding(toSessionIdentity(handle), bearerToken)
			if stateErr != nil {
				provider.commit(epochValue, session.UnauthenticatedAfterFailure(stateErr))
				return
			}
			if provider.commit(epochValue, state) {
				provider.metrics.Increment(MetricOnboarding)
			}
			return
		}
		if fetchErr == nil {
			state, stateErr := session.Authenticated(toSessionIdentity(handle), bearerToken, session.Role(usuario.Rol), toSessionProfile(usuario))
			if stateErr != nil {
				provider.logger.Error("backend profile lacks role or identity fields",
					zap.String("code", "authflow.profile.incomplete"),
					zap.String("subject", handle.Subject),
					zap.Error(stateErr))
				provider.commit(epochValue, session.UnauthenticatedAfterFailure(stateErr))
				return
			}
			if provider.commit(epochValue, state) {
				provider.persistRecord(ctx, handle, bearerToken, usuario)
				provider.metrics.Increment(MetricLogin)
			}
			return
		}

		lastErr = fetchErr
		provider.logger.Warn("profile fetch failed",
			zap.String("code", "authflow.profile.fetch"),
			zap.String("subject", handle.Subject),
			zap.Int("attempt", attempt+1),
			zap.Error(fetchErr))
	}

	if provider.commit(epochValue, session.UnauthenticatedAfterFailure(lastErr)) {
		provider.metrics.Increment(MetricProfileFailure)
	}
}

// sleepBeforeRetry waits the backoff delay, abandoning early when the context
// ends or a newer event supersedes this one.
func (provider *Provider) sleepBeforeRetry(ctx context.Context, attempt int, epochValue uint64) bool {
	delay := provider.config.RetryBaseDelay << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	provider.epochMutex.Lock()
	superseded := provider.epoch != epochValue
	provider.epochMutex.Unlock()
	if superseded {
		provider.metrics.Increment(MetricSupersede)
		return false
	}
	return true
}

// commit applies a state only when no newer identity event has arrived.
func (provider *Provider) commit(epochValue uint64, state session.State) bool {
	provider.epochMutex.Lock()
	defer provider.epochMutex.Unlock()
	if provider.epoch != epochValue {
		provider.metrics.Increment(MetricSupersede)
		return false
	}
	provider.store.Set(state)
	return true
}

func (provider *Provider) bumpEpoch() uint64 {
	provider.epochMutex.Lock()
	defer provider.epochMutex.Unlock()
	provider.epoch++
	return provider.epoch
}

func (provider *Provider) persistRecord(ctx context.Context, handle identity.Handle, bearerToken string, usuario rest.Usuario) {
	profileJSON, marshalErr := json.Marshal(usuario)
	if marshalErr != nil {
		provider.logger.Error("profile marshal failed",
			zap.String("code", "authflow.persist.marshal"),
			zap.Error(marshalErr))
		return
	}
	record := persist.Record{
		Subject:          handle.Subject,
		Token:            bearerToken,
		Role:             usuario.Rol,
		ProfileJSON:      string(profileJSON),
		ExternalProvider: true,
		ProviderEmail:    handle.Email,
	}
	if saveErr := provider.records.Save(ctx, record); saveErr != nil {
		provider.logger.Error("auth record save failed",
			zap.String("code", "authflow.persist.save"),
			zap.String("subject", handle.Subject),
			zap.Error(saveErr))
		return
	}
	provider.rememberSubject(handle.Subject)
}

func toSessionIdentity(handle identity.Handle) session.Identity {
	return session.Identity{
		Subject:       handle.Subject,
		Email:         handle.Email,
		EmailVerified: handle.EmailVerified,
		DisplayName:   handle.DisplayName,
	}
}

func toSessionProfile(usuario rest.Usuario) session.Profile {
	return session.Profile{
		ID:         usuario.ID,
		Nombre:     usuario.Nombre,
		Apellido:   usuario.Apellido,
		Email:      usuario.Email,
		Telefono:   usuario.Telefono,
		SucursalID: usuario.SucursalID,
	}
}

// rebuildState reconstructs a session state from a durable record.
func rebuildState(record persist.Record) (session.State, error) {
	var usuario rest.Usuario
	if unmarshalErr := json.Unmarshal([]byte(record.ProfileJSON), &usuario); unmarshalErr != nil {
		return session.State{}, fmt.Errorf("authflow.rebuild: %w", unmarshalErr)
	}
	rebuiltIdentity := session.Identity{
		Subject:       record.Subject,
		Email:         record.ProviderEmail,
		EmailVerified: true,
		DisplayName:   usuario.Nombre,
	}
	return session.Authenticated(rebuiltIdentity, record.Token, session.Role(record.Role), toSessionProfile(usuario))
}
