//go:build !integration

package usecase

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/domain/ports/repository"
	"tw-license-service/internal/infra/db/memory"
)

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.LicenseEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.LicenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(t model.LicenseEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// blockingTxManager never starts a transaction before the context ends.
type blockingTxManager struct{}

func (blockingTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, _ func(context.Context, repository.Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// fakeLocker records lock traffic.
type fakeLocker struct {
	mu       sync.Mutex
	locked   map[string]string
	acquired int
	released int
	failWith error
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return "", l.failWith
	}
	if l.locked == nil {
		l.locked = map[string]string{}
	}
	l.locked[key] = "tok-" + key
	l.acquired++
	return l.locked[key], nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[key] == token {
		delete(l.locked, key)
		l.released++
	}
	return nil
}

type fixture struct {
	store      *memory.Store
	events     *recordingPublisher
	activation *activationUC
	validation *validationUC
	issuance   *issuanceUC
}

var testSettings = LicenseSettings{StoreTimeout: time.Second, KeyRetryLimit: 5, DefaultActivationLimit: 3}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	events := &recordingPublisher{}
	log := newTestLogger()
	return &fixture{
		store:      store,
		events:     events,
		activation: NewActivationUseCase(store, store, store, events, testSettings, log),
		validation: NewValidationUseCase(store, store, events, testSettings, log),
		issuance:   NewIssuanceUseCase(store, store, nil, events, testSettings, log),
	}
}

// seedLicense inserts an active license directly into the store.
func (f *fixture) seedLicense(t *testing.T, key, owner string, limit int, expiresAt *time.Time) *model.License {
	t.Helper()
	now := time.Now()
	lic := &model.License{
		ID:              key + "-id",
		Key:             key,
		OwnerID:         owner,
		ProductID:       "tw-mac",
		Status:          model.LicenseStatusActive,
		ActivationLimit: limit,
		ExpiresAt:       expiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := f.store.Create(context.Background(), nil, lic); err != nil {
		t.Fatalf("seed license: %v", err)
	}
	return lic
}

func (f *fixture) activeCount(t *testing.T, key string) int {
	t.Helper()
	devs, err := f.store.ListByLicense(context.Background(), nil, key)
	if err != nil {
		t.Fatalf("list devices: %v", err)
	}
	n := 0
	for _, d := range devs {
		if d.Status == model.DeviceStatusActive {
			n++
		}
	}
	return n
}
