package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campuseats/campuseats-backend/pkg/config"
	"github.com/campuseats/campuseats-backend/pkg/db/models"
	"github.com/campuseats/campuseats-backend/pkg/enums"
	"github.com/campuseats/campuseats-backend/pkg/logger"
)

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	fetchErr  error
}

func (f *fakeRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeRepo) MarkPublished(id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailed(id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

type publishedMessage struct {
	channel string
	payload any
}

type fakePublisher struct {
	messages []publishedMessage
	failOn   map[string]error
	pingErr  error
}

func (f *fakePublisher) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, payload any) error {
	if err, ok := f.failOn[channel]; ok {
		return err
	}
	f.messages = append(f.messages, publishedMessage{channel: channel, payload: payload})
	return nil
}

func (f *fakePublisher) EventChannel(eventType string) string {
	return "ce:events:" + eventType
}

func testService(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-test", Output: io.Discard}),
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func outboxEvent(eventType enums.OutboxEventType) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     time.Now(),
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	first := outboxEvent(enums.EventTransferInitiated)
	second := outboxEvent(enums.EventTransferConfirmed)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{}
	svc := testService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected 2 published messages got %d", len(pub.messages))
	}
	if pub.messages[0].channel != "ce:events:transfer.initiated" {
		t.Fatalf("unexpected channel %q", pub.messages[0].channel)
	}
	if len(repo.published) != 2 || repo.published[0] != first.ID {
		t.Fatalf("expected both events marked published in order, got %v", repo.published)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("expected no failures, got %v", repo.failed)
	}
}

func TestProcessBatchMarksFailureAndContinues(t *testing.T) {
	failing := outboxEvent(enums.EventOrderExpired)
	healthy := outboxEvent(enums.EventTransferConfirmed)
	repo := &fakeRepo{events: []models.OutboxEvent{failing, healthy}}
	pub := &fakePublisher{failOn: map[string]error{
		"ce:events:order.expired": errors.New("connection reset"),
	}}
	svc := testService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != failing.ID {
		t.Fatalf("expected failing event marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != healthy.ID {
		t.Fatalf("expected healthy event still published, got %v", repo.published)
	}
}

func TestProcessBatchEmpty(t *testing.T) {
	repo := &fakeRepo{}
	svc := testService(t, repo, &fakePublisher{})

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatal("empty batch must not report processed")
	}
}

func TestRunFailsWhenPublisherUnreachable(t *testing.T) {
	repo := &fakeRepo{}
	pub := &fakePublisher{pingErr: errors.New("dial tcp: refused")}
	svc := testService(t, repo, pub)

	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected run to fail when publisher ping fails")
	}
}

func TestNewServiceDefaults(t *testing.T) {
	svc := testService(t, &fakeRepo{}, &fakePublisher{})
	if svc.batchSize != defaultBatchSize {
		t.Fatalf("unexpected batch size %d", svc.batchSize)
	}
	if svc.pollInterval != defaultPollInterval {
		t.Fatalf("unexpected poll interval %v", svc.pollInterval)
	}
	if svc.maxAttempts != defaultMaxAttempts {
		t.Fatalf("unexpected max attempts %d", svc.maxAttempts)
	}
}

func TestNextBackoffCapped(t *testing.T) {
	base := 500 * time.Millisecond
	got := nextBackoff(0, base, maxBackoff)
	if got != time.Second {
		t.Fatalf("expected doubled base, got %v", got)
	}
	if got := nextBackoff(8*time.Second, base, maxBackoff); got != maxBackoff {
		t.Fatalf("expected cap at %v, got %v", maxBackoff, got)
	}
}
