package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
)

type notifierCall struct {
	method      string
	id          uuid.UUID
	recipientID uuid.UUID
}

// mockNotifier records every dispatch.
type mockNotifier struct {
	calls []notifierCall
	err   error
}

func (m *mockNotifier) SendStatusUpdate(ctx context.Context, applicationID uuid.UUID, newStatus, previousStatus string) (*db.Notification, error) {
	m.calls = append(m.calls, notifierCall{method: "status", id: applicationID})
	return nil, m.err
}

func (m *mockNotifier) SendNewApplication(ctx context.Context, applicationID uuid.UUID) (*db.Notification, error) {
	m.calls = append(m.calls, notifierCall{method: "new_application", id: applicationID})
	return nil, m.err
}

func (m *mockNotifier) SendApplicationWithdrawal(ctx context.Context, applicationID uuid.UUID) (*db.Notification, error) {
	m.calls = append(m.calls, notifierCall{method: "withdrawal", id: applicationID})
	return nil, m.err
}

func (m *mockNotifier) SendJobPosted(ctx context.Context, jobID, recipientID uuid.UUID) (*db.Notification, error) {
	m.calls = append(m.calls, notifierCall{method: "job_posted", id: jobID, recipientID: recipientID})
	return nil, m.err
}

func (m *mockNotifier) SendDeadlineReminder(ctx context.Context, jobID, recipientID uuid.UUID, deadline time.Time) (*db.Notification, error) {
	m.calls = append(m.calls, notifierCall{method: "deadline", id: jobID, recipientID: recipientID})
	return nil, m.err
}

func (m *mockNotifier) SendProfileView(ctx context.Context, recipientID uuid.UUID, viewerID *uuid.UUID, viewerKind, viewerName string) (*db.Notification, error) {
	m.calls = append(m.calls, notifierCall{method: "profile_view", recipientID: recipientID})
	return nil, m.err
}

// mockDeduper reserves in memory.
type mockDeduper struct {
	seen     map[string]bool
	released []string
}

func newMockDeduper() *mockDeduper {
	return &mockDeduper{seen: make(map[string]bool)}
}

func (m *mockDeduper) Reserve(ctx context.Context, eventID string) (bool, error) {
	if m.seen[eventID] {
		return false, nil
	}
	m.seen[eventID] = true
	return true, nil
}

func (m *mockDeduper) Release(ctx context.Context, eventID string) error {
	delete(m.seen, eventID)
	m.released = append(m.released, eventID)
	return nil
}

func newTestConsumer(notifier Notifier, dedup Deduper) *Consumer {
	return &Consumer{
		notifier: notifier,
		dedup:    dedup,
		logger:   zap.NewNop(),
	}
}

func TestHandle_StatusChanged(t *testing.T) {
	notifier := &mockNotifier{}
	c := newTestConsumer(notifier, nil)

	appID := uuid.New()
	err := c.Handle(context.Background(), &Event{
		ID:            "evt-1",
		Type:          EventStatusChanged,
		ApplicationID: appID.String(),
		NewStatus:     "shortlisted",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.calls) != 1 || notifier.calls[0].method != "status" || notifier.calls[0].id != appID {
		t.Fatalf("unexpected calls: %+v", notifier.calls)
	}
}

func TestHandle_JobPostedFanOut(t *testing.T) {
	notifier := &mockNotifier{}
	c := newTestConsumer(notifier, nil)

	jobID := uuid.New()
	a, b := uuid.New(), uuid.New()

	err := c.Handle(context.Background(), &Event{
		ID:           "evt-2",
		Type:         EventJobPosted,
		JobID:        jobID.String(),
		RecipientIDs: []string{a.String(), "garbage", b.String()},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Invalid recipient ids are skipped, valid ones notified.
	if len(notifier.calls) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifier.calls))
	}
	for _, call := range notifier.calls {
		if call.method != "job_posted" || call.id != jobID {
			t.Errorf("unexpected call: %+v", call)
		}
	}
}

func TestHandle_DeadlineRequiresDeadline(t *testing.T) {
	notifier := &mockNotifier{}
	c := newTestConsumer(notifier, nil)

	err := c.Handle(context.Background(), &Event{
		ID:    "evt-3",
		Type:  EventDeadlineApproaching,
		JobID: uuid.NewString(),
	})
	if err == nil {
		t.Fatal("deadline event without a deadline should fail")
	}
	if len(notifier.calls) != 0 {
		t.Fatal("no notification should be sent")
	}
}

func TestHandle_ProfileViewed(t *testing.T) {
	notifier := &mockNotifier{}
	c := newTestConsumer(notifier, nil)

	viewed := uuid.New()
	err := c.Handle(context.Background(), &Event{
		ID:         "evt-4",
		Type:       EventProfileViewed,
		ViewedID:   viewed.String(),
		ViewerKind: "organization",
		ViewerName: "Acme",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.calls) != 1 || notifier.calls[0].recipientID != viewed {
		t.Fatalf("unexpected calls: %+v", notifier.calls)
	}
}

func TestHandle_InvalidIDs(t *testing.T) {
	notifier := &mockNotifier{}
	c := newTestConsumer(notifier, nil)

	err := c.Handle(context.Background(), &Event{
		ID:            "evt-5",
		Type:          EventStatusChanged,
		ApplicationID: "not-a-uuid",
	})
	if err == nil {
		t.Fatal("invalid application id should fail")
	}
}

func TestHandle_UnknownTypeSkipped(t *testing.T) {
	notifier := &mockNotifier{}
	c := newTestConsumer(notifier, nil)

	err := c.Handle(context.Background(), &Event{ID: "evt-6", Type: "salary_adjusted"})
	if err != nil {
		t.Fatalf("unknown types should be acknowledged, got %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Fatal("unknown types should not dispatch")
	}
}

func TestHandle_Dedup(t *testing.T) {
	notifier := &mockNotifier{}
	dedup := newMockDeduper()
	c := newTestConsumer(notifier, dedup)

	event := &Event{
		ID:            "evt-7",
		Type:          EventStatusChanged,
		ApplicationID: uuid.NewString(),
		NewStatus:     "rejected",
	}

	if err := c.Handle(context.Background(), event); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := c.Handle(context.Background(), event); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	if len(notifier.calls) != 1 {
		t.Fatalf("redelivery should be suppressed, got %d dispatches", len(notifier.calls))
	}
}

func TestHandle_FailureReleasesReservation(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("directory down")}
	dedup := newMockDeduper()
	c := newTestConsumer(notifier, dedup)

	event := &Event{
		ID:            "evt-8",
		Type:          EventStatusChanged,
		ApplicationID: uuid.NewString(),
		NewStatus:     "rejected",
	}

	if err := c.Handle(context.Background(), event); err == nil {
		t.Fatal("expected handling to fail")
	}
	if len(dedup.released) != 1 || dedup.released[0] != "evt-8" {
		t.Fatalf("failed handling should release the reservation: %+v", dedup.released)
	}

	// Redelivery after the failure goes through.
	notifier.err = nil
	if err := c.Handle(context.Background(), event); err != nil {
		t.Fatalf("redelivery after failure should succeed: %v", err)
	}
	if len(notifier.calls) != 2 {
		t.Fatalf("expected 2 dispatch attempts, got %d", len(notifier.calls))
	}
}
