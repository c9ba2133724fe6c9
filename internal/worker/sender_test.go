package worker

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/talentpool/herald/internal/db"
)

// channelSender only supports one channel.
type channelSender struct {
	channel string
	calls   int
	err     error
}

func (s *channelSender) Send(ctx context.Context, e *db.Escalation) error {
	s.calls++
	return s.err
}

func (s *channelSender) SupportsChannel(channel string) bool {
	return channel == s.channel
}

func TestMultiSender_RoutesByChannel(t *testing.T) {
	email := &channelSender{channel: db.ChannelEmail}
	sms := &channelSender{channel: db.ChannelSMS}
	multi := NewMultiSender(zap.NewNop(), email, sms)

	e := testEscalation()
	e.Channel = db.ChannelSMS

	if err := multi.Send(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sms.calls != 1 || email.calls != 0 {
		t.Fatalf("routed to wrong sender: email=%d sms=%d", email.calls, sms.calls)
	}
}

func TestMultiSender_NoSenderForChannel(t *testing.T) {
	multi := NewMultiSender(zap.NewNop(), &channelSender{channel: db.ChannelEmail})

	e := testEscalation()
	e.Channel = db.ChannelSMS

	if err := multi.Send(context.Background(), e); err == nil {
		t.Fatal("expected error for unsupported channel")
	}
}

func TestMultiSender_PropagatesError(t *testing.T) {
	wantErr := errors.New("ses throttled")
	multi := NewMultiSender(zap.NewNop(), &channelSender{channel: db.ChannelEmail, err: wantErr})

	if err := multi.Send(context.Background(), testEscalation()); !errors.Is(err, wantErr) {
		t.Fatalf("expected sender error, got %v", err)
	}
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(zap.NewNop())

	if !s.SupportsChannel(db.ChannelEmail) || !s.SupportsChannel(db.ChannelSMS) {
		t.Error("log sender should cover both channels")
	}
	if s.SupportsChannel("pigeon") {
		t.Error("unknown channels should not be supported")
	}
	if err := s.Send(context.Background(), testEscalation()); err != nil {
		t.Fatalf("log sender should never fail: %v", err)
	}
}
