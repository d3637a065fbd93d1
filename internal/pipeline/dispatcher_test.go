package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/Wuchinator/deal-pipeline/internal/analytics"
	"github.com/Wuchinator/deal-pipeline/internal/deal"
	"github.com/Wuchinator/deal-pipeline/internal/outbox"
)

type mockTracker struct{ mock.Mock }

func (m *mockTracker) HandleClaimCreated(ctx context.Context, claim *deal.Claim) error {
	return m.Called(ctx, claim).Error(0)
}

type mockMonitor struct{ mock.Mock }

func (m *mockMonitor) HandleDealUpdated(ctx context.Context, before, after *deal.Deal) error {
	return m.Called(ctx, before, after).Error(0)
}

type mockEmitter struct{ mock.Mock }

func (m *mockEmitter) HandleDealWritten(ctx context.Context, after *deal.Deal) error {
	return m.Called(ctx, after).Error(0)
}

type mockDLQ struct{ mock.Mock }

func (m *mockDLQ) SendRaw(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	return m.Called(ctx, topic, key, value, headers).Error(0)
}

type DispatcherTestSuite struct {
	suite.Suite

	tracker    *mockTracker
	monitor    *mockMonitor
	emitter    *mockEmitter
	dlq        *mockDLQ
	dispatcher *Dispatcher
	dealID     uuid.UUID
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherTestSuite))
}

func (s *DispatcherTestSuite) SetupTest() {
	s.tracker = &mockTracker{}
	s.monitor = &mockMonitor{}
	s.emitter = &mockEmitter{}
	s.dlq = &mockDLQ{}
	s.dealID = uuid.New()
	s.dispatcher = NewDispatcher(s.tracker, s.monitor, s.emitter, s.dlq,
		Config{DLQTopic: "deal-events-dlq", MaxRetries: 2, Backoff: time.Millisecond}, nil, zap.NewNop())
	s.dispatcher.now = func() time.Time { return time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC) }
}

func (s *DispatcherTestSuite) TearDownTest() {
	s.tracker.AssertExpectations(s.T())
	s.monitor.AssertExpectations(s.T())
	s.emitter.AssertExpectations(s.T())
	s.dlq.AssertExpectations(s.T())
}

func (s *DispatcherTestSuite) row(claimed int) json.RawMessage {
	raw, err := json.Marshal(map[string]any{
		"id":                s.dealID,
		"title":             "Coffee",
		"currently_claimed": claimed,
		"is_active":         true,
	})
	s.Require().NoError(err)
	return raw
}

func (s *DispatcherTestSuite) envelope(eventType string, before, after json.RawMessage) *outbox.Envelope {
	return &outbox.Envelope{
		EventID:   uuid.New(),
		EventType: eventType,
		DealID:    s.dealID,
		Before:    before,
		After:     after,
	}
}

func (s *DispatcherTestSuite) TestClaimCreatedRoutesToTracker() {
	claimID := uuid.New()
	after, err := json.Marshal(map[string]any{"id": claimID, "deal_id": s.dealID, "user_id": "u1"})
	s.Require().NoError(err)

	s.tracker.On("HandleClaimCreated", mock.Anything, mock.MatchedBy(func(c *deal.Claim) bool {
		return c.ID == claimID && c.DealID == s.dealID && c.UserID == "u1" && c.Timestamp == nil
	})).Return(nil).Once()

	s.NoError(s.dispatcher.Dispatch(context.Background(), s.envelope(outbox.EventClaimCreated, nil, after)))
}

func (s *DispatcherTestSuite) TestDealCreatedRoutesToEmitterOnly() {
	s.emitter.On("HandleDealWritten", mock.Anything, mock.MatchedBy(func(d *deal.Deal) bool {
		return d.ID == s.dealID
	})).Return(nil).Once()

	s.NoError(s.dispatcher.Dispatch(context.Background(), s.envelope(outbox.EventDealCreated, nil, s.row(0))))
}

func (s *DispatcherTestSuite) TestDealDeletedPassesNilAfter() {
	s.emitter.On("HandleDealWritten", mock.Anything, (*deal.Deal)(nil)).Return(nil).Once()

	s.NoError(s.dispatcher.Dispatch(context.Background(), s.envelope(outbox.EventDealDeleted, s.row(1), nil)))
}

func (s *DispatcherTestSuite) TestDealUpdatedRunsMonitorAndEmitter() {
	s.monitor.On("HandleDealUpdated", mock.Anything,
		mock.MatchedBy(func(d *deal.Deal) bool { return d.Analytics.CurrentlyClaimed == 1 }),
		mock.MatchedBy(func(d *deal.Deal) bool { return d.Analytics.CurrentlyClaimed == 2 }),
	).Return(nil).Once()
	s.emitter.On("HandleDealWritten", mock.Anything, mock.MatchedBy(func(d *deal.Deal) bool {
		return d.Analytics.CurrentlyClaimed == 2
	})).Return(nil).Once()

	s.NoError(s.dispatcher.Dispatch(context.Background(), s.envelope(outbox.EventDealUpdated, s.row(1), s.row(2))))
}

func (s *DispatcherTestSuite) TestFailingMonitorDoesNotReplayEmitter() {
	s.monitor.On("HandleDealUpdated", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("db down")).Times(3)
	s.emitter.On("HandleDealWritten", mock.Anything, mock.Anything).Return(nil).Once()

	err := s.dispatcher.Dispatch(context.Background(), s.envelope(outbox.EventDealUpdated, s.row(1), s.row(2)))
	s.Require().Error(err)
	s.Contains(err.Error(), "monitor")
}

func (s *DispatcherTestSuite) TestTransientFailureIsRetried() {
	s.emitter.On("HandleDealWritten", mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()
	s.emitter.On("HandleDealWritten", mock.Anything, mock.Anything).Return(nil).Once()

	s.NoError(s.dispatcher.Dispatch(context.Background(), s.envelope(outbox.EventDealCreated, nil, s.row(0))))
}

func (s *DispatcherTestSuite) TestPartiallyAppliedIsNotRetried() {
	after, err := json.Marshal(map[string]any{"id": uuid.New(), "deal_id": s.dealID, "user_id": "u1"})
	s.Require().NoError(err)
	partial := errors.Join(analytics.ErrPartiallyApplied, errors.New("histogram write failed"))
	s.tracker.On("HandleClaimCreated", mock.Anything, mock.Anything).Return(partial).Once()

	err = s.dispatcher.Dispatch(context.Background(), s.envelope(outbox.EventClaimCreated, nil, after))
	s.ErrorIs(err, analytics.ErrPartiallyApplied)
}

func (s *DispatcherTestSuite) TestInvalidPayloadIsRejected() {
	err := s.dispatcher.Dispatch(context.Background(), s.envelope(outbox.EventClaimCreated, nil, json.RawMessage(`{"user_id":"u1"}`)))
	s.ErrorIs(err, deal.ErrInvalidPayload)
}

func (s *DispatcherTestSuite) TestUnknownEventIsDropped() {
	s.NoError(s.dispatcher.Dispatch(context.Background(), s.envelope("deal.archived", nil, s.row(0))))
}

func (s *DispatcherTestSuite) TestMessageHandlerDeadLettersFailures() {
	handler := s.dispatcher.CreateMessageHandler()
	env := s.envelope(outbox.EventDealCreated, nil, s.row(0))
	value, err := json.Marshal(env)
	s.Require().NoError(err)

	s.emitter.On("HandleDealWritten", mock.Anything, mock.Anything).Return(errors.New("db down")).Times(3)
	s.dlq.On("SendRaw", mock.Anything, "deal-events-dlq", s.dealID.String(), value,
		mock.MatchedBy(func(h map[string]string) bool {
			return h["event_type"] == outbox.EventDealCreated && h["failed_at"] == "2024-02-01T10:00:00Z" && h["error"] != ""
		})).Return(nil).Once()

	s.NoError(handler(context.Background(), []byte(s.dealID.String()), value))
}

func (s *DispatcherTestSuite) TestMessageHandlerDeadLettersGarbage() {
	handler := s.dispatcher.CreateMessageHandler()
	s.dlq.On("SendRaw", mock.Anything, "deal-events-dlq", "k", []byte("not json"), mock.Anything).Return(nil).Once()

	s.NoError(handler(context.Background(), []byte("k"), []byte("not json")))
}

func (s *DispatcherTestSuite) TestMessageHandlerSurfacesDLQFailure() {
	handler := s.dispatcher.CreateMessageHandler()
	s.dlq.On("SendRaw", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker gone")).Once()

	err := handler(context.Background(), []byte("k"), []byte("{}"))
	s.Require().Error(err)
	s.ErrorIs(err, outbox.ErrInvalidEnvelope)
}

func (s *DispatcherTestSuite) TestMessageHandlerWithoutDLQReturnsError() {
	d := NewDispatcher(s.tracker, s.monitor, s.emitter, nil, Config{MaxRetries: 0, Backoff: time.Millisecond}, nil, zap.NewNop())
	handler := d.CreateMessageHandler()

	err := handler(context.Background(), nil, []byte("{}"))
	s.ErrorIs(err, outbox.ErrInvalidEnvelope)
}
