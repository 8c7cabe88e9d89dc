package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/matchpay/internal/clock"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/smallbiznis/matchpay/internal/payment/signature"
	"github.com/smallbiznis/matchpay/internal/payment/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testSecret = "whsec_test"
	testToken  = "APP_USR-test"
)

// -- Mocks --

type fetcherMock struct {
	mock.Mock
}

func (m *fetcherMock) FetchPayment(ctx context.Context, paymentID, accessToken string) (*domain.AuthoritativePayment, error) {
	args := m.Called(ctx, paymentID, accessToken)
	res := args.Get(0)
	if res == nil {
		return nil, args.Error(1)
	}
	return res.(*domain.AuthoritativePayment), args.Error(1)
}

type memStore struct {
	mu      sync.Mutex
	records map[string]domain.MarkInput
	err     error
	calls   int
}

func newMemStore() *memStore {
	return &memStore{records: map[string]domain.MarkInput{}}
}

func (s *memStore) CheckAndMarkProcessed(_ context.Context, paymentID string, input domain.MarkInput) (domain.MarkResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if _, ok := s.records[paymentID]; ok {
		return domain.MarkResultAlreadyProcessed, nil
	}
	s.records[paymentID] = input
	return domain.MarkResultMarked, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type countingEffect struct {
	mu      sync.Mutex
	name    string
	applied []domain.ProcessedPayment
	err     error
}

func (e *countingEffect) Name() string { return e.name }

func (e *countingEffect) Apply(ctx context.Context, processed domain.ProcessedPayment) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = append(e.applied, processed)
	return e.err
}

func (e *countingEffect) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.applied)
}

// -- Harness --

type harness struct {
	service *webhook.Service
	fetcher *fetcherMock
	store   *memStore
	effect  *countingEffect
}

func newHarness(t *testing.T, secret, token string, effects ...domain.SideEffect) *harness {
	t.Helper()

	cfg := config.Config{
		Provider: config.ProviderConfig{AccessToken: token},
		Webhook:  config.WebhookConfig{Secret: secret},
	}
	log := zap.NewNop()

	h := &harness{
		fetcher: &fetcherMock{},
		store:   newMemStore(),
		effect:  &countingEffect{name: "analytics"},
	}

	handler := webhook.NewPaymentHandler(webhook.PaymentHandlerParams{
		Config:      cfg,
		Fetcher:     h.fetcher,
		Store:       h.store,
		SideEffects: append([]domain.SideEffect{h.effect}, effects...),
		Log:         log,
	})
	verifier := signature.NewVerifier(signature.Params{
		Config: cfg,
		Clock:  clock.NewFakeClock(time.Unix(1700000000, 0)),
		Log:    log,
	})
	h.service = webhook.NewService(webhook.ServiceParams{
		Verifier: verifier,
		Registry: webhook.NewDefaultRegistry(handler, log),
		Log:      log,
	})
	return h
}

func approvedPayment(id string) *domain.AuthoritativePayment {
	return &domain.AuthoritativePayment{
		ID:                id,
		Status:            domain.StatusApproved,
		StatusDetail:      "accredited",
		TransactionAmount: 15000,
		ExternalReference: "user-42",
	}
}

func signedRequest(body, paymentID string) webhook.InboundRequest {
	headers := http.Header{}
	headers.Set(signature.HeaderRequestID, "req-1")
	headers.Set(signature.HeaderSignature, "ts=1700000000,v1="+
		signature.ComputeTemplateSignature([]byte(testSecret), paymentID, "req-1", "1700000000"))
	return webhook.InboundRequest{RawBody: []byte(body), Headers: headers, Query: url.Values{}}
}

func unsignedRequest(body string) webhook.InboundRequest {
	return webhook.InboundRequest{RawBody: []byte(body), Headers: http.Header{}, Query: url.Values{}}
}

// -- Tests --

func TestReceiveDuplicateDeliveryAppliesSideEffectsOnce(t *testing.T) {
	h := newHarness(t, testSecret, testToken)
	h.fetcher.On("FetchPayment", mock.Anything, "12345", testToken).Return(approvedPayment("12345"), nil)

	body := `{"type":"payment","data":{"id":"12345"}}`

	first, err := h.service.Receive(context.Background(), signedRequest(body, "12345"))
	require.NoError(t, err)
	assert.Equal(t, webhook.StateAcknowledged, first.State)
	assert.Equal(t, webhook.OutcomeProcessed, first.Outcome)

	second, err := h.service.Receive(context.Background(), signedRequest(body, "12345"))
	require.NoError(t, err)
	assert.Equal(t, webhook.StateAcknowledged, second.State)
	assert.Equal(t, webhook.OutcomeAlreadyProcessed, second.Outcome)

	assert.Equal(t, 1, h.store.count())
	assert.Equal(t, 1, h.effect.count())
	h.fetcher.AssertNumberOfCalls(t, "FetchPayment", 2)

	applied := h.effect.applied[0]
	assert.Equal(t, "payment", applied.Topic)
	assert.Equal(t, "12345", applied.Payment.ID)
}

func TestReceiveConcurrentDeliveriesMarkOnce(t *testing.T) {
	h := newHarness(t, "", testToken)
	h.fetcher.On("FetchPayment", mock.Anything, "777", testToken).Return(approvedPayment("777"), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.service.Receive(context.Background(), unsignedRequest(`{"type":"payment","data":{"id":"777"}}`))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.store.count())
	assert.Equal(t, 1, h.effect.count())
}

func TestReceiveRejectsBadSignatureBeforeAnyWork(t *testing.T) {
	tests := []struct {
		name    string
		req     webhook.InboundRequest
		wantErr error
	}{
		{
			name:    "missing header",
			req:     unsignedRequest(`{"type":"payment","data":{"id":"12345"}}`),
			wantErr: domain.ErrMissingSignature,
		},
		{
			name:    "signature for another payment",
			req:     signedRequest(`{"type":"payment","data":{"id":"12345"}}`, "99999"),
			wantErr: domain.ErrInvalidSignature,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testSecret, testToken)

			result, err := h.service.Receive(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsAuthenticationError(err))
			assert.Equal(t, webhook.StateRejected, result.State)

			h.fetcher.AssertNotCalled(t, "FetchPayment", mock.Anything, mock.Anything, mock.Anything)
			assert.Zero(t, h.store.calls)
			assert.Zero(t, h.effect.count())
		})
	}
}

func TestReceiveWithoutSecretSkipsVerification(t *testing.T) {
	h := newHarness(t, "", testToken)
	h.fetcher.On("FetchPayment", mock.Anything, "12345", testToken).Return(approvedPayment("12345"), nil)

	result, err := h.service.Receive(context.Background(), unsignedRequest(`{"type":"payment","data":{"id":"12345"}}`))
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeProcessed, result.Outcome)
	assert.Equal(t, 1, h.store.count())
}

func TestReceiveResolvesPaymentIDFromEveryLocation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		query url.Values
	}{
		{name: "data.id", body: `{"type":"payment","data":{"id":"12345"}}`},
		{name: "numeric data.id", body: `{"type":"payment","data":{"id":12345}}`},
		{name: "top level id", body: `{"topic":"payment","id":"12345"}`},
		{name: "resource url", body: `{"topic":"payment","resource":"https://api.mercadopago.com/v1/payments/12345"}`},
		{name: "query data.id", body: ``, query: url.Values{"type": {"payment"}, "data.id": {"12345"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "", testToken)
			h.fetcher.On("FetchPayment", mock.Anything, "12345", testToken).Return(approvedPayment("12345"), nil)

			req := unsignedRequest(tt.body)
			if tt.query != nil {
				req.Query = tt.query
			}

			result, err := h.service.Receive(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, "12345", result.PaymentID)
			assert.Equal(t, webhook.OutcomeProcessed, result.Outcome)
			h.fetcher.AssertCalled(t, "FetchPayment", mock.Anything, "12345", testToken)
		})
	}
}

func TestReceiveAcknowledgesNonPaymentTopicsWithoutWork(t *testing.T) {
	for _, body := range []string{
		`{"topic":"merchant_order","resource":"https://api.mercadopago.com/merchant_orders/1"}`,
		`{"type":"chargebacks","data":{"id":"12345"}}`,
	} {
		h := newHarness(t, "", testToken)

		result, err := h.service.Receive(context.Background(), unsignedRequest(body))
		require.NoError(t, err)
		assert.Equal(t, webhook.StateAcknowledged, result.State)
		assert.Equal(t, webhook.OutcomeIgnoredTopic, result.Outcome)

		h.fetcher.AssertNotCalled(t, "FetchPayment", mock.Anything, mock.Anything, mock.Anything)
		assert.Zero(t, h.store.calls)
	}
}

func TestReceiveAcknowledgesUnresolvedPaymentID(t *testing.T) {
	h := newHarness(t, "", testToken)

	result, err := h.service.Receive(context.Background(), unsignedRequest(`{"type":"payment","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, webhook.StateAcknowledged, result.State)
	assert.Equal(t, webhook.OutcomeUnresolvedID, result.Outcome)
	h.fetcher.AssertNotCalled(t, "FetchPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestReceiveAcknowledgesUnparseableBodyAfterVerification(t *testing.T) {
	h := newHarness(t, "", testToken)

	result, err := h.service.Receive(context.Background(), unsignedRequest(`not json`))
	require.NoError(t, err)
	assert.Equal(t, webhook.StateAcknowledged, result.State)
	assert.Equal(t, webhook.OutcomeInvalidPayload, result.Outcome)
}

func TestReceiveFetchFailures(t *testing.T) {
	tests := []struct {
		name      string
		fetchErr  error
		outcome   webhook.Outcome
		wantErr   error
		wantState webhook.State
	}{
		{
			name:      "provider unavailable is retried",
			fetchErr:  domain.NewUpstreamStatusError(http.StatusServiceUnavailable, nil),
			outcome:   webhook.OutcomeFetchFailed,
			wantErr:   domain.ErrUpstreamTransient,
			wantState: webhook.StateFailed,
		},
		{
			name:      "network failure is retried",
			fetchErr:  domain.NewUpstreamTransportError(errors.New("connection reset")),
			outcome:   webhook.OutcomeFetchFailed,
			wantErr:   domain.ErrUpstreamTransient,
			wantState: webhook.StateFailed,
		},
		{
			name:      "unknown payment is acknowledged",
			fetchErr:  domain.NewUpstreamStatusError(http.StatusNotFound, []byte(`{"message":"not found"}`)),
			outcome:   webhook.OutcomeFetchRejected,
			wantState: webhook.StateAcknowledged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "", testToken)
			h.fetcher.On("FetchPayment", mock.Anything, "12345", testToken).Return(nil, tt.fetchErr)

			result, err := h.service.Receive(context.Background(), unsignedRequest(`{"type":"payment","data":{"id":"12345"}}`))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.outcome, result.Outcome)
			assert.Equal(t, tt.wantState, result.State)
			assert.Zero(t, h.store.calls)
			assert.Zero(t, h.effect.count())
		})
	}
}

func TestReceiveMissingAccessTokenIsConfigurationError(t *testing.T) {
	h := newHarness(t, "", "")
	h.fetcher.On("FetchPayment", mock.Anything, "12345", "").Return(nil, domain.ErrMissingAccessToken)

	result, err := h.service.Receive(context.Background(), unsignedRequest(`{"type":"payment","data":{"id":"12345"}}`))
	assert.True(t, domain.IsConfigurationError(err))
	assert.Equal(t, webhook.OutcomeMisconfigured, result.Outcome)
	assert.Zero(t, h.store.calls)
}

func TestReceiveStoreFailureIsRetried(t *testing.T) {
	h := newHarness(t, "", testToken)
	h.fetcher.On("FetchPayment", mock.Anything, "12345", testToken).Return(approvedPayment("12345"), nil)
	h.store.err = errors.New("database is down")

	result, err := h.service.Receive(context.Background(), unsignedRequest(`{"type":"payment","data":{"id":"12345"}}`))
	assert.ErrorIs(t, err, webhook.ErrStoreUnavailable)
	assert.Equal(t, webhook.OutcomeStoreFailed, result.Outcome)
	assert.Equal(t, webhook.StateFailed, result.State)
	assert.Zero(t, h.effect.count())
}

func TestReceiveSideEffectFailureKeepsOutcome(t *testing.T) {
	failing := &countingEffect{name: "entitlement", err: errors.New("boom")}
	h := newHarness(t, "", testToken, failing)
	h.fetcher.On("FetchPayment", mock.Anything, "12345", testToken).Return(approvedPayment("12345"), nil)

	result, err := h.service.Receive(context.Background(), unsignedRequest(`{"type":"payment","data":{"id":"12345"}}`))
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeProcessed, result.Outcome)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, h.effect.count())
}

func TestReceiveSideEffectsSurviveCancelledRequest(t *testing.T) {
	h := newHarness(t, "", testToken)
	h.fetcher.On("FetchPayment", mock.Anything, "12345", testToken).Return(approvedPayment("12345"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	effect := &ctxEffect{cancel: cancel}
	handler := webhook.NewPaymentHandler(webhook.PaymentHandlerParams{
		Config:      config.Config{Provider: config.ProviderConfig{AccessToken: testToken}},
		Fetcher:     h.fetcher,
		Store:       newMemStore(),
		SideEffects: []domain.SideEffect{effect, &countingEffect{name: "zz-last"}},
		Log:         zap.NewNop(),
	})

	outcome, err := handler.Handle(ctx, webhook.Event{
		Topic:      domain.TopicPayment,
		Resolution: webhook.Found{ID: "12345", Source: webhook.SourceDataID},
	})
	require.NoError(t, err)
	assert.Equal(t, webhook.OutcomeProcessed, outcome)
	assert.NoError(t, effect.seenErr)
}

// ctxEffect cancels the request context and records whether the context
// it was handed was cancelled with it.
type ctxEffect struct {
	cancel  context.CancelFunc
	seenErr error
}

func (e *ctxEffect) Name() string { return "aa-first" }

func (e *ctxEffect) Apply(ctx context.Context, _ domain.ProcessedPayment) error {
	e.cancel()
	e.seenErr = ctx.Err()
	return nil
}

func TestDefaultRegistryTopics(t *testing.T) {
	registry := webhook.NewDefaultRegistry(webhook.NewPaymentHandler(webhook.PaymentHandlerParams{Log: zap.NewNop()}), zap.NewNop())
	assert.Equal(t, []string{"merchant_order", "payment", "payments"}, registry.Topics())
}

func TestNewServiceLogsRegisteredTopics(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	registry := webhook.NewDefaultRegistry(webhook.NewPaymentHandler(webhook.PaymentHandlerParams{Log: zap.NewNop()}), zap.NewNop())

	webhook.NewService(webhook.ServiceParams{Registry: registry, Log: zap.New(core)})

	entries := logs.FilterMessage("webhook topics registered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"merchant_order", "payment", "payments"}, entries[0].ContextMap()["topics"])
}
