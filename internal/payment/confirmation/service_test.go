package confirmation

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

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

func newTestService(token string, fetcher domain.StatusFetcher) *Service {
	return NewService(Params{
		Config:  config.Config{Provider: config.ProviderConfig{AccessToken: token}},
		Fetcher: fetcher,
		Log:     zap.NewNop(),
	})
}

func TestConfirmRejectsInvalidInputListingEveryField(t *testing.T) {
	fetcher := &fetcherMock{}
	svc := newTestService("token", fetcher)

	tests := []struct {
		name   string
		req    Request
		fields []string
	}{
		{name: "non numeric id", req: Request{PaymentID: "abc"}, fields: []string{"paymentId"}},
		{name: "empty id", req: Request{}, fields: []string{"paymentId"}},
		{name: "signed id", req: Request{PaymentID: "-12"}, fields: []string{"paymentId"}},
		{
			name:   "every violation reported",
			req:    Request{PaymentID: "12a", ExternalReference: strings.Repeat("x", 257)},
			fields: []string{"paymentId", "externalReference"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Confirm(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))

			verrs, ok := err.(*domain.ValidationErrors)
			require.True(t, ok)
			assert.ElementsMatch(t, tt.fields, verrs.Fields())
		})
	}
	fetcher.AssertNotCalled(t, "FetchPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmReturnsNormalizedPayment(t *testing.T) {
	fetcher := &fetcherMock{}
	fetcher.On("FetchPayment", mock.Anything, "123", "token").Return(&domain.AuthoritativePayment{
		ID:                "123",
		Status:            "approved",
		StatusDetail:      "accredited",
		TransactionAmount: 100,
		CurrencyID:        "BRL",
		ExternalReference: "user-42",
		Payer:             domain.Payer{Email: "someone@example.com"},
	}, nil)

	resp, err := newTestService("token", fetcher).Confirm(context.Background(), Request{PaymentID: " 123 "})
	require.NoError(t, err)

	assert.Equal(t, "approved", resp.Payment.Status)
	assert.Equal(t, 100.0, resp.Payment.Amount)
	assert.Equal(t, "BRL", resp.Payment.Currency)
	assert.Equal(t, "someone@example.com", resp.Payment.Payer.Email)
	assert.NotNil(t, resp.Payment.Metadata)
	assert.Nil(t, resp.ExternalReferenceMatch)
}

func TestConfirmReportsExternalReferenceMatch(t *testing.T) {
	fetcher := &fetcherMock{}
	fetcher.On("FetchPayment", mock.Anything, "123", "token").Return(&domain.AuthoritativePayment{
		ID:                "123",
		Status:            "approved",
		ExternalReference: "user-42",
	}, nil)
	svc := newTestService("token", fetcher)

	resp, err := svc.Confirm(context.Background(), Request{PaymentID: "123", ExternalReference: "user-42"})
	require.NoError(t, err)
	require.NotNil(t, resp.ExternalReferenceMatch)
	assert.True(t, *resp.ExternalReferenceMatch)

	resp, err = svc.Confirm(context.Background(), Request{PaymentID: "123", ExternalReference: "user-7"})
	require.NoError(t, err)
	require.NotNil(t, resp.ExternalReferenceMatch)
	assert.False(t, *resp.ExternalReferenceMatch)
}

func TestConfirmMissingAccessTokenIsConfigurationError(t *testing.T) {
	fetcher := &fetcherMock{}

	_, err := newTestService("", fetcher).Confirm(context.Background(), Request{PaymentID: "123"})
	assert.ErrorIs(t, err, domain.ErrMissingAccessToken)
	assert.True(t, domain.IsConfigurationError(err))
	assert.False(t, domain.IsValidationError(err))
	fetcher.AssertNotCalled(t, "FetchPayment", mock.Anything, mock.Anything, mock.Anything)
}

func TestConfirmPropagatesUpstreamClassification(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{status: http.StatusNotFound, sentinel: domain.ErrUpstreamClient},
		{status: http.StatusServiceUnavailable, sentinel: domain.ErrUpstreamTransient},
	}

	for _, tt := range tests {
		fetcher := &fetcherMock{}
		fetcher.On("FetchPayment", mock.Anything, "123", "token").
			Return(nil, domain.NewUpstreamStatusError(tt.status, []byte(`{"message":"x"}`)))

		_, err := newTestService("token", fetcher).Confirm(context.Background(), Request{PaymentID: "123"})
		assert.ErrorIs(t, err, tt.sentinel)

		upstream, ok := domain.AsUpstreamError(err)
		require.True(t, ok)
		assert.Equal(t, tt.status, upstream.StatusCode)
	}
}

func TestParseRequestListsMistypedFields(t *testing.T) {
	svc := newTestService("token", &fetcherMock{})

	_, err := svc.ParseRequest([]byte(`{"paymentId":123,"externalReference":"` + strings.Repeat("r", 300) + `"}`))
	var verrs *domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.ElementsMatch(t, []string{"paymentId", "externalReference"}, verrs.Fields())
	assert.Equal(t, "string", verrs.Errors[0].Code)
}

func TestParseRequestValidatesStrings(t *testing.T) {
	svc := newTestService("token", &fetcherMock{})

	req, err := svc.ParseRequest([]byte(`{"paymentId":" 123 ","externalReference":"user-42"}`))
	require.NoError(t, err)
	assert.Equal(t, Request{PaymentID: "123", ExternalReference: "user-42"}, req)

	_, err = svc.ParseRequest([]byte(`{}`))
	var verrs *domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"paymentId"}, verrs.Fields())

	for _, body := range []string{`[]`, `null`, `{"paymentId":`} {
		_, err = svc.ParseRequest([]byte(body))
		require.ErrorAs(t, err, &verrs, body)
		assert.Equal(t, []string{"body"}, verrs.Fields())
	}
}
