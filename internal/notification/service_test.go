package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"github.com/smallbiznis/matchpay/internal/providers/push"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPush struct {
	sent []push.Notification
	err  error
}

func (p *recordingPush) Send(ctx context.Context, notification push.Notification) error {
	p.sent = append(p.sent, notification)
	return p.err
}

func processed(status, ref string, amount float64) domain.ProcessedPayment {
	return domain.ProcessedPayment{
		Topic: domain.TopicPayment,
		Payment: domain.AuthoritativePayment{
			ID:                "999",
			Status:            status,
			TransactionAmount: amount,
			ExternalReference: ref,
		},
	}
}

func TestApplySendsForApprovedPayments(t *testing.T) {
	sender := &recordingPush{}
	svc := NewService(Params{
		Push:  sender,
		Plans: config.NewStaticPlanTierHolder(config.DefaultPlansConfig()),
		Log:   zap.NewNop(),
	})

	require.NoError(t, svc.Apply(context.Background(), processed(domain.StatusApproved, "user-42", 15000)))
	require.Len(t, sender.sent, 1)

	sent := sender.sent[0]
	assert.Equal(t, "user-42", sent.UserRef)
	assert.Equal(t, "premium", sent.Data["planTier"])
	assert.Equal(t, "999", sent.Data["paymentId"])

	// same payment, same key
	require.NoError(t, svc.Apply(context.Background(), processed(domain.StatusApproved, "user-42", 15000)))
	assert.Equal(t, sent.IdempotencyKey, sender.sent[1].IdempotencyKey)
}

func TestApplySkipsUnapprovedOrAnonymousPayments(t *testing.T) {
	sender := &recordingPush{}
	svc := NewService(Params{Push: sender, Log: zap.NewNop()})

	require.NoError(t, svc.Apply(context.Background(), processed("pending", "user-42", 15000)))
	require.NoError(t, svc.Apply(context.Background(), processed(domain.StatusApproved, "", 15000)))
	assert.Empty(t, sender.sent)
}

func TestApplyReturnsSendErrors(t *testing.T) {
	sender := &recordingPush{err: errors.New("gateway down")}
	svc := NewService(Params{Push: sender, Log: zap.NewNop()})

	assert.Error(t, svc.Apply(context.Background(), processed(domain.StatusApproved, "user-42", 100)))
}
