package confirmation

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/matchpay/internal/config"
	"github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Request is the body of a synchronous confirmation call.
type Request struct {
	PaymentID         string `json:"paymentId" validate:"required,number,max=64"`
	ExternalReference string `json:"externalReference,omitempty" validate:"omitempty,max=256"`
}

// Payment is the stable subset of the provider payment returned to callers.
type Payment struct {
	ID                string         `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"statusDetail"`
	Amount            float64        `json:"amount"`
	Currency          string         `json:"currency"`
	PaymentMethodID   string         `json:"paymentMethodId"`
	DateApproved      *time.Time     `json:"dateApproved"`
	ExternalReference string         `json:"externalReference"`
	Payer             domain.Payer   `json:"payer"`
	Metadata          map[string]any `json:"metadata"`
}

type Response struct {
	Payment Payment `json:"payment"`
	// ExternalReferenceMatch is only set when the caller sent a reference.
	ExternalReferenceMatch *bool `json:"externalReferenceMatch,omitempty"`
}

type Params struct {
	fx.In

	Config  config.Config
	Fetcher domain.StatusFetcher
	Log     *zap.Logger
}

type Service struct {
	accessToken string
	fetcher     domain.StatusFetcher
	validate    *validator.Validate
	log         *zap.Logger
}

func NewService(p Params) *Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		accessToken: strings.TrimSpace(p.Config.Provider.AccessToken),
		fetcher:     p.Fetcher,
		validate:    newValidator(),
		log:         log.Named("payment.confirmation"),
	}
}

// Confirm validates the request, fetches the payment from the provider and
// returns its normalized form. Provider failures come back as
// *domain.UpstreamError so callers can map them to distinct statuses.
func (s *Service) Confirm(ctx context.Context, req Request) (*Response, error) {
	req.PaymentID = strings.TrimSpace(req.PaymentID)
	req.ExternalReference = strings.TrimSpace(req.ExternalReference)

	if err := s.Validate(req); err != nil {
		return nil, err
	}
	if s.accessToken == "" {
		return nil, domain.ErrMissingAccessToken
	}

	log := logger.WithPayment(logger.WithContext(ctx, s.log), req.PaymentID)

	payment, err := s.fetcher.FetchPayment(ctx, req.PaymentID, s.accessToken)
	if err != nil {
		log.Warn("payment confirmation fetch failed", zap.Error(err))
		return nil, err
	}

	resp := &Response{Payment: normalize(payment)}
	if req.ExternalReference != "" {
		match := req.ExternalReference == payment.ExternalReference
		resp.ExternalReferenceMatch = &match
		if !match {
			log.Warn("payment confirmation external reference mismatch")
		}
	}

	log.Info("payment confirmed", zap.String("status", payment.Status))
	return resp, nil
}

// Validate reports every violated field, not only the first one.
func (s *Service) Validate(req Request) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verrs := &domain.ValidationErrors{}
	for _, fe := range fieldErrs {
		verrs.Add(fe.Field(), fe.Tag(), messageFor(fe))
	}
	return verrs.ErrOrNil()
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "number":
		return "must contain only digits"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func normalize(p *domain.AuthoritativePayment) Payment {
	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Payment{
		ID:                p.ID,
		Status:            p.Status,
		StatusDetail:      p.StatusDetail,
		Amount:            p.TransactionAmount,
		Currency:          p.CurrencyID,
		PaymentMethodID:   p.PaymentMethodID,
		DateApproved:      p.DateApproved,
		ExternalReference: p.ExternalReference,
		Payer:             p.Payer,
		Metadata:          metadata,
	}
}
