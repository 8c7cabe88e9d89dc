package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/matchpay/internal/observability/context"
	obslogger "github.com/smallbiznis/matchpay/internal/observability/logger"
	"github.com/smallbiznis/matchpay/internal/payment/confirmation"
)

const maxConfirmBodyBytes = 64 << 10

type confirmPaymentResponse struct {
	*confirmation.Response
	RequestID string `json:"requestId"`
}

func (s *Server) ConfirmPayment(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxConfirmBodyBytes))
	if err != nil {
		AbortWithError(c, bodyReadError(err))
		return
	}

	req, err := s.confirmation.ParseRequest(body)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(obscontext.GinPaymentIDKey, req.PaymentID)

	resp, err := s.confirmation.Confirm(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, confirmPaymentResponse{
		Response:  resp,
		RequestID: obslogger.RequestID(c),
	})
}
