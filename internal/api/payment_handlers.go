package api

import (
	"net/http"

	"example.com/backstage/services/charity/internal/services"

	"github.com/gin-gonic/gin"
)

func (s *Server) createPaymentAccount(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.ConnectedAccountInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	account, err := s.services.Payments.CreateConnectedAccount(c.Request.Context(), eventID, actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (s *Server) createPayment(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.PaymentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	payment, err := s.services.Payments.CreatePayment(c.Request.Context(), eventID, in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payment)
}

func (s *Server) listPayments(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	payments, err := s.services.Payments.ListPayments(c.Request.Context(), eventID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (s *Server) paymentsTotal(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	total, err := s.services.Payments.Total(c.Request.Context(), eventID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total})
}
