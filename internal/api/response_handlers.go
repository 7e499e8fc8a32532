package api

import (
	"io"
	"net/http"

	"example.com/backstage/services/charity/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

func (s *Server) respondVolunteer(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	slotID, ok := pathID(c, "slot_id")
	if !ok {
		return
	}

	// An empty body pledges a single volunteer
	var in services.RespondVolunteerInput
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		WriteError(c, bindError(err))
		return
	}

	response, err := s.services.Responses.RespondVolunteer(c.Request.Context(), eventID, slotID, actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response)
}

func (s *Server) respondSupply(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.RespondSupplyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	results, err := s.services.Responses.RespondSupply(c.Request.Context(), eventID, actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}

	status := http.StatusOK
	for _, result := range results {
		if result.Status == services.SupplyCreated {
			status = http.StatusCreated
			break
		}
	}
	c.JSON(status, gin.H{"data": results})
}

func (s *Server) confirmVolunteer(c *gin.Context) {
	s.confirm(c, services.PurposeVolunteerConfirm)
}

func (s *Server) confirmSupply(c *gin.Context) {
	s.confirm(c, services.PurposeSupplyConfirm)
}

// confirm resolves an emailed token. The token identifies the user, so no
// bearer token is needed.
func (s *Server) confirm(c *gin.Context, purpose string) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	confirmed, err := s.services.Responses.ConfirmResponse(c.Request.Context(), eventID, c.Param("token"), purpose)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"confirmed": confirmed})
}

func (s *Server) approveVolunteerResponse(c *gin.Context) {
	responseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.services.Responses.ApproveResponse(c.Request.Context(), responseID, actorFrom(c)); err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": responseID, "status": "approved"})
}

func (s *Server) markParcelSent(c *gin.Context) {
	responseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.services.Responses.MarkParcelSent(c.Request.Context(), responseID, actorFrom(c)); err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": responseID, "status": "sent"})
}

func (s *Server) markParcelReceived(c *gin.Context) {
	responseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.services.Responses.MarkParcelReceived(c.Request.Context(), responseID, actorFrom(c)); err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": responseID, "status": "received"})
}
