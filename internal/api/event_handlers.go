package api

import (
	"net/http"
	"strconv"

	"example.com/backstage/services/charity/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// pathID parses a uuid path parameter. A malformed id cannot name an
// existing resource, so it answers 404.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		WriteError(c, ErrNotFound)
		return uuid.Nil, false
	}
	return id, true
}

// pageParam reads the optional page query parameter
func pageParam(c *gin.Context) (int, bool) {
	raw := c.Query("page")
	if raw == "" {
		return 1, true
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 0 {
		WriteError(c, NewValidationError("page", "must be a positive number"))
		return 0, false
	}
	return page, true
}

func (s *Server) createEvent(c *gin.Context) {
	var in services.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	event, err := s.services.Events.Create(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

func (s *Server) showEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	event, err := s.services.Events.Show(c.Request.Context(), eventID, actorFrom(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) updateEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	event, err := s.services.Events.Update(c.Request.Context(), eventID, actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) deleteEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.services.Events.Delete(c.Request.Context(), eventID, actorFrom(c)); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) approveEvent(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	event, err := s.services.Events.Approve(c.Request.Context(), eventID, actorFrom(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (s *Server) listDemand(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	demands, err := s.services.Demands.List(c.Request.Context(), eventID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": demands})
}

func (s *Server) createDemand(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.CreateDemandInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	demands, err := s.services.Demands.Create(c.Request.Context(), eventID, actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": demands})
}

func (s *Server) updateDemand(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.UpdateDemandInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	demands, err := s.services.Demands.Update(c.Request.Context(), eventID, actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": demands})
}

func (s *Server) search(c *gin.Context) {
	var in services.SearchInput
	if err := c.ShouldBindQuery(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	page, err := s.services.Search.Search(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) suggest(c *gin.Context) {
	suggestions, err := s.services.Search.Suggest(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": suggestions})
}

func (s *Server) deliveryOptions(c *gin.Context) {
	options, err := s.services.Search.DeliveryOptions(c.Request.Context())
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": options})
}
