package api

import (
	"net/http"
	"strconv"

	"example.com/backstage/services/charity/internal/services"

	"github.com/gin-gonic/gin"
)

func (s *Server) listComments(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, ok := pageParam(c)
	if !ok {
		return
	}

	comments, err := s.services.Engagement.ListComments(c.Request.Context(), eventID, page)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (s *Server) createComment(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.CommentInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	comment, err := s.services.Engagement.AddComment(c.Request.Context(), eventID, actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (s *Server) deleteComment(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	commentID, ok := pathID(c, "comment_id")
	if !ok {
		return
	}

	if err := s.services.Engagement.DeleteComment(c.Request.Context(), eventID, commentID, actorFrom(c)); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) toggleLike(c *gin.Context) {
	commentID, ok := pathID(c, "comment_id")
	if !ok {
		return
	}

	liked, err := s.services.Engagement.ToggleLike(c.Request.Context(), commentID, actorFrom(c))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

func (s *Server) listUpdates(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, ok := pageParam(c)
	if !ok {
		return
	}

	updates, err := s.services.Engagement.ListUpdates(c.Request.Context(), eventID, page)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, updates)
}

func (s *Server) createUpdate(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in services.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	update, err := s.services.Engagement.CreateUpdate(c.Request.Context(), eventID, actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, update)
}

func (s *Server) showUpdate(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	updateID, ok := pathID(c, "update_id")
	if !ok {
		return
	}

	update, err := s.services.Engagement.GetUpdate(c.Request.Context(), eventID, updateID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, update)
}

func (s *Server) editUpdate(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	updateID, ok := pathID(c, "update_id")
	if !ok {
		return
	}
	var in services.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		WriteError(c, bindError(err))
		return
	}

	update, err := s.services.Engagement.EditUpdate(c.Request.Context(), eventID, updateID, actorFrom(c), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, update)
}

func (s *Server) deleteUpdate(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	updateID, ok := pathID(c, "update_id")
	if !ok {
		return
	}

	if err := s.services.Engagement.DeleteUpdate(c.Request.Context(), eventID, updateID, actorFrom(c)); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) uploadImage(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		WriteError(c, NewValidationError("file", "is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		WriteError(c, NewValidationError("file", "could not be read"))
		return
	}
	defer file.Close()

	isPreview, _ := strconv.ParseBool(c.PostForm("is_preview"))
	image, err := s.services.Media.Upload(c.Request.Context(), eventID, actorFrom(c), services.ImageUpload{
		FileName:  header.Filename,
		Title:     c.PostForm("title"),
		IsPreview: isPreview,
		File:      file,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, image)
}

func (s *Server) setPreviewImage(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	imageID, ok := pathID(c, "image_id")
	if !ok {
		return
	}

	if err := s.services.Media.SetPreview(c.Request.Context(), eventID, imageID, actorFrom(c)); err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": imageID, "is_preview": true})
}

func (s *Server) deleteImage(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}
	imageID, ok := pathID(c, "image_id")
	if !ok {
		return
	}

	if err := s.services.Media.Delete(c.Request.Context(), eventID, imageID, actorFrom(c)); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
