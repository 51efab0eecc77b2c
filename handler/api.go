package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"narration-pipeline/dto"
	"narration-pipeline/service"
)

// RegisterRoutes mounts the admin audio API. Authentication is handled by
// the gateway in front of this service; the actor id arrives as a header.
func RegisterRoutes(r *gin.Engine, deps ServiceDependencies) {
	api := r.Group("/api/v1/audio")

	api.POST("/upload", uploadAudio(deps))
	api.GET("/files", listFiles(deps))
	api.GET("/files/:id", getFile(deps))
	api.POST("/files/:id/process", processFile(deps))
	api.POST("/files/:id/cut", cutFile(deps))
	api.DELETE("/files/:id", deleteFile(deps))
	api.GET("/files/:id/segments", listSegments(deps))
	api.PUT("/segments/:id", updateSegment(deps))
	api.DELETE("/segments/:id", deleteSegment(deps))
	api.POST("/mappings", createMapping(deps))
	api.POST("/mappings/:id/publish", publishMapping(deps))
	api.DELETE("/mappings/:id", deleteMapping(deps))
	api.GET("/units/:id/published", resolvePublished(deps))
}

func actorId(c *gin.Context) uuid.UUID {
	id, err := uuid.Parse(c.GetHeader("X-Actor-Id"))
	if err != nil {
		return uuid.Nil
	}
	return id
}

func pathId(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps the service error taxonomy to HTTP statuses. The
// caller always gets a definitive payload; pipeline detail beyond the
// truncated message stays server-side.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyProcessing):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrProcessingFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func uploadAudio(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		bookId, err := uuid.Parse(c.PostForm("book_id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "book_id is required"})
			return
		}

		input := service.IngestInput{
			ActorId:   actorId(c),
			BookId:    bookId,
			Filename:  fileHeader.Filename,
			SizeBytes: fileHeader.Size,
		}
		if v, err := strconv.Atoi(c.PostForm("page_start")); err == nil {
			input.PageStart = &v
		}
		if v, err := strconv.Atoi(c.PostForm("page_end")); err == nil {
			input.PageEnd = &v
		}

		localPath := filepath.Join(os.TempDir(), uuid.New().String())
		if err := c.SaveUploadedFile(fileHeader, localPath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to spool upload"})
			return
		}
		defer os.Remove(localPath)
		input.LocalPath = localPath

		out, err := deps.Library.Ingest(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

func listFiles(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := deps.Library.ListFiles(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func getFile(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		out, err := deps.Library.GetFile(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func processFile(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := deps.Pipeline.Process(c.Request.Context(), dto.ProcessMessage{
			AudioFileId: id,
			ActorId:     actorId(c),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func cutFile(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		result, err := deps.Pipeline.Cut(c.Request.Context(), dto.CutMessage{
			AudioFileId: id,
			ActorId:     actorId(c),
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func deleteFile(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := deps.Library.DeleteFile(c.Request.Context(), actorId(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "audio file deleted"})
	}
}

func listSegments(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		out, err := deps.Library.ListSegments(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func updateSegment(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var update dto.SegmentUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
			return
		}
		out, err := deps.Library.UpdateSegment(c.Request.Context(), actorId(c), id, update)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func deleteSegment(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := deps.Library.DeleteSegment(c.Request.Context(), actorId(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "segment deleted"})
	}
}

func createMapping(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input dto.MappingCreate
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text_unit_id and audio_segment_id are required"})
			return
		}
		out, err := deps.Mappings.CreateMapping(c.Request.Context(), actorId(c), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, out)
	}
}

func publishMapping(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		out, err := deps.Mappings.PublishMapping(c.Request.Context(), actorId(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func deleteMapping(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := deps.Mappings.DeleteMapping(c.Request.Context(), actorId(c), id); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "mapping deleted"})
	}
}

func resolvePublished(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		segment, err := deps.Mappings.ResolvePublished(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, segment)
	}
}
