package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apitypes "github.com/lgulliver/lodestone-upload/cmd/upload-gateway/types"
	"github.com/lgulliver/lodestone-upload/internal/middleware"
	"github.com/lgulliver/lodestone-upload/internal/upload"
	"github.com/lgulliver/lodestone-upload/pkg/utils"
	"github.com/rs/zerolog/log"
)

// UploadRoutes sets up the resumable upload protocol routes
func UploadRoutes(router gin.IRouter, uploadService UploadServiceInterface, maxChunkSize int64) {
	uploads := router.Group("/upload")

	uploads.POST("/start", handleUploadStart(uploadService))
	uploads.POST("/continue/:token",
		middleware.UploadTokenMiddleware(),
		middleware.ChunkBodyLimit(maxChunkSize),
		handleUploadContinue(uploadService, maxChunkSize),
	)
	uploads.POST("/finish/:token", middleware.UploadTokenMiddleware(), handleUploadFinish(uploadService))
	uploads.GET("/status/:token", middleware.UploadTokenMiddleware(), handleUploadStatus(uploadService))
	uploads.DELETE("/:token", middleware.UploadTokenMiddleware(), handleUploadCancel(uploadService))
}

func handleUploadStart(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req apitypes.StartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apitypes.ErrorResponse{Error: "invalid request", Details: err.Error()})
			return
		}

		snapshot, err := uploadService.Start(c.Request.Context(), req.Filename)
		if err != nil {
			writeUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, apitypes.StartResponse{UploadToken: snapshot.Token})
	}
}

func handleUploadContinue(uploadService UploadServiceInterface, maxChunkSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req apitypes.ContinueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, apitypes.ErrorResponse{Error: "chunk too large"})
				return
			}
			c.JSON(http.StatusBadRequest, apitypes.ErrorResponse{Error: "invalid request", Details: err.Error()})
			return
		}

		if len(req.Data) == 0 {
			c.JSON(http.StatusBadRequest, apitypes.ErrorResponse{Error: "empty chunk"})
			return
		}
		if int64(len(req.Data)) > maxChunkSize {
			c.JSON(http.StatusRequestEntityTooLarge, apitypes.ErrorResponse{Error: "chunk too large"})
			return
		}

		next, err := uploadService.Continue(c.Request.Context(), c.Param("token"), *req.Offset, req.Data)
		if err != nil {
			writeUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, apitypes.ContinueResponse{AcceptedThrough: next})
	}
}

func handleUploadFinish(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req apitypes.FinishRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apitypes.ErrorResponse{Error: "invalid request", Details: err.Error()})
			return
		}
		if !utils.IsHexDigest(req.SHA256) {
			c.JSON(http.StatusBadRequest, apitypes.ErrorResponse{Error: "invalid sha256"})
			return
		}

		snapshot, err := uploadService.Finish(c.Request.Context(), c.Param("token"), req.Filename, req.SHA256, *req.Size)
		if err != nil {
			writeUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, apitypes.FinishResponse{
			Status: "ok",
			Path:   snapshot.StoragePath,
			SHA256: snapshot.Digest,
			Size:   snapshot.ExpectedOffset,
		})
	}
}

func handleUploadStatus(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := uploadService.Status(c.Request.Context(), c.Param("token"))
		if err != nil {
			writeUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, snapshot)
	}
}

func handleUploadCancel(uploadService UploadServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := uploadService.Cancel(c.Request.Context(), c.Param("token")); err != nil {
			writeUploadError(c, err)
			return
		}

		c.JSON(http.StatusOK, apitypes.CancelResponse{Status: "aborted"})
	}
}

// writeUploadError maps session manager errors onto protocol responses
func writeUploadError(c *gin.Context, err error) {
	var conflict *upload.ConflictError
	if errors.As(err, &conflict) {
		c.JSON(http.StatusConflict, apitypes.ConflictResponse{
			Error:          "offset conflict",
			ExpectedOffset: conflict.Expected,
		})
		return
	}

	switch {
	case errors.Is(err, upload.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, apitypes.ErrorResponse{Error: "session not found"})
	case errors.Is(err, upload.ErrSessionClosed):
		c.JSON(http.StatusGone, apitypes.ErrorResponse{Error: "session closed"})
	case errors.Is(err, upload.ErrIncompleteUpload):
		c.JSON(http.StatusBadRequest, apitypes.ErrorResponse{Error: "incomplete", Details: err.Error()})
	case errors.Is(err, upload.ErrDigestMismatch):
		c.JSON(http.StatusUnprocessableEntity, apitypes.ErrorResponse{Error: "sha256 mismatch", Details: err.Error()})
	case errors.Is(err, upload.ErrInvalidFilename):
		c.JSON(http.StatusBadRequest, apitypes.ErrorResponse{Error: "invalid filename"})
	case errors.Is(err, upload.ErrCapacityExceeded):
		c.JSON(http.StatusServiceUnavailable, apitypes.ErrorResponse{Error: "too many upload sessions"})
	case errors.Is(err, upload.ErrIOFailure):
		c.JSON(http.StatusInternalServerError, apitypes.ErrorResponse{Error: "storage failure"})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("unexpected upload error")
		c.JSON(http.StatusInternalServerError, apitypes.ErrorResponse{Error: "internal error"})
	}
}

var _ UploadServiceInterface = (*upload.Manager)(nil)
