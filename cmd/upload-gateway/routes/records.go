package routes

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apitypes "github.com/lgulliver/lodestone-upload/cmd/upload-gateway/types"
	"github.com/lgulliver/lodestone-upload/internal/common"
	"github.com/lgulliver/lodestone-upload/internal/middleware"
	"github.com/lgulliver/lodestone-upload/pkg/types"
	"github.com/rs/zerolog/log"
)

const maxRecordPageSize = 500

// RecordRoutes exposes the ledger of finished and aborted uploads
func RecordRoutes(router gin.IRouter, recordService RecordServiceInterface) {
	records := router.Group("/upload/records")

	records.GET("", handleListRecords(recordService))
	records.GET("/stats", handleRecordStats(recordService))
	records.GET("/:token", middleware.UploadTokenMiddleware(), handleGetRecord(recordService))
}

func handleListRecords(recordService RecordServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit <= 0 || limit > maxRecordPageSize {
			limit = 50
		}
		if offset < 0 {
			offset = 0
		}

		filter := &types.UploadRecordFilter{
			Status:   types.UploadStatus(c.Query("status")),
			Filename: c.Query("filename"),
			Limit:    limit,
			Offset:   offset,
		}

		records, total, err := recordService.ListUploads(c.Request.Context(), filter)
		if err != nil {
			log.Error().Err(err).Msg("failed to list upload records")
			c.JSON(http.StatusInternalServerError, apitypes.ErrorResponse{Error: "failed to list upload records"})
			return
		}

		c.JSON(http.StatusOK, apitypes.PaginatedResponse{
			Data:       records,
			TotalCount: total,
			Page:       (offset / limit) + 1,
			PageSize:   limit,
		})
	}
}

func handleRecordStats(recordService RecordServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		var since *time.Time
		if window := c.Query("window"); window != "" {
			d, err := time.ParseDuration(window)
			if err != nil || d <= 0 {
				c.JSON(http.StatusBadRequest, apitypes.ErrorResponse{Error: "invalid window", Details: "expected a positive duration such as 24h"})
				return
			}
			t := time.Now().Add(-d)
			since = &t
		}

		stats, err := recordService.Stats(c.Request.Context(), since)
		if err != nil {
			log.Error().Err(err).Msg("failed to aggregate upload records")
			c.JSON(http.StatusInternalServerError, apitypes.ErrorResponse{Error: "failed to aggregate upload records"})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}

func handleGetRecord(recordService RecordServiceInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := recordService.GetUpload(c.Request.Context(), c.Param("token"))
		if err != nil {
			if errors.Is(err, common.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, apitypes.ErrorResponse{Error: "record not found"})
				return
			}
			log.Error().Err(err).Str("upload_token", c.Param("token")).Msg("failed to get upload record")
			c.JSON(http.StatusInternalServerError, apitypes.ErrorResponse{Error: "failed to get upload record"})
			return
		}

		c.JSON(http.StatusOK, record)
	}
}

var _ RecordServiceInterface = (*common.UploadLedger)(nil)
