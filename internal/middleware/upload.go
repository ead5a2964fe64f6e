package middleware

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// envelopeOverhead covers the JSON fields around a base64 chunk
const envelopeOverhead = 4 << 10

// UploadTokenMiddleware rejects requests whose :token parameter cannot be an
// upload token, before the session store is consulted.
func UploadTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Param("token")
		if _, err := uuid.Parse(token); err != nil {
			log.Debug().
				Str("token", token).
				Str("path", c.Request.URL.Path).
				Msg("malformed upload token")
			c.JSON(http.StatusNotFound, gin.H{
				"error": "session not found",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// ChunkBodyLimit caps the request body at the encoded size of a maxChunk byte
// chunk. Reading past the limit fails with *http.MaxBytesError.
func ChunkBodyLimit(maxChunk int64) gin.HandlerFunc {
	limit := int64(base64.StdEncoding.EncodedLen(int(maxChunk))) + envelopeOverhead

	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "chunk too large",
			})
			c.Abort()
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// RequestLogger writes one structured log line per request
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Debug()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Int64("request_bytes", c.Request.ContentLength).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
