package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey  = "response_meta"
	requestStartKey  = "request_start"
	cacheHitMetaKey  = "cache_hit"
	processingMetaMs = "processing_time_ms"
)

// WithResponseMeta starts the request clock and a metadata map that handlers
// fill before writing the envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit records whether the response was served from the student cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaOf(c)[cacheHitMetaKey] = hit
}

// ResponseMeta returns the metadata collected so far, stamped with the elapsed
// processing time when the request clock was started.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	meta := metaOf(c)
	if start, ok := c.Get(requestStartKey); ok {
		if t, ok := start.(time.Time); ok {
			meta[processingMetaMs] = time.Since(t).Milliseconds()
		}
	}
	return meta
}

func metaOf(c *gin.Context) map[string]interface{} {
	if value, ok := c.Get(responseMetaKey); ok {
		if meta, ok := value.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
