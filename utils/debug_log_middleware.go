package utils

import (
	"bytes"
	"log"

	"github.com/gin-gonic/gin"
)

// Keep logged bodies short - error payloads here are one-line JSON
const debugBodyLimit = 512

type debugResponseWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *debugResponseWriter) Write(b []byte) (int, error) {
	if remaining := debugBodyLimit - w.body.Len(); remaining > 0 {
		if len(b) > remaining {
			w.body.Write(b[:remaining])
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// DebugLogMiddleware logs every error response together with the route that
// produced it. Debug builds only; must run before gzip so the body is still
// readable.
func DebugLogMiddleware(c *gin.Context) {
	writer := &debugResponseWriter{ResponseWriter: c.Writer}
	c.Writer = writer
	c.Next()
	if status := writer.Status(); status >= 400 {
		log.Printf("[DEBUG] %s %s -> %d: %s", c.Request.Method, c.Request.URL.Path, status, writer.body.String())
	}
}
