package front

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/authmw"
	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/tasksync"
)

const (
	requestIDKey    = "request_id"
	requestIDMaxLen = 64
	viewKey         = "view"
)

// requestID reuses the caller's X-Request-ID or generates one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" || len(rid) > requestIDMaxLen {
			rid = uuid.NewString()
		}

		c.Set(requestIDKey, rid)
		c.Header("X-Request-ID", rid)

		c.Next()
	}
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"latency":    time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.ByType(gin.ErrorTypePrivate).String())
		}

		switch {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("client error")
		default:
			entry.Info("request completed")
		}
	}
}

// withView resolves :view to a view mounted by the caller.
func (a *api) withView() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := a.views.get(c.Param("view"), authmw.Subject(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.Set(viewKey, v)
		c.Next()
	}
}

func viewOf(c *gin.Context) *tasksync.View {
	return c.MustGet(viewKey).(*tasksync.View)
}
