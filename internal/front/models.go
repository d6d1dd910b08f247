package front

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/tasksync"
)

// taskForm binds task and subtask payloads, JSON or multipart alike.
type taskForm struct {
	TaskID              int64   `form:"task_id" json:"task_id"`
	ProjectID           int64   `form:"project_id" json:"project_id"`
	Title               string  `form:"title" json:"title"`
	Description         string  `form:"description" json:"description"`
	Status              string  `form:"status" json:"status"`
	Priority            string  `form:"priority" json:"priority"`
	Deadline            string  `form:"deadline" json:"deadline"`
	EstimatedHours      float64 `form:"estimated_hours" json:"estimated_hours"`
	AttachmentsEditable bool    `form:"attachments_editable" json:"attachments_editable"`
}

func (f taskForm) validate() error {
	if f.Status != "" && !tasksync.Status(f.Status).Valid() {
		return fmt.Errorf("unknown status %q", f.Status)
	}
	if f.Priority != "" && !tasksync.Priority(f.Priority).Valid() {
		return fmt.Errorf("unknown priority %q", f.Priority)
	}
	if f.Deadline != "" && !tasksync.ParseTimestamp(f.Deadline).Set() {
		return fmt.Errorf("invalid deadline %q", f.Deadline)
	}

	return nil
}

type assignRequest struct {
	TaskID int64 `form:"task_id" json:"task_id"`
	UserID int64 `form:"user_id" json:"user_id" binding:"required"`
}

type chatForm struct {
	SenderID int64  `form:"sender_id" json:"sender_id"`
	Message  string `form:"message" json:"message"`
}

// attachments opens the files uploaded under field. Non-multipart requests
// have none. The returned func closes what was opened.
func attachments(c *gin.Context, field string) ([]tasksync.Attachment, func(), error) {
	noop := func() {}
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, noop, nil
		}
		return nil, noop, err
	}

	var (
		out    []tasksync.Attachment
		opened []io.Closer
	)
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	for _, fh := range form.File[field] {
		var f multipart.File
		if f, err = fh.Open(); err != nil {
			closeAll()
			return nil, noop, err
		}
		opened = append(opened, f)
		out = append(out, tasksync.Attachment{Name: fh.Filename, Reader: f})
	}

	return out, closeAll, nil
}

// reply sends body with the notifications the view accumulated.
func reply(c *gin.Context, v *tasksync.View, status int, body gin.H) {
	body["notifications"] = v.Inbox.Drain()
	respondInFormat(c, status, body)
}

func replyError(c *gin.Context, v *tasksync.View, err error) {
	reply(c, v, statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	if errors.Is(err, tasksync.ErrNotConfirmed) {
		return http.StatusPreconditionRequired
	}
	switch tasksync.KindOf(err) {
	case tasksync.KindValidation:
		return http.StatusBadRequest
	case tasksync.KindNotFound:
		return http.StatusNotFound
	case tasksync.KindTimeout:
		return http.StatusGatewayTimeout
	case tasksync.KindUnavailable:
		return http.StatusServiceUnavailable
	case tasksync.KindServer, tasksync.KindNetwork, tasksync.KindContract:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
