package tasksync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// downstream service names, one circuit breaker each
const (
	svcTasks       = "tasks"
	svcSubtasks    = "subtasks"
	svcAssignments = "assignments"
	svcUsers       = "users"
	svcChat        = "chat"
)

type DownstreamOptions struct {
	BaseURL            string
	Timeout            time.Duration // 0 keeps the transport default
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
	Logger             *logrus.Logger
}

// Downstream talks to the project/task/subtask/user/chat REST services.
// It is shared by every mounted view; the caller's bearer travels per call.
type Downstream struct {
	http *resty.Client
	opts DownstreamOptions
	log  *logrus.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewDownstream(opts DownstreamOptions) *Downstream {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 3
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 5 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		c.SetTimeout(opts.Timeout)
	}

	return &Downstream{
		http:     c,
		opts:     opts,
		log:      opts.Logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (d *Downstream) breaker(service string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cb, ok := d.breakers[service]; ok {
		return cb
	}
	max := d.opts.BreakerMaxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Timeout:     d.opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= max
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Warnf("circuit breaker %q changed from %s to %s", name, from, to)
		},
	})
	d.breakers[service] = cb
	return cb
}

// Available is the existence probe: false while the service's breaker is open.
func (d *Downstream) Available(service string) bool {
	return d.breaker(service).State() != gobreaker.StateOpen
}

type filePart struct {
	Field  string
	Name   string
	Reader io.Reader
}

type call struct {
	op      string
	service string
	method  string
	path    string
	bearer  string
	timeout time.Duration

	body   any        // JSON body
	form   url.Values // multipart fields when non-nil
	files  []filePart
	result any
}

type serverMessage struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Msg     string `json:"msg"`
}

func (m serverMessage) text() string {
	switch {
	case m.Message != "":
		return m.Message
	case m.Error != "":
		return m.Error
	default:
		return m.Msg
	}
}

// do issues the call through the service breaker and classifies the outcome.
// Only transport failures and 5xx responses count against the breaker.
func (d *Downstream) do(ctx context.Context, c call) (*resty.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	reqID := uuid.NewString()
	var (
		resp   *resty.Response
		reqErr error
	)

	_, cbErr := d.breaker(c.service).Execute(func() (interface{}, error) {
		r := d.http.R().
			SetContext(ctx).
			SetHeader("X-Request-ID", reqID)
		if c.bearer != "" {
			r.SetAuthToken(c.bearer)
		}
		if c.result != nil {
			r.SetResult(c.result)
		}
		switch {
		case c.form != nil:
			fields := make(map[string]string, len(c.form))
			for k := range c.form {
				fields[k] = c.form.Get(k)
			}
			r.SetMultipartFormData(fields)
			for _, f := range c.files {
				r.SetMultipartField(f.Field, f.Name, "application/octet-stream", f.Reader)
			}
		case c.body != nil:
			r.SetHeader("Content-Type", "application/json").SetBody(c.body)
		}

		resp, reqErr = r.Execute(c.method, c.path)
		if reqErr != nil && !ambiguousSuccess(resp) {
			return nil, reqErr
		}
		if statusOf(resp) >= http.StatusInternalServerError {
			return nil, fmt.Errorf("status %d", statusOf(resp))
		}
		return nil, nil
	})

	if errors.Is(cbErr, gobreaker.ErrOpenState) || errors.Is(cbErr, gobreaker.ErrTooManyRequests) {
		d.log.WithField("request_id", reqID).Warnf("%s %s skipped: %v", c.method, c.path, cbErr)
		return nil, &Error{Kind: KindUnavailable, Op: c.op, Err: cbErr}
	}

	err := classify(c.op, resp, reqErr)
	entry := d.log.WithFields(logrus.Fields{"request_id": reqID, "status": statusOf(resp)})
	if err != nil {
		entry.Debugf("%s %s failed: %v", c.method, c.path, err)
	} else {
		entry.Debugf("%s %s ok", c.method, c.path)
	}
	return resp, err
}

func statusOf(resp *resty.Response) int {
	if resp == nil || resp.RawResponse == nil {
		return 0
	}
	return resp.StatusCode()
}

// ambiguousSuccess covers backends that answer 200/201 with a body the client
// cannot decode, which surfaces through the error channel.
func ambiguousSuccess(resp *resty.Response) bool {
	s := statusOf(resp)
	return s == http.StatusOK || s == http.StatusCreated
}

func classify(op string, resp *resty.Response, err error) error {
	status := statusOf(resp)
	if err != nil {
		switch {
		case ambiguousSuccess(resp):
			return nil
		case status == 0 && isTimeout(err):
			return &Error{Kind: KindTimeout, Op: op, Err: err}
		case status == 0:
			return &Error{Kind: KindNetwork, Op: op, Err: err}
		case status < http.StatusBadRequest:
			// a response arrived but its body could not be read
			return &Error{Kind: KindContract, Op: op, Status: status, Message: "unreadable response", Err: err}
		}
	}
	if status == 0 {
		return &Error{Kind: KindNetwork, Op: op, Err: errors.New("no response")}
	}
	if status >= 200 && status < 300 {
		return nil
	}

	msg := extractMessage(resp)
	kind := KindServer
	if status == http.StatusNotFound {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Op: op, Status: status, Message: msg}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func extractMessage(resp *resty.Response) string {
	var m serverMessage
	if json.Unmarshal(resp.Body(), &m) == nil && m.text() != "" {
		return m.text()
	}
	body := strings.TrimSpace(string(resp.Body()))
	if body == "" || len(body) > 200 || strings.HasPrefix(body, "<") {
		return ""
	}
	return body
}

// notFoundMessage matches backends that report an empty lookup with a message
// instead of a 404.
func notFoundMessage(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == KindNotFound || absenceMessage(e.Message)
}

var absenceRe = regexp.MustCompile(`(?i)\bnot found\b|\bno\b.*\bfound\b`)

// absenceMessage reports whether msg announces an empty result, e.g.
// "Subtasks not found" or "No subtasks found for this task".
func absenceMessage(msg string) bool {
	return absenceRe.MatchString(msg)
}
