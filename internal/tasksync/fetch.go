package tasksync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/utils"
)

// Fetcher reads and normalizes the collections a project view needs.
type Fetcher struct {
	ds     *Downstream
	bearer string
	log    *logrus.Logger
}

func NewFetcher(ds *Downstream, bearer string) *Fetcher {
	return &Fetcher{ds: ds, bearer: bearer, log: ds.log}
}

// flexInt decodes ids that arrive as numbers, numeric strings or null.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexInt(i)
		return nil
	}
	fl, err := n.Float64()
	if err != nil {
		return err
	}
	*f = flexInt(int64(fl))
	return nil
}

// flexFloat decodes numbers that may arrive quoted.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type rawSubtask struct {
	ID             flexInt         `json:"id"`
	TaskID         flexInt         `json:"task_id"`
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Status         *string         `json:"status"`
	Priority       *string         `json:"priority"`
	Deadline       Timestamp       `json:"deadline"`
	EstimatedHours flexFloat       `json:"estimated_hours"`
	AssignedTo     flexInt         `json:"assigned_to"`
	AssignedUser   *string         `json:"assigned_user"`
	ProfileImage   *string         `json:"profile_image"`
	FileURL        json.RawMessage `json:"file_url"`
	CompletedAt    Timestamp       `json:"completed_at"`
}

type rawTask struct {
	ID             flexInt         `json:"id"`
	ProjectID      flexInt         `json:"project_id"`
	Title          *string         `json:"title"`
	Description    *string         `json:"description"`
	Status         *string         `json:"status"`
	Priority       *string         `json:"priority"`
	Deadline       Timestamp       `json:"deadline"`
	EstimatedHours flexFloat       `json:"estimated_hours"`
	FileURL        json.RawMessage `json:"file_url"`
}

type rawAssignmentEvent struct {
	TaskID       flexInt   `json:"task_id"`
	AssignedUser *string   `json:"assigned_user"`
	ProfileImage *string   `json:"profile_image"`
	UpdatedBy    flexInt   `json:"updated_by"`
	UpdatedAt    Timestamp `json:"updated_at"`
}

type rawUser struct {
	ID           flexInt `json:"id"`
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	Role         *string `json:"role"`
	ProfileImage *string `json:"profile_image"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// NormalizeFileURLs turns the file_url field into a list. A JSON-encoded string
// is decoded; a string that does not decode is the sole attachment; null,
// absent and empty values are an empty list.
func NormalizeFileURLs(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	out := []string{}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out
	}

	var list []string
	if raw[0] == '[' {
		if json.Unmarshal(raw, &list) == nil {
			return compact(list)
		}
		return out
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return out
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return compact(list)
	}
	var single string
	if err := json.Unmarshal([]byte(s), &single); err == nil && strings.TrimSpace(single) != "" {
		return []string{single}
	}
	return []string{s}
}

func compact(in []string) []string {
	return utils.Filter(in, func(s string) bool { return strings.TrimSpace(s) != "" })
}

func normalizeSubtask(r rawSubtask) Subtask {
	st, pr := withDefaults(Status(str(r.Status)), Priority(str(r.Priority)))
	return Subtask{
		ID:             int64(r.ID),
		TaskID:         int64(r.TaskID),
		Title:          str(r.Title),
		Description:    str(r.Description),
		Status:         st,
		Priority:       pr,
		Deadline:       r.Deadline,
		EstimatedHours: float64(r.EstimatedHours),
		AssignedTo:     int64(r.AssignedTo),
		AssignedUser:   str(r.AssignedUser),
		ProfileImage:   str(r.ProfileImage),
		FileURLs:       NormalizeFileURLs(r.FileURL),
		CompletedAt:    r.CompletedAt,
	}
}

func normalizeTask(r rawTask) Task {
	st, pr := withDefaults(Status(str(r.Status)), Priority(str(r.Priority)))
	return Task{
		ID:             int64(r.ID),
		ProjectID:      int64(r.ProjectID),
		Title:          str(r.Title),
		Description:    str(r.Description),
		Status:         st,
		Priority:       pr,
		Deadline:       r.Deadline,
		EstimatedHours: float64(r.EstimatedHours),
		FileURLs:       NormalizeFileURLs(r.FileURL),
	}
}

func normalizeEvent(r rawAssignmentEvent) AssignmentEvent {
	return AssignmentEvent{
		TaskID:       int64(r.TaskID),
		AssignedUser: str(r.AssignedUser),
		ProfileImage: str(r.ProfileImage),
		UpdatedBy:    int64(r.UpdatedBy),
		UpdatedAt:    r.UpdatedAt,
	}
}

func normalizeUser(r rawUser) User {
	return User{
		ID:           int64(r.ID),
		Name:         str(r.Name),
		Email:        str(r.Email),
		Role:         Role(str(r.Role)),
		ProfileImage: str(r.ProfileImage),
	}
}

// decodeList accepts a bare array or an object wrapping the array under key.
func decodeList[T any](body []byte, key string) ([]T, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false
	}
	switch body[0] {
	case '[':
		var out []T
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, false
		}
		return out, true
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, false
		}
		inner, ok := wrapper[key]
		if !ok {
			return nil, false
		}
		inner = bytes.TrimSpace(inner)
		if len(inner) == 0 || inner[0] != '[' {
			return nil, false
		}
		var out []T
		if err := json.Unmarshal(inner, &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

func bodySaysNotFound(body []byte) bool {
	var m serverMessage
	if json.Unmarshal(body, &m) != nil {
		return false
	}
	return absenceMessage(m.text())
}

// FetchSubtasks never fails the pipeline: it always returns a list. A non-nil
// error means the caller should surface a non-fatal notification.
func (f *Fetcher) FetchSubtasks(ctx context.Context, taskID int64) ([]Subtask, error) {
	const op = "fetch subtasks"
	resp, err := f.ds.do(ctx, call{
		op:      op,
		service: svcSubtasks,
		method:  http.MethodGet,
		path:    fmt.Sprintf("/subtasks/task/%d", taskID),
		bearer:  f.bearer,
	})
	if err != nil {
		if notFoundMessage(err) {
			return []Subtask{}, nil
		}
		f.log.WithField("task", taskID).Warnf("failed to fetch subtasks: %v", err)
		return []Subtask{}, err
	}

	raws, ok := decodeList[rawSubtask](resp.Body(), "subtasks")
	if !ok {
		if bodySaysNotFound(resp.Body()) {
			return []Subtask{}, nil
		}
		err := &Error{Kind: KindContract, Op: op, Status: statusOf(resp), Message: "unexpected subtasks response"}
		f.log.WithField("task", taskID).Warn(err.Error())
		return []Subtask{}, err
	}
	return utils.Map(raws, normalizeSubtask), nil
}

// FetchAssignmentEvents returns the whole assignment history. Any unavailability
// yields an empty list and no error.
func (f *Fetcher) FetchAssignmentEvents(ctx context.Context) []AssignmentEvent {
	if !f.ds.Available(svcAssignments) {
		f.log.Debug("assignment history unavailable, skipping")
		return []AssignmentEvent{}
	}

	resp, err := f.ds.do(ctx, call{
		op:      "fetch assignment events",
		service: svcAssignments,
		method:  http.MethodGet,
		path:    "/task-assignment/allTaskStatusUpdates",
		bearer:  f.bearer,
	})
	if err != nil {
		f.log.Debugf("assignment history ignored: %v", err)
		return []AssignmentEvent{}
	}

	raws, ok := decodeList[rawAssignmentEvent](resp.Body(), "statusUpdates")
	if !ok {
		f.log.Debug("assignment history has unexpected shape, ignored")
		return []AssignmentEvent{}
	}
	return utils.Map(raws, normalizeEvent)
}

// FetchUsers returns the users eligible for assignment. A response that is
// neither {users:[...]} nor a bare array is a contract error.
func (f *Fetcher) FetchUsers(ctx context.Context) ([]User, error) {
	const op = "fetch users"
	resp, err := f.ds.do(ctx, call{
		op:      op,
		service: svcUsers,
		method:  http.MethodGet,
		path:    "/auth/users",
		bearer:  f.bearer,
	})
	if err != nil {
		return nil, err
	}

	raws, ok := decodeList[rawUser](resp.Body(), "users")
	if !ok {
		return nil, &Error{Kind: KindContract, Op: op, Status: statusOf(resp), Message: "invalid users response"}
	}
	return AssignableUsers(utils.Map(raws, normalizeUser)), nil
}

// AssignableUsers drops Admin and Supervisor accounts.
func AssignableUsers(users []User) []User {
	return utils.Filter(users, func(u User) bool { return u.Role.Assignable() })
}

// FetchProjectTasks follows the subtask rule: absence is an empty list.
func (f *Fetcher) FetchProjectTasks(ctx context.Context, projectID int64) ([]Task, error) {
	const op = "fetch tasks"
	resp, err := f.ds.do(ctx, call{
		op:      op,
		service: svcTasks,
		method:  http.MethodGet,
		path:    fmt.Sprintf("/task/projectTasks/%d", projectID),
		bearer:  f.bearer,
	})
	if err != nil {
		if notFoundMessage(err) {
			return []Task{}, nil
		}
		f.log.WithField("project", projectID).Warnf("failed to fetch tasks: %v", err)
		return []Task{}, err
	}

	raws, ok := decodeList[rawTask](resp.Body(), "tasks")
	if !ok {
		if bodySaysNotFound(resp.Body()) {
			return []Task{}, nil
		}
		return []Task{}, &Error{Kind: KindContract, Op: op, Status: statusOf(resp), Message: "unexpected tasks response"}
	}
	return utils.Map(raws, normalizeTask), nil
}
