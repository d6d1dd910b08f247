package tasksync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

type Delays struct {
	CreateRefresh time.Duration   // refetch after create, absorbs backend lag
	UpdateRefresh time.Duration   // refetch after update
	AssignRefresh time.Duration   // refetch after assign
	ChatRefresh   []time.Duration // refetches after a chat send
	ChatTimeout   time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		CreateRefresh: time.Second,
		ChatRefresh:   []time.Duration{500 * time.Millisecond, time.Second},
		ChatTimeout:   10 * time.Second,
	}
}

type Attachment struct {
	Name   string
	Reader io.Reader
}

type SubtaskDraft struct {
	TaskID         int64
	Title          string
	Description    string
	Status         Status
	Priority       Priority
	Deadline       Timestamp
	EstimatedHours float64
	Files          []Attachment
}

// SubtaskEdit is the full set of editable fields; every field is sent.
type SubtaskEdit struct {
	TaskID         int64
	Title          string
	Description    string
	Status         Status
	Priority       Priority
	Deadline       Timestamp
	EstimatedHours float64

	// AttachmentsEditable switches the payload to multipart.
	AttachmentsEditable bool
	Files               []Attachment
}

type TaskDraft struct {
	ProjectID      int64
	Title          string
	Description    string
	Status         Status
	Priority       Priority
	Deadline       Timestamp
	EstimatedHours float64
	Files          []Attachment
}

type TaskEdit struct {
	ProjectID      int64
	Title          string
	Description    string
	Status         Status
	Priority       Priority
	Deadline       Timestamp
	EstimatedHours float64

	AttachmentsEditable bool
	Files               []Attachment
}

type Assignment struct {
	TaskID    int64
	SubtaskID int64
	User      User
}

// Confirm asks the user to confirm a destructive action.
type Confirm func(prompt string) bool

// Mutator applies user changes: local patch on success, then a scheduled
// refetch that is authoritative.
type Mutator struct {
	ds     *Downstream
	bearer string
	store  *Store
	sync   *Syncer
	notify Notifier
	sched  Scheduler
	delays Delays
	base   context.Context
	log    *logrus.Logger
}

type MutatorOptions struct {
	Store     *Store
	Syncer    *Syncer
	Notifier  Notifier
	Scheduler Scheduler // defaults to Store
	Delays    Delays
	Base      context.Context // context of scheduled refetches
}

func NewMutator(ds *Downstream, bearer string, opts MutatorOptions) *Mutator {
	if opts.Scheduler == nil {
		opts.Scheduler = opts.Store
	}
	if opts.Base == nil {
		opts.Base = context.Background()
	}
	return &Mutator{
		ds:     ds,
		bearer: bearer,
		store:  opts.Store,
		sync:   opts.Syncer,
		notify: opts.Notifier,
		sched:  opts.Scheduler,
		delays: opts.Delays,
		base:   opts.Base,
		log:    ds.log,
	}
}

func validateTitle(op, title string) error {
	if strings.TrimSpace(title) == "" {
		return validationError(op, ErrEmptyTitle)
	}
	return nil
}

func validateHours(op string, h float64) error {
	if h < 0 {
		return validationError(op, fmt.Errorf("estimated hours cannot be negative"))
	}
	return nil
}

func withDefaults(st Status, pr Priority) (Status, Priority) {
	if st == "" {
		st = StatusToDo
	}
	if pr == "" {
		pr = PriorityMedium
	}
	return st, pr
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

func editableFields(title, description string, st Status, pr Priority, deadline Timestamp, hours float64) url.Values {
	form := url.Values{}
	form.Set("title", strings.TrimSpace(title))
	form.Set("description", description)
	form.Set("status", string(st))
	form.Set("priority", string(pr))
	form.Set("estimated_hours", formatHours(hours))
	if deadline.Set() {
		form.Set("deadline", deadline.DateString())
	}
	return form
}

func jsonFields(title, description string, st Status, pr Priority, deadline Timestamp, hours float64) map[string]any {
	body := map[string]any{
		"title":           strings.TrimSpace(title),
		"description":     description,
		"status":          st,
		"priority":        pr,
		"estimated_hours": hours,
	}
	if deadline.Set() {
		body["deadline"] = deadline.DateString()
	}
	return body
}

func fileParts(files []Attachment) []filePart {
	parts := make([]filePart, 0, len(files))
	for _, f := range files {
		if f.Reader == nil {
			continue
		}
		parts = append(parts, filePart{Field: "file_url", Name: f.Name, Reader: f.Reader})
	}
	return parts
}

// fail reports err to the user and logs it.
func (m *Mutator) fail(kind EntityKind, id int64, err error, fallback string) error {
	if id != 0 {
		m.store.setPhase(kind, id, PhaseFailed)
	}
	m.log.WithFields(logrus.Fields{"entity": kind, "id": id}).Warnf("%s: %v", fallback, err)
	notifyError(m.notify, err, fallback)
	return err
}

// decodeCreated reads the id of the created resource when the backend returned
// one, either bare or wrapped in an object. Zero means none was returned.
func decodeCreated[T any](resp *resty.Response, idOf func(T) int64) int64 {
	if resp == nil {
		return 0
	}
	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 || body[0] != '{' {
		return 0
	}

	var direct T
	if json.Unmarshal(body, &direct) == nil {
		if id := idOf(direct); id != 0 {
			return id
		}
	}

	var wrapped map[string]json.RawMessage
	if json.Unmarshal(body, &wrapped) != nil {
		return 0
	}
	for _, raw := range wrapped {
		var inner T
		if json.Unmarshal(raw, &inner) == nil {
			if id := idOf(inner); id != 0 {
				return id
			}
		}
	}
	return 0
}

func (m *Mutator) refreshSubtasksLater(taskID int64, d time.Duration, touched ...int64) {
	for _, id := range touched {
		m.store.setPhase(EntitySubtask, id, PhaseApplied)
	}
	m.sched.After(d, func() {
		for _, id := range touched {
			m.store.setPhase(EntitySubtask, id, PhaseReconciling)
		}
		_, _ = m.sync.RefreshSubtasks(m.base, taskID)
		for _, id := range touched {
			m.store.setPhase(EntitySubtask, id, PhaseIdle)
		}
	})
}

func (m *Mutator) refreshTasksLater(projectID int64, d time.Duration, touched ...int64) {
	for _, id := range touched {
		m.store.setPhase(EntityTask, id, PhaseApplied)
	}
	m.sched.After(d, func() {
		for _, id := range touched {
			m.store.setPhase(EntityTask, id, PhaseReconciling)
		}
		_, _ = m.sync.RefreshTasks(m.base, projectID)
		for _, id := range touched {
			m.store.setPhase(EntityTask, id, PhaseIdle)
		}
	})
}

// CreateSubtask validates locally, posts the multipart form and schedules a
// delayed refetch of the parent task. An empty title never reaches the network.
func (m *Mutator) CreateSubtask(ctx context.Context, d SubtaskDraft) (int64, error) {
	const op = "create subtask"
	if err := validateTitle(op, d.Title); err != nil {
		return 0, m.fail(EntitySubtask, 0, err, "Title is required")
	}
	if err := validateHours(op, d.EstimatedHours); err != nil {
		return 0, m.fail(EntitySubtask, 0, err, "Invalid estimated hours")
	}

	st, pr := withDefaults(d.Status, d.Priority)
	form := editableFields(d.Title, d.Description, st, pr, d.Deadline, d.EstimatedHours)
	form.Set("task_id", strconv.FormatInt(d.TaskID, 10))

	resp, err := m.ds.do(ctx, call{
		op:      op,
		service: svcSubtasks,
		method:  http.MethodPost,
		path:    "/subtasks/create",
		bearer:  m.bearer,
		form:    form,
		files:   fileParts(d.Files),
		result:  &rawSubtask{},
	})
	if err != nil {
		return 0, m.fail(EntitySubtask, 0, err, "Failed to create subtask")
	}

	id := decodeCreated(resp, func(r rawSubtask) int64 { return int64(r.ID) })
	if id != 0 {
		m.store.PatchSubtask(viewOf(Subtask{
			ID:             id,
			TaskID:         d.TaskID,
			Title:          strings.TrimSpace(d.Title),
			Description:    d.Description,
			Status:         st,
			Priority:       pr,
			Deadline:       d.Deadline,
			EstimatedHours: d.EstimatedHours,
			FileURLs:       []string{},
		}))
	}

	notifySuccess(m.notify, "Subtask created")
	if id != 0 {
		m.refreshSubtasksLater(d.TaskID, m.delays.CreateRefresh, id)
	} else {
		m.refreshSubtasksLater(d.TaskID, m.delays.CreateRefresh)
	}
	return id, nil
}

// UpdateSubtask replaces the editable fields of subtask id, patches the cache
// and triggers a refetch whose result wins over the local patch.
func (m *Mutator) UpdateSubtask(ctx context.Context, id int64, e SubtaskEdit) error {
	const op = "update subtask"
	if err := validateTitle(op, e.Title); err != nil {
		return m.fail(EntitySubtask, id, err, "Title is required")
	}
	if err := validateHours(op, e.EstimatedHours); err != nil {
		return m.fail(EntitySubtask, id, err, "Invalid estimated hours")
	}

	st, pr := withDefaults(e.Status, e.Priority)
	c := call{
		op:      op,
		service: svcSubtasks,
		method:  http.MethodPut,
		path:    fmt.Sprintf("/subtasks/updateSubTask/%d", id),
		bearer:  m.bearer,
	}
	if e.AttachmentsEditable || len(e.Files) > 0 {
		c.form = editableFields(e.Title, e.Description, st, pr, e.Deadline, e.EstimatedHours)
		c.files = fileParts(e.Files)
	} else {
		c.body = jsonFields(e.Title, e.Description, st, pr, e.Deadline, e.EstimatedHours)
	}

	m.store.setPhase(EntitySubtask, id, PhaseSubmitting)
	if _, err := m.ds.do(ctx, c); err != nil {
		return m.fail(EntitySubtask, id, err, "Failed to update subtask")
	}

	cur, ok := m.store.Subtask(id)
	if !ok {
		cur = viewOf(Subtask{ID: id, TaskID: e.TaskID, FileURLs: []string{}})
	}
	next := cur.Subtask
	next.Title = strings.TrimSpace(e.Title)
	next.Description = e.Description
	next.Status = st
	next.Priority = pr
	next.Deadline = e.Deadline
	next.EstimatedHours = e.EstimatedHours
	m.store.PatchSubtask(viewOf(next))

	notifySuccess(m.notify, "Subtask updated")
	m.refreshSubtasksLater(next.TaskID, m.delays.UpdateRefresh, id)
	return nil
}

// deleteConfirmed sends the delete after confirmation. Only 200 and 204 count
// as success; the caller removes the entity afterwards.
func (m *Mutator) deleteConfirmed(ctx context.Context, kind EntityKind, id int64, c call, confirm Confirm, prompt string) error {
	if confirm == nil || !confirm(prompt) {
		return ErrNotConfirmed
	}

	m.store.setPhase(kind, id, PhaseSubmitting)
	resp, err := m.ds.do(ctx, c)
	if err != nil {
		return m.fail(kind, id, err, fmt.Sprintf("Failed to delete %s", kind))
	}
	if s := statusOf(resp); s != http.StatusOK && s != http.StatusNoContent {
		err := &Error{Kind: KindServer, Op: c.op, Status: s, Message: fmt.Sprintf("unexpected status %d", s)}
		return m.fail(kind, id, err, fmt.Sprintf("Failed to delete %s", kind))
	}
	m.store.setPhase(kind, id, PhaseIdle)
	return nil
}

// DeleteSubtask removes the subtask only after the server acknowledged it.
func (m *Mutator) DeleteSubtask(ctx context.Context, id int64, confirm Confirm) error {
	err := m.deleteConfirmed(ctx, EntitySubtask, id, call{
		op:      "delete subtask",
		service: svcSubtasks,
		method:  http.MethodDelete,
		path:    fmt.Sprintf("/subtasks/DeleteSubTask/%d", id),
		bearer:  m.bearer,
	}, confirm, "Delete this subtask?")
	if err != nil {
		return err
	}

	m.store.RemoveSubtask(id)
	notifySuccess(m.notify, "Subtask deleted")
	return nil
}

// AssignSubtask assigns a.User to the subtask, patches the cached view with the
// user's name and avatar and re-runs the pipeline for the parent task.
func (m *Mutator) AssignSubtask(ctx context.Context, a Assignment) error {
	const op = "assign subtask"
	if a.User.ID == 0 {
		return m.fail(EntitySubtask, a.SubtaskID, validationError(op, fmt.Errorf("select a user to assign")), "Select a user")
	}
	if !m.store.BeginAssign(a.SubtaskID) {
		return validationError(op, ErrAssignInFlight)
	}
	defer m.store.EndAssign(a.SubtaskID)

	m.store.setPhase(EntitySubtask, a.SubtaskID, PhaseSubmitting)
	_, err := m.ds.do(ctx, call{
		op:      op,
		service: svcAssignments,
		method:  http.MethodPost,
		path:    "/task-assignment/assignTask",
		bearer:  m.bearer,
		body:    map[string]int64{"task_id": a.SubtaskID, "user_id": a.User.ID},
	})
	if err != nil {
		return m.fail(EntitySubtask, a.SubtaskID, err, "Failed to assign subtask")
	}

	taskID := a.TaskID
	if cur, ok := m.store.Subtask(a.SubtaskID); ok {
		next := cur.Subtask
		next.AssignedTo = a.User.ID
		next.AssignedUser = a.User.Name
		next.ProfileImage = a.User.ProfileImage
		m.store.PatchSubtask(viewOf(next))
		if taskID == 0 {
			taskID = next.TaskID
		}
	}

	notifySuccess(m.notify, fmt.Sprintf("Assigned to %s", a.User.Name))
	if taskID != 0 {
		m.refreshSubtasksLater(taskID, m.delays.AssignRefresh, a.SubtaskID)
	} else {
		m.store.setPhase(EntitySubtask, a.SubtaskID, PhaseIdle)
	}
	return nil
}

// tasks, one level up

func (m *Mutator) CreateTask(ctx context.Context, d TaskDraft) (int64, error) {
	const op = "create task"
	if err := validateTitle(op, d.Title); err != nil {
		return 0, m.fail(EntityTask, 0, err, "Title is required")
	}
	if err := validateHours(op, d.EstimatedHours); err != nil {
		return 0, m.fail(EntityTask, 0, err, "Invalid estimated hours")
	}

	st, pr := withDefaults(d.Status, d.Priority)
	form := editableFields(d.Title, d.Description, st, pr, d.Deadline, d.EstimatedHours)
	form.Set("project_id", strconv.FormatInt(d.ProjectID, 10))

	resp, err := m.ds.do(ctx, call{
		op:      op,
		service: svcTasks,
		method:  http.MethodPost,
		path:    "/task/addTask",
		bearer:  m.bearer,
		form:    form,
		files:   fileParts(d.Files),
		result:  &rawTask{},
	})
	if err != nil {
		return 0, m.fail(EntityTask, 0, err, "Failed to create task")
	}

	id := decodeCreated(resp, func(r rawTask) int64 { return int64(r.ID) })
	if id != 0 {
		m.store.UpsertTask(Task{
			ID:             id,
			ProjectID:      d.ProjectID,
			Title:          strings.TrimSpace(d.Title),
			Description:    d.Description,
			Status:         st,
			Priority:       pr,
			Deadline:       d.Deadline,
			EstimatedHours: d.EstimatedHours,
			FileURLs:       []string{},
		})
		m.refreshTasksLater(d.ProjectID, m.delays.CreateRefresh, id)
	} else {
		m.refreshTasksLater(d.ProjectID, m.delays.CreateRefresh)
	}

	notifySuccess(m.notify, "Task created")
	return id, nil
}

func (m *Mutator) UpdateTask(ctx context.Context, id int64, e TaskEdit) error {
	const op = "update task"
	if err := validateTitle(op, e.Title); err != nil {
		return m.fail(EntityTask, id, err, "Title is required")
	}
	if err := validateHours(op, e.EstimatedHours); err != nil {
		return m.fail(EntityTask, id, err, "Invalid estimated hours")
	}

	st, pr := withDefaults(e.Status, e.Priority)
	c := call{
		op:      op,
		service: svcTasks,
		method:  http.MethodPut,
		path:    fmt.Sprintf("/task/updateTask/%d", id),
		bearer:  m.bearer,
	}
	if e.AttachmentsEditable || len(e.Files) > 0 {
		c.form = editableFields(e.Title, e.Description, st, pr, e.Deadline, e.EstimatedHours)
		c.files = fileParts(e.Files)
	} else {
		c.body = jsonFields(e.Title, e.Description, st, pr, e.Deadline, e.EstimatedHours)
	}

	m.store.setPhase(EntityTask, id, PhaseSubmitting)
	if _, err := m.ds.do(ctx, c); err != nil {
		return m.fail(EntityTask, id, err, "Failed to update task")
	}

	next, ok := m.store.Task(id)
	if !ok {
		next = Task{ID: id, ProjectID: e.ProjectID, FileURLs: []string{}}
	}
	next.Title = strings.TrimSpace(e.Title)
	next.Description = e.Description
	next.Status = st
	next.Priority = pr
	next.Deadline = e.Deadline
	next.EstimatedHours = e.EstimatedHours
	m.store.UpsertTask(next)

	notifySuccess(m.notify, "Task updated")
	m.refreshTasksLater(next.ProjectID, m.delays.UpdateRefresh, id)
	return nil
}

func (m *Mutator) DeleteTask(ctx context.Context, id int64, confirm Confirm) error {
	err := m.deleteConfirmed(ctx, EntityTask, id, call{
		op:      "delete task",
		service: svcTasks,
		method:  http.MethodDelete,
		path:    fmt.Sprintf("/task/deleteSingleTask/%d", id),
		bearer:  m.bearer,
	}, confirm, "Delete this task and its subtasks?")
	if err != nil {
		return err
	}

	m.store.RemoveTask(id)
	notifySuccess(m.notify, "Task deleted")
	return nil
}
