package tasksync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"testing"
)

func TestFetchSubtasksAbsenceIsEmpty(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
	}{
		{"404", http.StatusNotFound, map[string]string{"message": "nothing here"}},
		{"empty array", http.StatusOK, []any{}},
		{"wrapped empty array", http.StatusOK, map[string]any{"subtasks": []any{}}},
		{"not found message on 200", http.StatusOK, map[string]string{"message": "No subtasks found for this task"}},
		{"not found message on 400", http.StatusBadRequest, map[string]string{"error": "Subtasks not found"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend(t)
			backend.json(http.MethodGet, "/subtasks/task/9", tt.status, tt.body)
			f := NewFetcher(newTestDownstream(backend), "tok")

			got, err := f.FetchSubtasks(context.Background(), 9)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Fatalf("want empty non-nil list, got %#v", got)
			}
		})
	}
}

func TestFetchSubtasksServerErrorIsReported(t *testing.T) {
	backend := newFakeBackend(t)
	backend.json(http.MethodGet, "/subtasks/task/9", http.StatusInternalServerError, map[string]string{"message": "db down"})
	f := NewFetcher(newTestDownstream(backend), "tok")

	got, err := f.FetchSubtasks(context.Background(), 9)
	if len(got) != 0 {
		t.Fatalf("want empty list, got %v", got)
	}
	if !IsKind(err, KindServer) {
		t.Fatalf("want server error, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Message != "db down" || e.Status != 500 {
		t.Fatalf("want message and status carried, got %+v", err)
	}
}

func TestFetchSubtasksNormalizesRecords(t *testing.T) {
	backend := newFakeBackend(t)
	backend.json(http.MethodGet, "/subtasks/task/3", http.StatusOK, `[
		{"id": 1, "task_id": 3, "title": "Translate", "assigned_to": "7", "estimated_hours": "2.5",
		 "file_url": "[\"a.png\",\"b.pdf\"]", "deadline": "2024-05-01T00:00:00.000Z",
		 "status": "Review", "priority": "Critical"},
		{"id": "2", "task_id": 3, "title": null, "assigned_to": null, "file_url": null},
		{"id": 3, "task_id": 3, "file_url": "plain.jpg"},
		{"id": 4, "task_id": 3, "file_url": ["x.wav", ""]}
	]`)
	f := NewFetcher(newTestDownstream(backend), "tok")

	got, err := f.FetchSubtasks(context.Background(), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d subtasks, want 4", len(got))
	}

	first := got[0]
	if first.AssignedTo != 7 || first.EstimatedHours != 2.5 || first.Deadline.DateString() != "2024-05-01" {
		t.Fatalf("numeric fields not normalized: %+v", first)
	}
	wantFiles := [][]string{{"a.png", "b.pdf"}, {}, {"plain.jpg"}, {"x.wav"}}
	for i, want := range wantFiles {
		if !reflect.DeepEqual(got[i].FileURLs, want) {
			t.Errorf("subtask %d files = %#v, want %#v", got[i].ID, got[i].FileURLs, want)
		}
	}
	if got[1].ID != 2 || got[1].Title != "" || got[1].AssignedTo != 0 {
		t.Fatalf("nulls should become zero values, got %+v", got[1])
	}
	if first.Status != StatusReview || first.Priority != PriorityCritical {
		t.Fatalf("explicit status and priority must be kept, got %q %q", first.Status, first.Priority)
	}
	for _, sub := range got[1:] {
		if sub.Status != StatusToDo || sub.Priority != PriorityMedium {
			t.Errorf("subtask %d: missing status/priority should default to %q/%q, got %q/%q",
				sub.ID, StatusToDo, PriorityMedium, sub.Status, sub.Priority)
		}
	}
}

func TestRefreshSubtasksAbsenceMessageIsQuiet(t *testing.T) {
	tv := newTestView(t)
	tv.backend.json(http.MethodGet, "/subtasks/task/9", http.StatusOK, map[string]string{"message": "No subtasks found for this task"})

	got, err := tv.view.Syncer.RefreshSubtasks(context.Background(), 9)
	if err != nil || len(got) != 0 {
		t.Fatalf("want empty list and no error, got %v %v", got, err)
	}
	if ns := tv.view.Inbox.Drain(); len(ns) != 0 {
		t.Fatalf("absence must not notify, got %+v", ns)
	}
}

func TestFetchSubtasksSendsBearer(t *testing.T) {
	backend := newFakeBackend(t)
	var auth, reqID string
	backend.handle(http.MethodGet, "/subtasks/task/1", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		reqID = r.Header.Get("X-Request-ID")
		writeJSON(w, http.StatusOK, []any{})
	})
	f := NewFetcher(newTestDownstream(backend), "secret")

	if _, err := f.FetchSubtasks(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer secret" {
		t.Fatalf("Authorization = %q", auth)
	}
	if reqID == "" {
		t.Fatal("missing X-Request-ID")
	}
}

func TestNormalizeFileURLs(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{``, []string{}},
		{`null`, []string{}},
		{`""`, []string{}},
		{`[]`, []string{}},
		{`["a","b"]`, []string{"a", "b"}},
		{`"[\"a\",\"b\"]"`, []string{"a", "b"}},
		{`"single.png"`, []string{"single.png"}},
		{`"[broken"`, []string{"[broken"}},
		{`["", "c"]`, []string{"c"}},
	}
	for _, tt := range tests {
		got := NormalizeFileURLs(json.RawMessage(tt.raw))
		if got == nil {
			t.Errorf("NormalizeFileURLs(%s) returned nil", tt.raw)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("NormalizeFileURLs(%s) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestFetchAssignmentEventsDecodesHistory(t *testing.T) {
	backend := newFakeBackend(t)
	backend.json(http.MethodGet, "/task-assignment/allTaskStatusUpdates", http.StatusOK, map[string]any{
		"statusUpdates": []map[string]any{
			{"task_id": 5, "assigned_user": "Jane", "profile_image": "jane.png", "updated_by": 7, "updated_at": "2024-01-02T10:00:00Z"},
		},
	})
	f := NewFetcher(newTestDownstream(backend), "tok")

	got := f.FetchAssignmentEvents(context.Background())
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	ev := got[0]
	if ev.TaskID != 5 || ev.UpdatedBy != 7 || ev.AssignedUser != "Jane" || !ev.UpdatedAt.Set() {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestFetchAssignmentEventsUnavailableIsEmpty(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		backend := newFakeBackend(t)
		backend.json(http.MethodGet, "/task-assignment/allTaskStatusUpdates", status, map[string]string{"message": "nope"})
		f := NewFetcher(newTestDownstream(backend), "tok")

		got := f.FetchAssignmentEvents(context.Background())
		if got == nil || len(got) != 0 {
			t.Fatalf("status %d: want empty list, got %#v", status, got)
		}
	}
}

func TestFetchAssignmentEventsSkipsOpenBreaker(t *testing.T) {
	backend := newFakeBackend(t)
	backend.json(http.MethodGet, "/task-assignment/allTaskStatusUpdates", http.StatusBadGateway, "")
	ds := NewDownstream(DownstreamOptions{BaseURL: backend.srv.URL, BreakerMaxFailures: 1, Logger: quietLogger()})
	f := NewFetcher(ds, "tok")

	f.FetchAssignmentEvents(context.Background())
	if ds.Available(svcAssignments) {
		t.Fatal("breaker should be open after a 5xx")
	}
	got := f.FetchAssignmentEvents(context.Background())
	if len(got) != 0 {
		t.Fatalf("want empty list, got %v", got)
	}
	if n := backend.count(http.MethodGet, "/task-assignment/allTaskStatusUpdates"); n != 1 {
		t.Fatalf("history endpoint hit %d times, want 1", n)
	}
}

func TestFetchUsersFiltersAdminsAndSupervisors(t *testing.T) {
	users := []map[string]any{
		{"id": 1, "name": "Root", "role": "Admin"},
		{"id": 2, "name": "Boss", "role": "Supervisor"},
		{"id": 3, "name": "Tina", "role": "Translator"},
		{"id": 4, "name": "Vic", "role": "Voice-over Artist"},
		{"id": 5, "name": "root", "role": "admin"},
		{"id": 6, "name": "lead", "role": "supervisor"},
		{"id": 7, "name": "ops", "role": " SUPERVISOR "},
	}
	bodies := map[string]any{
		"wrapped": map[string]any{"users": users},
		"bare":    users,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			backend := newFakeBackend(t)
			backend.json(http.MethodGet, "/auth/users", http.StatusOK, body)
			f := NewFetcher(newTestDownstream(backend), "tok")

			got, err := f.FetchUsers(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			var ids []int64
			for _, u := range got {
				ids = append(ids, u.ID)
			}
			if !reflect.DeepEqual(ids, []int64{3, 4}) {
				t.Fatalf("assignable ids = %v, want [3 4]", ids)
			}
		})
	}
}

func TestFetchUsersRejectsUnexpectedShape(t *testing.T) {
	for _, body := range []any{
		map[string]any{"users": "nope"},
		map[string]any{"data": []any{}},
		"42",
	} {
		backend := newFakeBackend(t)
		backend.json(http.MethodGet, "/auth/users", http.StatusOK, body)
		f := NewFetcher(newTestDownstream(backend), "tok")

		_, err := f.FetchUsers(context.Background())
		if !IsKind(err, KindContract) {
			t.Fatalf("body %v: want contract error, got %v", body, err)
		}
	}
}

func TestAssignableUsersNeverNil(t *testing.T) {
	got := AssignableUsers([]User{{ID: 1, Role: RoleAdmin}})
	if got == nil || len(got) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestFetchProjectTasks(t *testing.T) {
	backend := newFakeBackend(t)
	backend.json(http.MethodGet, "/task/projectTasks/2", http.StatusOK, map[string]any{
		"tasks": []map[string]any{{"id": 11, "project_id": 2, "title": "Dub ep 1", "status": "In Progress"}},
	})
	f := NewFetcher(newTestDownstream(backend), "tok")

	got, err := f.FetchProjectTasks(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 11 || got[0].Status != StatusInProgress || got[0].Priority != PriorityMedium {
		t.Fatalf("unexpected tasks %+v", got)
	}

	empty, err := f.FetchProjectTasks(context.Background(), 99)
	if err != nil || len(empty) != 0 {
		t.Fatalf("missing project should be empty, got %v %v", empty, err)
	}
}

func TestFetchProjectTasksAbsenceMessage(t *testing.T) {
	for _, msg := range []string{"No tasks found", "Tasks not found for project"} {
		backend := newFakeBackend(t)
		backend.json(http.MethodGet, "/task/projectTasks/4", http.StatusOK, map[string]string{"message": msg})
		f := NewFetcher(newTestDownstream(backend), "tok")

		got, err := f.FetchProjectTasks(context.Background(), 4)
		if err != nil || got == nil || len(got) != 0 {
			t.Fatalf("%q: want empty list, got %v %v", msg, got, err)
		}
	}
}
