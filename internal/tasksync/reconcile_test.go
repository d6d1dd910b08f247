package tasksync

import (
	"reflect"
	"testing"
)

func TestReconcileUnassignedWithoutEvents(t *testing.T) {
	subtasks := []Subtask{{ID: 5, TaskID: 9, AssignedTo: 0}}

	views := Reconcile(subtasks, nil)

	if len(views) != 1 {
		t.Fatalf("got %d views, want 1", len(views))
	}
	if views[0].Assigned || views[0].DisplayAssignee() != Unassigned {
		t.Fatalf("subtask 5 should be unassigned, got %+v", views[0])
	}
}

func TestReconcileEventAssignsSubtask(t *testing.T) {
	subtasks := []Subtask{{ID: 5, TaskID: 9, AssignedTo: 0}}
	events := []AssignmentEvent{{
		TaskID:       5,
		AssignedUser: "Jane",
		UpdatedBy:    7,
		UpdatedAt:    ParseTimestamp("2024-01-02"),
	}}

	views := Reconcile(subtasks, events)

	v := views[0]
	if !v.Assigned || v.AssignedTo != 7 || v.DisplayAssignee() != "Jane" {
		t.Fatalf("want subtask 5 assigned to user 7 (Jane), got %+v", v)
	}
}

func TestLatestAssignmentWins(t *testing.T) {
	tests := []struct {
		name   string
		events []AssignmentEvent
		want   string
	}{
		{
			name: "newer timestamp",
			events: []AssignmentEvent{
				{TaskID: 1, AssignedUser: "A", UpdatedBy: 10, UpdatedAt: ParseTimestamp("2024-01-01T10:00:00Z")},
				{TaskID: 1, AssignedUser: "B", UpdatedBy: 11, UpdatedAt: ParseTimestamp("2024-01-02T10:00:00Z")},
			},
			want: "B",
		},
		{
			name: "newer listed first",
			events: []AssignmentEvent{
				{TaskID: 1, AssignedUser: "B", UpdatedBy: 11, UpdatedAt: ParseTimestamp("2024-01-02T10:00:00Z")},
				{TaskID: 1, AssignedUser: "A", UpdatedBy: 10, UpdatedAt: ParseTimestamp("2024-01-01T10:00:00Z")},
			},
			want: "B",
		},
		{
			name: "equal timestamps later listed wins",
			events: []AssignmentEvent{
				{TaskID: 1, AssignedUser: "A", UpdatedBy: 10, UpdatedAt: ParseTimestamp("2024-01-02")},
				{TaskID: 1, AssignedUser: "B", UpdatedBy: 11, UpdatedAt: ParseTimestamp("2024-01-02")},
			},
			want: "B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			views := Reconcile([]Subtask{{ID: 1, TaskID: 3}}, tt.events)
			if got := views[0].DisplayAssignee(); got != tt.want {
				t.Fatalf("assignee = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReconcileSentinelDropsStaleAssignee(t *testing.T) {
	subtasks := []Subtask{{ID: 2, TaskID: 3, AssignedTo: 0, AssignedUser: "Old Name", ProfileImage: "old.png"}}

	views := Reconcile(subtasks, nil)

	v := views[0]
	if v.Assigned || v.AssigneeImage != "" || v.AssignedUser != "" || v.DisplayAssignee() != Unassigned {
		t.Fatalf("stale assignee leaked into view: %+v", v)
	}
}

func TestReconcileEventWithZeroAssigneeIsUnassigned(t *testing.T) {
	subtasks := []Subtask{{ID: 2, TaskID: 3, AssignedTo: 4, AssignedUser: "Sam"}}
	events := []AssignmentEvent{{TaskID: 2, AssignedUser: "ghost", UpdatedBy: 0, UpdatedAt: ParseTimestamp("2024-03-01")}}

	if v := Reconcile(subtasks, events)[0]; v.Assigned {
		t.Fatalf("event with assignee 0 should unassign, got %+v", v)
	}
}

func TestReconcileKeepsOwnFieldsWithoutEvent(t *testing.T) {
	subtasks := []Subtask{{ID: 8, TaskID: 3, AssignedTo: 4, AssignedUser: "Sam", ProfileImage: "sam.png"}}
	events := []AssignmentEvent{{TaskID: 99, AssignedUser: "Other", UpdatedBy: 5, UpdatedAt: ParseTimestamp("2024-03-01")}}

	v := Reconcile(subtasks, events)[0]
	if !v.Assigned || v.AssigneeName != "Sam" || v.AssigneeImage != "sam.png" {
		t.Fatalf("own assignee lost: %+v", v)
	}
}

func TestReconcileDoesNotMutateInputs(t *testing.T) {
	subtasks := []Subtask{{ID: 1, TaskID: 3, AssignedTo: 0, FileURLs: []string{"a.png"}}}
	events := []AssignmentEvent{{TaskID: 1, AssignedUser: "Jane", UpdatedBy: 7, UpdatedAt: ParseTimestamp("2024-01-02")}}
	before := []Subtask{{ID: 1, TaskID: 3, AssignedTo: 0, FileURLs: []string{"a.png"}}}

	views := Reconcile(subtasks, events)
	views[0].FileURLs[0] = "changed.png"

	if !reflect.DeepEqual(subtasks, before) {
		t.Fatalf("inputs mutated: %+v", subtasks)
	}
}
