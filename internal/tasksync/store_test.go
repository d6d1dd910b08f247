package tasksync

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStoreCloseDropsPendingWork(t *testing.T) {
	s := NewStore()
	var ran atomic.Int32

	s.After(20*time.Millisecond, func() { ran.Add(1) })
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", s.Pending())
	}
	s.Close()
	s.After(0, func() { ran.Add(1) })

	time.Sleep(60 * time.Millisecond)
	if ran.Load() != 0 {
		t.Fatal("work ran after Close")
	}
	if s.Pending() != 0 || !s.Closed() {
		t.Fatal("store should be closed with nothing pending")
	}
}

func TestStoreAfterRuns(t *testing.T) {
	s := NewStore()
	defer s.Close()
	done := make(chan struct{})

	s.After(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled work did not run")
	}
}

func TestStorePatchAndRemoveSubtask(t *testing.T) {
	s := NewStore()
	s.ReplaceSubtasks(9, []SubtaskView{{Subtask: Subtask{ID: 1, TaskID: 9, Title: "a"}}})

	s.PatchSubtask(SubtaskView{Subtask: Subtask{ID: 1, TaskID: 9, Title: "b"}})
	s.PatchSubtask(SubtaskView{Subtask: Subtask{ID: 2, TaskID: 9, Title: "c"}})

	got := s.Subtasks(9)
	if len(got) != 2 || got[0].Title != "b" || got[1].ID != 2 {
		t.Fatalf("unexpected subtasks %+v", got)
	}

	if !s.RemoveSubtask(1) {
		t.Fatal("subtask 1 should be removed")
	}
	if s.RemoveSubtask(1) {
		t.Fatal("second removal should report nothing removed")
	}
	if _, ok := s.Subtask(2); !ok {
		t.Fatal("subtask 2 should remain")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	s.SetUsers([]User{{ID: 1, Name: "a"}})

	users := s.Users()
	users[0].Name = "changed"

	if s.Users()[0].Name != "a" {
		t.Fatal("store state leaked through a returned slice")
	}
}

func TestStoreAssignGuard(t *testing.T) {
	s := NewStore()
	if !s.BeginAssign(5) {
		t.Fatal("first begin should succeed")
	}
	if s.BeginAssign(5) {
		t.Fatal("second begin should be rejected")
	}
	if !s.BeginAssign(6) {
		t.Fatal("other subtasks are independent")
	}
	s.EndAssign(5)
	if s.Assigning(5) {
		t.Fatal("guard should be released")
	}
}

func TestStoreDrafts(t *testing.T) {
	s := NewStore()
	s.SetDraft(2, ChatDraft{Message: "hi"})
	if s.Draft(2).Message != "hi" {
		t.Fatal("draft not stored")
	}
	s.SetDraft(2, ChatDraft{})
	if s.Draft(2) != (ChatDraft{}) {
		t.Fatal("zero draft should clear")
	}
}

func TestViewCloseStopsRefetches(t *testing.T) {
	backend := newFakeBackend(t)
	v := Mount(newTestDownstream(backend), "tok", ViewOptions{Delays: Delays{CreateRefresh: 20 * time.Millisecond}})
	backend.json("POST", "/subtasks/create", 201, map[string]any{"id": 3})

	if _, err := v.Mutator.CreateSubtask(context.Background(), SubtaskDraft{TaskID: 9, Title: "x"}); err != nil {
		t.Fatal(err)
	}
	v.Close()
	time.Sleep(60 * time.Millisecond)

	if n := backend.count("GET", "/subtasks/task/9"); n != 0 {
		t.Fatalf("refetch ran after unmount (%d requests)", n)
	}
}
