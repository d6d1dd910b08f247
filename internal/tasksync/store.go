package tasksync

import (
	"slices"
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseSubmitting  Phase = "submitting"
	PhaseApplied     Phase = "applied"
	PhaseFailed      Phase = "failed"
	PhaseReconciling Phase = "reconciling"
)

type EntityKind string

const (
	EntityTask    EntityKind = "task"
	EntitySubtask EntityKind = "subtask"
)

type entityKey struct {
	kind EntityKind
	id   int64
}

// Scheduler runs f after d. Stopping the owner drops pending work.
type Scheduler interface {
	After(d time.Duration, f func())
}

// ChatDraft is the unsent chat input kept for the user after a failed send.
type ChatDraft struct {
	Message  string `json:"message"`
	FileName string `json:"file_name,omitempty"`
}

// Store is the state of one mounted view. Create it on mount with NewStore
// and Close it on unmount; pending refetches are dropped on Close.
type Store struct {
	mu sync.Mutex

	tasks     []Task
	subtasks  map[int64][]SubtaskView // by parent task id
	users     []User
	chat      map[int64][]ChatMessage // by project id
	drafts    map[int64]ChatDraft
	phases    map[entityKey]Phase
	assigning map[int64]struct{}

	timers map[*time.Timer]struct{}
	closed bool
}

func NewStore() *Store {
	return &Store{
		subtasks:  make(map[int64][]SubtaskView),
		chat:      make(map[int64][]ChatMessage),
		drafts:    make(map[int64]ChatDraft),
		phases:    make(map[entityKey]Phase),
		assigning: make(map[int64]struct{}),
		timers:    make(map[*time.Timer]struct{}),
	}
}

func (s *Store) After(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		closed := s.closed
		s.mu.Unlock()

		if !closed {
			f()
		}
	})
	s.timers[t] = struct{}{}
}

func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}

func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// tasks

func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tasks)
}

func (s *Store) SetTasks(tasks []Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = slices.Clone(tasks)
}

// UpsertTask replaces the task with the same id or appends it.
func (s *Store) UpsertTask(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.IndexFunc(s.tasks, func(x Task) bool { return x.ID == t.ID }); i >= 0 {
		s.tasks[i] = t
		return
	}
	s.tasks = append(s.tasks, t)
}

func (s *Store) RemoveTask(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.tasks)
	s.tasks = slices.DeleteFunc(s.tasks, func(x Task) bool { return x.ID == id })
	delete(s.subtasks, id)
	return len(s.tasks) != before
}

func (s *Store) Task(id int64) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.IndexFunc(s.tasks, func(x Task) bool { return x.ID == id }); i >= 0 {
		return s.tasks[i], true
	}
	return Task{}, false
}

// subtasks

func (s *Store) Subtasks(taskID int64) []SubtaskView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.subtasks[taskID])
}

func (s *Store) ReplaceSubtasks(taskID int64, views []SubtaskView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subtasks[taskID] = slices.Clone(views)
}

func (s *Store) Subtask(id int64) (SubtaskView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, views := range s.subtasks {
		for _, v := range views {
			if v.ID == id {
				return v, true
			}
		}
	}
	return SubtaskView{}, false
}

// PatchSubtask replaces the cached subtask with the same id, appending it
// under its task when it is not cached yet.
func (s *Store) PatchSubtask(v SubtaskView) {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := s.subtasks[v.TaskID]
	if i := slices.IndexFunc(views, func(x SubtaskView) bool { return x.ID == v.ID }); i >= 0 {
		views[i] = v
		return
	}
	s.subtasks[v.TaskID] = append(views, v)
}

func (s *Store) RemoveSubtask(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for taskID, views := range s.subtasks {
		kept := slices.DeleteFunc(slices.Clone(views), func(x SubtaskView) bool { return x.ID == id })
		if len(kept) != len(views) {
			s.subtasks[taskID] = kept
			return true
		}
	}
	return false
}

// users

func (s *Store) Users() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.users)
}

func (s *Store) SetUsers(users []User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = slices.Clone(users)
}

// assignment guard

// BeginAssign marks subtask id as being assigned. It returns false when an
// assignment for the same subtask is already in flight.
func (s *Store) BeginAssign(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.assigning[id]; busy {
		return false
	}
	s.assigning[id] = struct{}{}
	return true
}

func (s *Store) EndAssign(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assigning, id)
}

func (s *Store) Assigning(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.assigning[id]
	return busy
}

// phases

func (s *Store) Phase(kind EntityKind, id int64) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.phases[entityKey{kind, id}]; ok {
		return p
	}
	return PhaseIdle
}

func (s *Store) setPhase(kind EntityKind, id int64, p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p == PhaseIdle {
		delete(s.phases, entityKey{kind, id})
		return
	}
	s.phases[entityKey{kind, id}] = p
}

// chat

func (s *Store) Chat(projectID int64) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.chat[projectID])
}

func (s *Store) SetChat(projectID int64, msgs []ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat[projectID] = slices.Clone(msgs)
}

func (s *Store) AppendChat(projectID int64, msg ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat[projectID] = append(s.chat[projectID], msg)
}

// DropPendingChat withdraws the optimistic message with the given local id.
// Other pending messages stay until a refetch replaces them.
func (s *Store) DropPendingChat(projectID int64, localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat[projectID] = slices.DeleteFunc(slices.Clone(s.chat[projectID]), func(m ChatMessage) bool {
		return m.Pending && m.LocalID == localID
	})
}

func (s *Store) Draft(projectID int64) ChatDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[projectID]
}

func (s *Store) SetDraft(projectID int64, d ChatDraft) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d == (ChatDraft{}) {
		delete(s.drafts, projectID)
		return
	}
	s.drafts[projectID] = d
}
