package tasksync

import "strings"

type Status string

const (
	StatusToDo       Status = "To Do"
	StatusInProgress Status = "In Progress"
	StatusReview     Status = "Review"
	StatusCompleted  Status = "Completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusReview, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Role string

const (
	RoleAdmin         Role = "Admin"
	RoleSupervisor    Role = "Supervisor"
	RoleTranslator    Role = "Translator"
	RoleVoiceOver     Role = "Voice-over Artist"
	RoleSoundEngineer Role = "Sound Engineer"
	RoleEditor        Role = "Editor"
	RoleUser          Role = "User"
)

// Assignable reports whether users with this role may be picked as assignees.
// Role names compare case-insensitively.
func (r Role) Assignable() bool {
	name := strings.TrimSpace(string(r))
	return !strings.EqualFold(name, string(RoleAdmin)) && !strings.EqualFold(name, string(RoleSupervisor))
}

type Task struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"project_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         Status    `json:"status"`
	Priority       Priority  `json:"priority"`
	Deadline       Timestamp `json:"deadline"`
	EstimatedHours float64   `json:"estimated_hours"`
	FileURLs       []string  `json:"file_url"`
}

type Subtask struct {
	ID             int64     `json:"id"`
	TaskID         int64     `json:"task_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         Status    `json:"status"`
	Priority       Priority  `json:"priority"`
	Deadline       Timestamp `json:"deadline"`
	EstimatedHours float64   `json:"estimated_hours"`
	AssignedTo     int64     `json:"assigned_to"` // 0 = unassigned
	AssignedUser   string    `json:"assigned_user"`
	ProfileImage   string    `json:"profile_image"`
	FileURLs       []string  `json:"file_url"`
	CompletedAt    Timestamp `json:"completed_at"`
}

// AssignmentEvent is one entry of the assignment status history. TaskID holds
// the id of the subtask the assignment targets, UpdatedBy the assignee.
type AssignmentEvent struct {
	TaskID       int64     `json:"task_id"`
	AssignedUser string    `json:"assigned_user"`
	ProfileImage string    `json:"profile_image"`
	UpdatedBy    int64     `json:"updated_by"`
	UpdatedAt    Timestamp `json:"updated_at"`
}

type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	ProfileImage string `json:"profile_image,omitempty"`
}

const Unassigned = "Unassigned"

// SubtaskView is a subtask with its assignee resolved against the
// assignment history.
type SubtaskView struct {
	Subtask
	Assigned      bool   `json:"assigned"`
	AssigneeName  string `json:"assignee_name"`
	AssigneeImage string `json:"assignee_image,omitempty"`
}

func (v SubtaskView) DisplayAssignee() string {
	if !v.Assigned {
		return Unassigned
	}
	return v.AssigneeName
}

type ChatMessage struct {
	ID         int64     `json:"id"`
	ProjectID  int64     `json:"project_id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Message    string    `json:"message"`
	FileURL    string    `json:"file_url,omitempty"`
	CreatedAt  Timestamp `json:"created_at"`
	Pending    bool      `json:"pending,omitempty"`
	LocalID    string    `json:"local_id,omitempty"` // set on optimistic sends only
}
