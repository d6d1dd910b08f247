package tasksync

import "github.com/Abdirhman569167/astaan-dubing-sub000/internal/utils"

// LatestAssignments keeps, per subtask id, the event with the greatest
// UpdatedAt. On equal timestamps the event listed later wins.
func LatestAssignments(events []AssignmentEvent) map[int64]AssignmentEvent {
	return utils.Fold(events, make(map[int64]AssignmentEvent, len(events)),
		func(acc map[int64]AssignmentEvent, ev AssignmentEvent) map[int64]AssignmentEvent {
			cur, ok := acc[ev.TaskID]
			if !ok || !ev.UpdatedAt.Before(cur.UpdatedAt.Time) {
				acc[ev.TaskID] = ev
			}
			return acc
		})
}

// Reconcile builds one view per subtask. Inputs are not modified.
func Reconcile(subtasks []Subtask, events []AssignmentEvent) []SubtaskView {
	latest := LatestAssignments(events)

	return utils.Map(subtasks, func(s Subtask) SubtaskView {
		s.FileURLs = append([]string{}, s.FileURLs...)
		if ev, ok := latest[s.ID]; ok {
			s.AssignedTo = ev.UpdatedBy
			s.AssignedUser = ev.AssignedUser
			s.ProfileImage = ev.ProfileImage
		}
		return viewOf(s)
	})
}

// viewOf applies the unassigned sentinel: assigned_to 0 never carries a name.
func viewOf(s Subtask) SubtaskView {
	if s.AssignedTo == 0 {
		s.AssignedUser = ""
		s.ProfileImage = ""
		return SubtaskView{Subtask: s, AssigneeName: Unassigned}
	}
	return SubtaskView{
		Subtask:       s,
		Assigned:      true,
		AssigneeName:  s.AssignedUser,
		AssigneeImage: s.ProfileImage,
	}
}
