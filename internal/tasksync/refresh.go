package tasksync

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Syncer runs the fetch and reconcile pipeline for one view and stores the result.
type Syncer struct {
	fetcher *Fetcher
	store   *Store
	notify  Notifier
	log     *logrus.Logger
}

func NewSyncer(f *Fetcher, s *Store, n Notifier) *Syncer {
	return &Syncer{fetcher: f, store: s, notify: n, log: f.log}
}

// RefreshSubtasks fetches subtasks and the assignment history concurrently and
// reconciles once both settled. When subtasks cannot be loaded the cached
// views are kept and a notification is raised.
func (s *Syncer) RefreshSubtasks(ctx context.Context, taskID int64) ([]SubtaskView, error) {
	var (
		subtasks []Subtask
		subErr   error
		events   []AssignmentEvent
		g        errgroup.Group
	)

	g.Go(func() error {
		subtasks, subErr = s.fetcher.FetchSubtasks(ctx, taskID)
		return nil
	})
	g.Go(func() error {
		events = s.fetcher.FetchAssignmentEvents(ctx)
		return nil
	})
	_ = g.Wait()

	if subErr != nil {
		notifyError(s.notify, subErr, "Failed to load subtasks")
		return s.store.Subtasks(taskID), subErr
	}

	views := Reconcile(subtasks, events)
	s.store.ReplaceSubtasks(taskID, views)
	s.log.WithFields(logrus.Fields{"task": taskID, "subtasks": len(views), "events": len(events)}).Debug("subtasks reconciled")

	return views, nil
}

func (s *Syncer) RefreshTasks(ctx context.Context, projectID int64) ([]Task, error) {
	tasks, err := s.fetcher.FetchProjectTasks(ctx, projectID)
	if err != nil {
		notifyError(s.notify, err, "Failed to load tasks")
		return s.store.Tasks(), err
	}
	s.store.SetTasks(tasks)
	return tasks, nil
}

// RefreshUsers loads the assignee picker. Contract violations are reported loudly.
func (s *Syncer) RefreshUsers(ctx context.Context) ([]User, error) {
	users, err := s.fetcher.FetchUsers(ctx)
	if err != nil {
		s.log.Errorf("failed to load users: %v", err)
		notifyError(s.notify, err, "Failed to load users")
		return s.store.Users(), err
	}
	s.store.SetUsers(users)
	return users, nil
}
