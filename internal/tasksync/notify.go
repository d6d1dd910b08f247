package tasksync

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notification is a transient, user-visible message.
type Notification struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Notify(n Notification)
}

// Inbox buffers notifications until the presentation layer drains them.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	log   *logrus.Logger
}

func NewInbox(log *logrus.Logger) *Inbox {
	return &Inbox{log: log}
}

func (i *Inbox) Notify(n Notification) {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	if i.log != nil {
		i.log.WithField("level", n.Level).Debugf("notify: %s", n.Message)
	}

	i.mu.Lock()
	i.items = append(i.items, n)
	i.mu.Unlock()
}

func (i *Inbox) Drain() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := i.items
	i.items = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

func notifyError(n Notifier, err error, fallback string) {
	if n == nil || err == nil {
		return
	}
	msg := fallback
	var e *Error
	if errors.As(err, &e) {
		msg = e.UserMessage(fallback)
	}
	n.Notify(Notification{Level: LevelError, Message: msg})
}

func notifySuccess(n Notifier, msg string) {
	if n == nil {
		return
	}
	n.Notify(Notification{Level: LevelSuccess, Message: msg})
}
