package tasksync

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeBackend routes by "METHOD /path" and counts hits. Unknown routes get a 404.
type fakeBackend struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
	srv      *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.hits[key]++
		h, ok := f.handlers[key]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBackend) handle(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+path] = h
}

func (f *fakeBackend) json(method, path string, status int, body any) {
	f.handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, body)
	})
}

func (f *fakeBackend) count(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[method+" "+path]
}

func (f *fakeBackend) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.hits {
		n += c
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if s, ok := body.(string); ok {
		_, _ = io.WriteString(w, s)
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestDownstream(f *fakeBackend) *Downstream {
	return NewDownstream(DownstreamOptions{
		BaseURL: f.srv.URL,
		Logger:  quietLogger(),
	})
}

// manualScheduler records scheduled work; run executes it in order.
type manualScheduler struct {
	mu     sync.Mutex
	delays []time.Duration
	jobs   []func()
}

func (m *manualScheduler) After(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays = append(m.delays, d)
	m.jobs = append(m.jobs, f)
}

func (m *manualScheduler) scheduled() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

func (m *manualScheduler) run() {
	m.mu.Lock()
	jobs := m.jobs
	m.jobs, m.delays = nil, nil
	m.mu.Unlock()
	for _, j := range jobs {
		j()
	}
}

type testView struct {
	backend *fakeBackend
	sched   *manualScheduler
	view    *View
}

func newTestView(t *testing.T) *testView {
	t.Helper()
	backend := newFakeBackend(t)
	sched := &manualScheduler{}
	v := Mount(newTestDownstream(backend), "token-1", ViewOptions{
		Delays:    DefaultDelays(),
		Scheduler: sched,
	})
	t.Cleanup(v.Close)
	return &testView{backend: backend, sched: sched, view: v}
}

func hasNotification(ns []Notification, level Level, msg string) bool {
	for _, n := range ns {
		if n.Level == level && n.Message == msg {
			return true
		}
	}
	return false
}
