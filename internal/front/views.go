package front

import (
	"errors"
	"sync"

	"github.com/Abdirhman569167/astaan-dubing-sub000/internal/tasksync"
)

var (
	errViewNotFound = errors.New("view not mounted")
	errTooManyViews = errors.New("too many mounted views")
)

type mountedView struct {
	view  *tasksync.View
	owner string // token subject of the caller that mounted it
}

// viewRegistry holds the views mounted by callers. Each view owns its store
// and its pending refetches; unmounting drops them.
type viewRegistry struct {
	ds    *tasksync.Downstream
	opts  tasksync.ViewOptions
	max   int
	mu    sync.Mutex
	views map[string]mountedView
}

func newViewRegistry(ds *tasksync.Downstream, opts tasksync.ViewOptions, max int) *viewRegistry {
	return &viewRegistry{ds: ds, opts: opts, max: max, views: make(map[string]mountedView)}
}

func (r *viewRegistry) mount(bearer, owner string) (*tasksync.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.views) >= r.max {
		return nil, errTooManyViews
	}
	v := tasksync.Mount(r.ds, bearer, r.opts)
	r.views[v.ID] = mountedView{view: v, owner: owner}
	return v, nil
}

// get returns the view only to the caller that mounted it.
func (r *viewRegistry) get(id, owner string) (*tasksync.View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mv, ok := r.views[id]
	if !ok || mv.owner != owner {
		return nil, errViewNotFound
	}
	return mv.view, nil
}

func (r *viewRegistry) unmount(id, owner string) error {
	r.mu.Lock()
	mv, ok := r.views[id]
	if !ok || mv.owner != owner {
		r.mu.Unlock()
		return errViewNotFound
	}
	delete(r.views, id)
	r.mu.Unlock()

	mv.view.Close()
	return nil
}

func (r *viewRegistry) closeAll() {
	r.mu.Lock()
	views := r.views
	r.views = make(map[string]mountedView)
	r.mu.Unlock()

	for _, mv := range views {
		mv.view.Close()
	}
}

func (r *viewRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
