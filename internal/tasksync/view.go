package tasksync

import (
	"context"

	"github.com/google/uuid"
)

// View is everything a mounted project page owns: its store, the pipeline
// bound to the caller's bearer and the mutators writing to that store.
type View struct {
	ID      string
	Store   *Store
	Inbox   *Inbox
	Fetcher *Fetcher
	Syncer  *Syncer
	Mutator *Mutator
	Chat    *Chat

	cancel context.CancelFunc
}

type ViewOptions struct {
	Delays    Delays
	Scheduler Scheduler // nil uses the view's store
}

// Mount builds a view. Call Close on unmount.
func Mount(ds *Downstream, bearer string, opts ViewOptions) *View {
	ctx, cancel := context.WithCancel(context.Background())

	store := NewStore()
	inbox := NewInbox(ds.log)
	fetcher := NewFetcher(ds, bearer)
	syncer := NewSyncer(fetcher, store, inbox)
	mopts := MutatorOptions{
		Store:     store,
		Syncer:    syncer,
		Notifier:  inbox,
		Scheduler: opts.Scheduler,
		Delays:    opts.Delays,
		Base:      ctx,
	}

	return &View{
		ID:      uuid.NewString(),
		Store:   store,
		Inbox:   inbox,
		Fetcher: fetcher,
		Syncer:  syncer,
		Mutator: NewMutator(ds, bearer, mopts),
		Chat:    NewChat(ds, bearer, mopts),
		cancel:  cancel,
	}
}

// Close drops pending refetches and cancels the ones in flight.
func (v *View) Close() {
	v.Store.Close()
	v.cancel()
}
