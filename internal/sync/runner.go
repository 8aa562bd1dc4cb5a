package sync

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/raptchat/rapt/internal/auth"
	"github.com/raptchat/rapt/internal/bus"
	"github.com/raptchat/rapt/internal/status"
)

// Runner serializes sync passes and moves the session status around them.
// It also reacts to auth events: a login triggers a full pass, a logout
// closes every room.
type Runner struct {
	contacts *ContactEngine
	chats    *ChatEngine
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRunner creates a Runner.
func NewRunner(contacts *ContactEngine, chats *ChatEngine, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		contacts: contacts,
		chats:    chats,
		machine:  machine,
		bus:      b,
		logger:   logger,
	}
}

// Start subscribes to auth events on the bus.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("auth.", 16)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops reacting to auth events.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindLoggedIn:
		r.machine.TransitionIf(status.Ready, status.AuthRequired, status.Booting)
		go r.SyncAll(ctx)
	case bus.KindLoggedOut:
		r.chats.CloseAll()
		r.machine.TransitionIf(status.AuthRequired, status.Ready, status.Syncing, status.Degraded)
	}
}

// SyncContacts runs one contact pass.
func (r *Runner) SyncContacts(ctx context.Context) ContactReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begin()
	rep := r.contacts.Sync(ctx)
	r.end(rep.Err)
	return rep
}

// SyncChats runs one chat pass.
func (r *Runner) SyncChats(ctx context.Context) ChatReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begin()
	rep := r.chats.Sync(ctx)
	r.end(rep.Err)
	return rep
}

// SyncAll runs a contact pass then a chat pass.
func (r *Runner) SyncAll(ctx context.Context) (ContactReport, ChatReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begin()
	contacts := r.contacts.Sync(ctx)
	chats := r.chats.Sync(ctx)
	r.end(errors.Join(contacts.Err, chats.Err))
	return contacts, chats
}

func (r *Runner) begin() {
	r.machine.TransitionIf(status.Syncing, status.Ready, status.Degraded)
}

func (r *Runner) end(err error) {
	switch {
	case err == nil:
		r.machine.TransitionIf(status.Ready, status.Syncing)
	case errors.Is(err, auth.ErrAuthenticationMissing), errors.Is(err, auth.ErrRefreshFailed):
		r.machine.TransitionIf(status.AuthRequired, status.Syncing, status.Ready, status.Degraded)
	default:
		r.machine.TransitionIf(status.Degraded, status.Syncing)
	}
}
