package guild

import (
	"context"
	"sync"
)

// Registry holds the runners of one bot session, keyed by guild id.
type Registry struct {
	mu      sync.Mutex
	runners map[string]*entry
	wg      sync.WaitGroup
}

type entry struct {
	runner *Runner
	cancel context.CancelFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]*entry)}
}

// Claim reserves guildID for onboarding. It reports false when the guild is
// already running or being onboarded.
func (reg *Registry) Claim(guildID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.runners[guildID]; ok {
		return false
	}
	reg.runners[guildID] = &entry{}
	return true
}

// Release drops a claim whose onboarding failed.
func (reg *Registry) Release(guildID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if e, ok := reg.runners[guildID]; ok && e.runner == nil {
		delete(reg.runners, guildID)
	}
}

// Start runs r on its own goroutine until ctx is cancelled or the guild is
// stopped. The guild must have been claimed: it reports false, without
// starting r, when the claim was dropped by Stop while onboarding.
func (reg *Registry) Start(ctx context.Context, r *Runner) bool {
	ctx, cancel := context.WithCancel(ctx)

	reg.mu.Lock()
	old, ok := reg.runners[r.GuildID()]
	if !ok {
		reg.mu.Unlock()
		cancel()
		return false
	}
	if old.cancel != nil {
		old.cancel()
	}
	reg.runners[r.GuildID()] = &entry{runner: r, cancel: cancel}
	reg.wg.Add(1)
	reg.mu.Unlock()

	go func() {
		defer reg.wg.Done()
		r.Run(ctx)
	}()
	return true
}

// Get returns the running runner of guildID.
func (reg *Registry) Get(guildID string) (*Runner, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.runners[guildID]
	if !ok || e.runner == nil {
		return nil, false
	}
	return e.runner, true
}

// Deliver routes ev to the runner of guildID, reporting whether it was queued.
func (reg *Registry) Deliver(guildID string, ev Event) bool {
	r, ok := reg.Get(guildID)
	if !ok {
		return false
	}
	return r.Deliver(ev)
}

// Stop cancels the runner of guildID.
func (reg *Registry) Stop(guildID string) {
	reg.mu.Lock()
	e, ok := reg.runners[guildID]
	delete(reg.runners, guildID)
	reg.mu.Unlock()
	if ok && e.cancel != nil {
		e.cancel()
	}
}

// StopAll cancels every runner and waits for them to return.
func (reg *Registry) StopAll() {
	reg.mu.Lock()
	for id, e := range reg.runners {
		if e.cancel != nil {
			e.cancel()
		}
		delete(reg.runners, id)
	}
	reg.mu.Unlock()
	reg.wg.Wait()
}

// Len is the number of running or onboarding guilds.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.runners)
}
