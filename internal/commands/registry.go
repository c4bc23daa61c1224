package commands

import (
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"cmdhelper/internal/logger"
)

// Registry owns the published snapshot. Polling passes replace the SA-MP, SF
// and CLEO categories; live MoonLoader events edit the Lua category in place
// of a new pass. Every change publishes a fresh snapshot, so a reader holding
// the previous one never observes a partial update.
type Registry struct {
	mu     sync.Mutex
	polled *Categories
	live   ModuleMap

	snapshot atomic.Pointer[Categories]
	log      *log.Logger
}

// NewRegistry returns a registry publishing an empty snapshot.
func NewRegistry() *Registry {
	r := &Registry{
		polled: NewCategories(),
		live:   make(ModuleMap),
		log:    logger.NewStyledLogger("registry"),
	}
	r.snapshot.Store(NewCategories())
	return r
}

// Snapshot returns the current categories.
func (r *Registry) Snapshot() *Categories {
	return r.snapshot.Load()
}

// Refresh runs one aggregation pass and publishes it.
func (r *Registry) Refresh(src Sources) error {
	cats, err := Aggregate(src, r.log)
	if err != nil {
		return err
	}
	r.Publish(cats)
	return nil
}

// Publish replaces the polled categories. The Lua category always comes from
// the live tracker.
func (r *Registry) Publish(cats *Categories) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polled = cats.clone()
	r.publishLocked()

	for cat := range r.snapshot.Load().All() {
		r.log.Info("Category published", "category", cat.Name, "visible", cat.Visible, "modules", len(cat.Modules), "commands", cat.Modules.Len())
	}
}

// AddLive records a command registered by a Lua script.
func (r *Registry) AddLive(script, cmd string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live.Add(script, cmd) {
		r.log.Debug("Lua command registered", "module", script, "command", WithPrefix(cmd))
	}
	r.publishLocked()
}

// RemoveLive forgets a command unregistered by a Lua script. A script whose
// last command is gone disappears from the category.
func (r *Registry) RemoveLive(script, cmd string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live.Remove(script, cmd) {
		r.log.Debug("Lua command unregistered", "module", script, "command", WithPrefix(cmd))
	}
	r.publishLocked()
}

func (r *Registry) publishLocked() {
	next := r.polled.clone()
	next.set(Lua, r.live.Clone())
	r.snapshot.Store(next)
}
