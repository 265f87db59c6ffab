package journeys

import (
	"sync"

	"github.com/entrhq/journeyforge/pkg/journey"
	"github.com/entrhq/journeyforge/pkg/page"
)

// Pages resolves browser session names to pages.
type Pages interface {
	Page(session string) (page.Controller, error)
}

type boundSimulator struct {
	page page.Controller
	sim  *journey.Simulator
}

// Runner keeps one simulator per browser session, so concurrent runs on the
// same session are rejected and a run can be stopped by session name.
type Runner struct {
	mu      sync.Mutex
	pages   Pages
	sims    map[string]boundSimulator
	simOpts []journey.Option
}

// NewRunner creates a runner. opts apply to every simulator it creates.
func NewRunner(pages Pages, opts ...journey.Option) *Runner {
	return &Runner{
		pages:   pages,
		sims:    make(map[string]boundSimulator),
		simOpts: opts,
	}
}

// Simulator returns the simulator for session, creating it when the
// session is new or its page was replaced.
func (r *Runner) Simulator(session string) (*journey.Simulator, error) {
	p, err := r.pages.Page(session)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.sims[session]; ok && b.page == p {
		return b.sim, nil
	}
	sim := journey.NewSimulator(p, r.simOpts...)
	r.sims[session] = boundSimulator{page: p, sim: sim}
	return sim, nil
}

// Stop requests the running journey on session to stop. It reports whether
// a journey was running.
func (r *Runner) Stop(session string) bool {
	r.mu.Lock()
	b, ok := r.sims[session]
	r.mu.Unlock()
	return ok && b.sim.StopJourney()
}

// IsRunning reports whether a journey is running on session.
func (r *Runner) IsRunning(session string) bool {
	r.mu.Lock()
	b, ok := r.sims[session]
	r.mu.Unlock()
	return ok && b.sim.IsRunning()
}

// Forget drops the simulator of a closed session, stopping any run on it.
func (r *Runner) Forget(session string) {
	r.mu.Lock()
	b, ok := r.sims[session]
	delete(r.sims, session)
	r.mu.Unlock()
	if ok {
		b.sim.StopJourney()
	}
}
