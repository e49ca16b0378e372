// Package watchdog names the hardware reset timer the orchestrator pets
// around long-running flash operations: pet before each copy and before
// each store, so a long erase never starves the countdown. The concrete
// timer is a board support concern outside this module's scope; only the
// interface, a no-op implementation and a counting test double live here.
package watchdog

// Watchdog is the minimal capability the orchestrator depends on. A real
// implementation wraps a hardware timer peripheral; Pet must be cheap and
// non-blocking.
type Watchdog interface {
	// Pet resets the watchdog's countdown. Called before every copy and
	// before every store.
	Pet()
}

// NoOp is a Watchdog that does nothing, for hosted tests and the CLI demo
// where no hardware timer exists.
type NoOp struct{}

// Pet implements Watchdog by doing nothing.
func (NoOp) Pet() {}

var _ Watchdog = NoOp{}

// Counter is a test double that records how many times Pet was called, so
// orchestrator tests can assert the "pet before each copy and each store"
// policy is honored.
type Counter struct {
	Count int
}

// Pet implements Watchdog.
func (c *Counter) Pet() {
	c.Count++
}

var _ Watchdog = (*Counter)(nil)
