package debug

import "github.com/ironrail/stcore/internal/program"

// WatchEvaluator evaluates a side-effect-free expression against the
// live runtime state; supplied by the engine facade, which owns the
// evaluator. Debug watch expressions must never mutate storage — the
// facade is responsible for running them through a read-only EvalContext.
type WatchEvaluator func(expr *program.Expr) (Comparable, error)

// Comparable is the minimal surface a watch result needs: equality
// against a previous result. Implemented by value.Value via the
// engine facade's adapter, kept abstract here so this package does not
// need to import internal/value just to compare two results.
type Comparable interface {
	Equal(other Comparable) bool
}

type trackedWatch struct {
	name string
	expr *program.Expr
	last Comparable
	has  bool
}

// AddWatch registers expr for re-evaluation after every stop.
func (c *Control) AddWatch(name string, expr *program.Expr) {
	c.watchesMu.Lock()
	c.watches = append(c.watches, &trackedWatch{name: name, expr: expr})
	c.watchesMu.Unlock()
}

// SetWatchEvaluator installs the callback used to evaluate watch
// expressions; must be set before any stop triggers reevaluateWatches.
func (c *Control) SetWatchEvaluator(fn WatchEvaluator) {
	c.watchesMu.Lock()
	c.watchEval = fn
	c.watchesMu.Unlock()
}

func (c *Control) reevaluateWatches() {
	c.watchesMu.Lock()
	defer c.watchesMu.Unlock()
	if c.watchEval == nil {
		return
	}
	for _, w := range c.watches {
		v, err := c.watchEval(w.expr)
		if err != nil {
			continue
		}
		if w.has && w.last.Equal(v) {
			continue
		}
		w.last, w.has = v, true
		c.watchChanged = true
	}
}

// TakeWatchChanged reports whether any watch's value changed since the
// last call, resetting the flag.
func (c *Control) TakeWatchChanged() bool {
	c.watchesMu.Lock()
	defer c.watchesMu.Unlock()
	changed := c.watchChanged
	c.watchChanged = false
	return changed
}
