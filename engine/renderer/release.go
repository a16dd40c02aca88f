package renderer

import (
	"errors"
	"fmt"
)

// Release describes one deferred destruction: which object, and what kind of
// object it is.
type Release struct {
	Kind   ResourceKind
	Handle Handle
	Name   string
}

func (r Release) String() string {
	if r.Name == "" {
		return fmt.Sprintf("%s#%d", r.Kind, r.Handle)
	}
	return fmt.Sprintf("%s#%d(%s)", r.Kind, r.Handle, r.Name)
}

// ReleaseQueue collects release descriptors and executes them in reverse
// order of registration. Resources are pushed as they are acquired, so a
// flush tears them down dependents first.
type ReleaseQueue struct {
	releases []Release
}

// Push registers r. Null handles are ignored.
func (q *ReleaseQueue) Push(r Release) {
	if r.Handle == NullHandle {
		return
	}
	q.releases = append(q.releases, r)
}

// PushAll registers every descriptor in rs, in order.
func (q *ReleaseQueue) PushAll(rs []Release) {
	for _, r := range rs {
		q.Push(r)
	}
}

// Flush hands every pending descriptor to to, newest first, then empties the
// queue. Every descriptor is attempted; failures are joined.
func (q *ReleaseQueue) Flush(to Releaser) error {
	var errs []error
	for i := len(q.releases) - 1; i >= 0; i-- {
		r := q.releases[i]
		if err := to.Release(r); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", r, err))
		}
	}
	clear(q.releases)
	q.releases = q.releases[:0]
	return errors.Join(errs...)
}

func (q *ReleaseQueue) Len() int {
	return len(q.releases)
}

// Pending returns a copy of the queued descriptors in push order.
func (q *ReleaseQueue) Pending() []Release {
	out := make([]Release, len(q.releases))
	copy(out, q.releases)
	return out
}
