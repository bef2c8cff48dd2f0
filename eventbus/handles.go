package eventbus

import (
	"errors"
	"fmt"
	"sync"
)

// handleRegistry tracks every live consumer handle so shutdown can close
// them all. It holds at most limit handles.
type handleRegistry struct {
	mu       sync.Mutex
	limit    int
	nextID   uint64
	releases map[uint64]func() error
	closed   bool
}

func newHandleRegistry(limit int) *handleRegistry {
	return &handleRegistry{
		limit:    limit,
		releases: make(map[uint64]func() error),
	}
}

// acquire registers h and returns the function that unregisters and closes
// it. Only the first call to the release function closes the handle; later
// calls return the same result.
func (r *handleRegistry) acquire(h GroupConsumer) (func() error, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRuntimeClosed
	}
	if len(r.releases) >= r.limit {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyConsumers, r.limit)
	}

	id := r.nextID
	r.nextID++

	var (
		once sync.Once
		err  error
	)
	release := func() error {
		once.Do(func() {
			r.mu.Lock()
			delete(r.releases, id)
			r.mu.Unlock()
			err = h.Close()
		})
		return err
	}
	r.releases[id] = release
	return release, nil
}

// len reports the number of live handles.
func (r *handleRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.releases)
}

// closeAll releases every handle and refuses further acquisitions. A
// failing handle does not stop the others; every failure is passed to
// onError and joined into the result.
func (r *handleRegistry) closeAll(onError func(error)) error {
	r.mu.Lock()
	r.closed = true
	live := make([]func() error, 0, len(r.releases))
	for _, release := range r.releases {
		live = append(live, release)
	}
	r.mu.Unlock()

	var errs []error
	for _, release := range live {
		if err := release(); err != nil {
			if onError != nil {
				onError(err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
