package eventbus

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleRegistry_Limit(t *testing.T) {
	t.Parallel()

	reg := newHandleRegistry(2)
	a, b, c := newFakeConsumer("a"), newFakeConsumer("b"), newFakeConsumer("c")

	releaseA, err := reg.acquire(a)
	require.NoError(t, err)
	_, err = reg.acquire(b)
	require.NoError(t, err)

	_, err = reg.acquire(c)
	assert.ErrorIs(t, err, ErrTooManyConsumers)
	assert.Equal(t, 2, reg.len())

	require.NoError(t, releaseA())
	assert.Equal(t, 1, reg.len())
	_, err = reg.acquire(c)
	assert.NoError(t, err)
}

func TestHandleRegistry_ReleaseClosesOnce(t *testing.T) {
	t.Parallel()

	reg := newHandleRegistry(4)
	h := newFakeConsumer("g")
	h.closeErr = errors.New("broken pipe")

	release, err := reg.acquire(h)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.ErrorIs(t, release(), h.closeErr)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.closeCount())
	assert.Zero(t, reg.len())
}

func TestHandleRegistry_CloseAll(t *testing.T) {
	t.Parallel()

	reg := newHandleRegistry(4)
	bad, good := newFakeConsumer("bad"), newFakeConsumer("good")
	bad.closeErr = errors.New("broken pipe")

	releaseBad, err := reg.acquire(bad)
	require.NoError(t, err)
	_, err = reg.acquire(good)
	require.NoError(t, err)

	var reported []error
	err = reg.closeAll(func(err error) { reported = append(reported, err) })

	assert.ErrorIs(t, err, bad.closeErr)
	assert.Len(t, reported, 1)
	assert.Equal(t, 1, bad.closeCount())
	assert.Equal(t, 1, good.closeCount())
	assert.Zero(t, reg.len())

	assert.ErrorIs(t, releaseBad(), bad.closeErr, "a later release does not close again")
	assert.Equal(t, 1, bad.closeCount())

	_, err = reg.acquire(newFakeConsumer("late"))
	assert.ErrorIs(t, err, ErrRuntimeClosed)

	assert.NoError(t, reg.closeAll(nil), "closing an empty registry is a no-op")
}
