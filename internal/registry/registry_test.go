package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle string

func (f fakeHandle) ID() string { return string(f) }

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	r := New()

	tabA := fakeHandle("tab-a")
	tabB := fakeHandle("tab-b")

	assert.True(t, r.Register("alice", tabA))
	assert.True(t, r.Register("alice", tabB)) // second connection
	assert.False(t, r.Register("alice", tabA), "re-register is idempotent")

	require.Len(t, r.HandlesFor("alice"), 2)
	assert.True(t, r.Online("alice"))

	user, last := r.Unregister(tabA)
	assert.Equal(t, "alice", user)
	assert.False(t, last)
	assert.Equal(t, []Handle{tabB}, r.HandlesFor("alice"))

	user, last = r.Unregister(tabB)
	assert.Equal(t, "alice", user)
	assert.True(t, last)
	assert.Empty(t, r.HandlesFor("alice"))
	assert.False(t, r.Online("alice"))
	assert.Zero(t, r.Count())
}

func TestRegistry_UnknownUserAndHandle(t *testing.T) {
	r := New()
	assert.NotNil(t, r.HandlesFor("nobody"))
	assert.Empty(t, r.HandlesFor("nobody"))

	user, last := r.Unregister(fakeHandle("ghost"))
	assert.Empty(t, user)
	assert.False(t, last)
}

func TestRegistry_HandleMovesBetweenUsers(t *testing.T) {
	r := New()
	h := fakeHandle("h1")
	r.Register("alice", h)
	r.Register("bob", h)

	assert.Empty(t, r.HandlesFor("alice"))
	assert.Equal(t, []Handle{h}, r.HandlesFor("bob"))
	assert.False(t, r.Online("alice"))
	assert.True(t, r.Online("bob"))
}

func TestRegistry_HandlesForReturnsCopy(t *testing.T) {
	r := New()
	r.Register("alice", fakeHandle("h1"))
	hs := r.HandlesFor("alice")
	hs[0] = fakeHandle("tampered")
	assert.Equal(t, "h1", r.HandlesFor("alice")[0].ID())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := fakeHandle(fmt.Sprintf("h%d", i))
			user := fmt.Sprintf("u%d", i%5)
			r.Register(user, h)
			_ = r.HandlesFor(user)
			if i%2 == 0 {
				r.Unregister(h)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, r.Count())
	for i := 0; i < 5; i++ {
		assert.True(t, r.Online(fmt.Sprintf("u%d", i)))
	}
}
