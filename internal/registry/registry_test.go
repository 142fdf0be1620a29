package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   string
	Name string
}

func TestRegisterGetRemove(t *testing.T) {
	r := NewBaseRegistry[item]()

	require.NoError(t, r.Register("a", item{ID: "a", Name: "Alpha"}))
	require.Error(t, r.Register("", item{}))
	require.Error(t, r.Register("a", item{ID: "a", Name: "Duplicate"}))

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Alpha", got.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	require.NoError(t, r.Remove("a"))
	require.Error(t, r.Remove("a"))
}

func TestListCountClear(t *testing.T) {
	r := NewBaseRegistry[item]()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Register(fmt.Sprintf("item-%d", i), item{ID: fmt.Sprintf("item-%d", i)}))
	}
	assert.Equal(t, 3, r.Count())
	assert.Len(t, r.List(), 3)

	r.Clear()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.List())
}

func TestConcurrentAccess(t *testing.T) {
	r := NewBaseRegistry[item]()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = r.Register(fmt.Sprintf("c-%d", i), item{ID: fmt.Sprintf("c-%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			r.Get(fmt.Sprintf("c-%d", i))
			r.Count()
			r.List()
		}
	}()
	wg.Wait()

	assert.Equal(t, 200, r.Count())
}
