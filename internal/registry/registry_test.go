package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greeter func() string

type greeterModule struct{ names []string }

func (m greeterModule) Register(r *Registry[greeter]) {
	for _, name := range m.names {
		name := name
		r.Register(name, func() string { return "hello " + name })
	}
}

func TestRegistry_LoadAndLookup(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	r := New[greeter]("greeter")

	// --- Act ---
	r.Load(greeterModule{names: []string{"b", "a"}}, greeterModule{names: []string{"c"}})

	// --- Assert ---
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
	g, err := r.Lookup("b")
	require.NoError(t, err)
	assert.Equal(t, "hello b", g())
}

func TestRegistry_LookupUnknown(t *testing.T) {
	t.Parallel()

	r := New[greeter]("greeter")
	r.Load(greeterModule{names: []string{"a"}})

	g, err := r.Lookup("z")

	require.Error(t, err)
	assert.Nil(t, g)
	assert.Contains(t, err.Error(), `unknown greeter "z"`)
	assert.Contains(t, err.Error(), "[a]")
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	t.Parallel()

	r := New[greeter]("greeter")
	r.Load(greeterModule{names: []string{"a"}})

	assert.PanicsWithValue(t, "greeter with name 'a' already registered", func() {
		r.Register("a", nil)
	})
	assert.Panics(t, func() { r.Register("", nil) })
}
