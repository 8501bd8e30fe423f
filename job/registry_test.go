package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registryTestFunc() string { return "ok" }

func TestFuncRegistry_RegisterLookupUnregister(t *testing.T) {
	r := NewFuncRegistry()

	require.NoError(t, r.Register("myfunc", registryTestFunc))

	fn, ok := r.Lookup("myfunc")
	require.True(t, ok)
	assert.Equal(t, "ok", fn.(func() string)())

	r.Unregister("myfunc")
	_, ok = r.Lookup("myfunc")
	assert.False(t, ok)
}

func TestFuncRegistry_RejectsDuplicateRef(t *testing.T) {
	r := NewFuncRegistry()
	require.NoError(t, r.Register("dup", registryTestFunc))
	err := r.Register("dup", registryTestFunc)
	assert.Error(t, err)
}

func TestFuncRegistry_RejectsEmptyRefOrNilFunc(t *testing.T) {
	r := NewFuncRegistry()
	assert.Error(t, r.Register("", registryTestFunc))
	assert.Error(t, r.Register("ref", nil))
}

func TestFuncRegistry_Clear(t *testing.T) {
	r := NewFuncRegistry()
	require.NoError(t, r.Register("a", registryTestFunc))
	r.Clear()
	_, ok := r.Lookup("a")
	assert.False(t, ok)
}

func TestRegisterFuncByName_IsIdempotent(t *testing.T) {
	ClearFuncRegistry()
	defer ClearFuncRegistry()

	ref1, err := RegisterFuncByName(registryTestFunc)
	require.NoError(t, err)

	ref2, err := RegisterFuncByName(registryTestFunc)
	require.NoError(t, err)

	assert.Equal(t, ref1, ref2)

	fn, ok := LookupFunc(ref1)
	require.True(t, ok)
	assert.Equal(t, "ok", fn.(func() string)())
}

func TestFuncRegistry_LenAndRefs(t *testing.T) {
	r := NewFuncRegistry()
	assert.Equal(t, 0, r.Len())

	require.NoError(t, r.Register("a", registryTestFunc))
	require.NoError(t, r.Register("b", registryTestFunc))

	assert.Equal(t, 2, r.Len())
	assert.ElementsMatch(t, []string{"a", "b"}, r.Refs())
}

func TestRegisteredFuncRefs_ReflectsGlobalRegistry(t *testing.T) {
	ClearFuncRegistry()
	defer ClearFuncRegistry()

	require.NoError(t, RegisterFunc("global-ref", registryTestFunc))
	assert.Contains(t, RegisteredFuncRefs(), "global-ref")
}

func TestFuncRefForFunc_RejectsNonFunc(t *testing.T) {
	_, err := FuncRefForFunc(42)
	assert.Error(t, err)

	_, err = FuncRefForFunc(nil)
	assert.Error(t, err)
}
