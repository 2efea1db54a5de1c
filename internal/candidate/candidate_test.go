package candidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestRegistry() *Registry {
	return NewRegistry(
		Candidate{Name: "deepin wm", ExecName: "deepin-wm"},
		Candidate{Name: "deepin metacity", ExecName: "deepin-metacity"},
	)
}

func TestChoice_Other(t *testing.T) {
	assert.Equal(t, Fallback, Primary.Other())
	assert.Equal(t, Primary, Fallback.Other())
	assert.Equal(t, None, None.Other())
	assert.True(t, None.IsNone())
	assert.False(t, Primary.IsNone())
}

func TestRegistry_Lookup(t *testing.T) {
	r := newTestRegistry()

	assert.Equal(t, Primary, r.Lookup("deepin-wm"))
	assert.Equal(t, Fallback, r.Lookup("deepin-metacity"))
	assert.Equal(t, None, r.Lookup("kwin"))
	assert.Equal(t, None, r.Lookup(""))
	assert.Nil(t, r.Get(None))
	assert.Equal(t, "deepin metacity", r.Get(Fallback).Name)
}

func TestRegistry_SetEnvCopiesAndClears(t *testing.T) {
	r := newTestRegistry()
	env := map[string]string{"COGL_DRIVER": "gl"}
	r.SetEnv(Primary, env)
	env["COGL_DRIVER"] = "gles2"

	assert.Equal(t, "gl", r.Get(Primary).Env["COGL_DRIVER"])
	assert.Equal(t, []string{"COGL_DRIVER=gl"}, r.Get(Primary).EnvList())
	assert.Empty(t, r.Get(Fallback).Env)

	r.ClearEnv()
	assert.Empty(t, r.Get(Primary).Env)
}

func TestCandidate_EnvListSorted(t *testing.T) {
	c := Candidate{Env: map[string]string{"NO_AT_BRIDGE": "1", "LIBGL_ALWAYS_SOFTWARE": "1"}}
	assert.Equal(t, []string{"LIBGL_ALWAYS_SOFTWARE=1", "NO_AT_BRIDGE=1"}, c.EnvList())
}
