package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/dbslice"
	"github.com/cuemby/shardkv/pkg/resp"
)

func stubHandler(slice *dbslice.Slice, argv [][]byte) resp.Value {
	return resp.SimpleString("OK")
}

func TestRegisterAndLookupIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Register(&CommandSpec{Name: "get", Arity: 2, Keys: KeySpec{First: 1, Last: 1, Step: 1}, Handler: stubHandler})

	spec, ok := r.Lookup("GET")
	require.True(t, ok)
	assert.Equal(t, "GET", spec.Name)

	spec, ok = r.Lookup("get")
	require.True(t, ok)
	assert.NotNil(t, spec)
}

func TestTransactionalRequiresKeyPositionOrGlobal(t *testing.T) {
	get := &CommandSpec{Name: "GET", Keys: KeySpec{First: 1, Last: 1, Step: 1}}
	assert.True(t, get.Transactional())

	ping := &CommandSpec{Name: "PING"}
	assert.False(t, ping.Transactional())

	flushall := &CommandSpec{Name: "FLUSHALL", Opts: OptGlobalTrans | OptWrite}
	assert.True(t, flushall.Transactional())
}

func TestExtractKeysHandlesSingleAndVariadic(t *testing.T) {
	get := &CommandSpec{Keys: KeySpec{First: 1, Last: 1, Step: 1}}
	assert.Equal(t, []string{"foo"}, get.ExtractKeys([][]byte{[]byte("GET"), []byte("foo")}))

	mset := &CommandSpec{Keys: KeySpec{First: 1, Last: -1, Step: 2}}
	argv := [][]byte{[]byte("MSET"), []byte("a"), []byte("1"), []byte("b"), []byte("2")}
	assert.Equal(t, []string{"a", "b"}, mset.ExtractKeys(argv))

	ping := &CommandSpec{}
	assert.Nil(t, ping.ExtractKeys([][]byte{[]byte("PING")}))
}

func TestCheckArityExactAndMinimum(t *testing.T) {
	get := &CommandSpec{Arity: 2}
	assert.True(t, get.CheckArity(2))
	assert.False(t, get.CheckArity(3))

	mset := &CommandSpec{Arity: -3}
	assert.True(t, mset.CheckArity(3))
	assert.True(t, mset.CheckArity(5))
	assert.False(t, mset.CheckArity(2))
}

func TestNamesExcludesHiddenCommands(t *testing.T) {
	r := NewRegistry()
	r.Register(&CommandSpec{Name: "GET", Handler: stubHandler})
	r.Register(&CommandSpec{Name: "DEBUG", Opts: OptHidden, Handler: stubHandler})

	names := r.Names()
	assert.Contains(t, names, "GET")
	assert.NotContains(t, names, "DEBUG")
	assert.Equal(t, 1, r.Count())
}
