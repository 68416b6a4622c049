package memcache

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/types"
)

func TestReadSetCommand(t *testing.T) {
	r := NewReader(bytes.NewBufferString("set foo 0 0 3\r\nbar\r\n"))
	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, CmdSet, cmd.Name)
	assert.Equal(t, "foo", cmd.Key)
	assert.Equal(t, 3, cmd.Bytes)
	assert.Equal(t, "bar", string(cmd.Payload))
	assert.False(t, cmd.NoReply)
}

func TestReadSetNoReply(t *testing.T) {
	r := NewReader(bytes.NewBufferString("set foo 0 0 3 noreply\r\nbar\r\n"))
	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	assert.True(t, cmd.NoReply)
}

func TestReadGetMultipleKeys(t *testing.T) {
	r := NewReader(bytes.NewBufferString("get a b c\r\n"))
	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, CmdGet, cmd.Name)
	assert.Equal(t, []string{"a", "b", "c"}, cmd.Keys)
}

func TestReadIncr(t *testing.T) {
	r := NewReader(bytes.NewBufferString("incr counter 5\r\n"))
	cmd, err := r.ReadCommand()
	require.NoError(t, err)
	assert.Equal(t, CmdIncr, cmd.Name)
	assert.EqualValues(t, 5, cmd.Delta)
}

func TestReadCommandEOF(t *testing.T) {
	r := NewReader(bytes.NewBufferString(""))
	_, err := r.ReadCommand()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReadUnknownCommand(t *testing.T) {
	r := NewReader(bytes.NewBufferString("frobnicate foo\r\n"))
	_, err := r.ReadCommand()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProtocol))
}

func TestReadSetRejectsTruncatedPayload(t *testing.T) {
	r := NewReader(bytes.NewBufferString("set foo 0 0 10\r\nshort\r\n"))
	_, err := r.ReadCommand()
	require.Error(t, err)
}

func TestWriterValueAndEnd(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteValue("foo", 0, []byte("bar")))
	require.NoError(t, w.WriteEnd())
	require.NoError(t, w.Flush())
	assert.Equal(t, "VALUE foo 0 3\r\nbar\r\nEND\r\n", buf.String())
}

func TestWriterStoredAndErrors(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteStored())
	require.NoError(t, w.WriteClientError("bad command line format"))
	require.NoError(t, w.Flush())
	assert.Equal(t, "STORED\r\nCLIENT_ERROR bad command line format\r\n", buf.String())
}
