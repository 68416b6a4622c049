package resp

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/shardkv/pkg/types"
)

func TestReadCommandParsesArrayOfBulkStrings(t *testing.T) {
	r := NewReader(bytes.NewBufferString("*2\r\n$3\r\nGET\r\n$1\r\na\r\n"))
	argv, err := r.ReadCommand()
	require.NoError(t, err)
	require.Len(t, argv, 2)
	assert.Equal(t, "GET", string(argv[0]))
	assert.Equal(t, "a", string(argv[1]))
}

func TestReadCommandEOFBetweenCommands(t *testing.T) {
	r := NewReader(bytes.NewBufferString(""))
	_, err := r.ReadCommand()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReadCommandRejectsBadHeader(t *testing.T) {
	r := NewReader(bytes.NewBufferString("notresp\r\n"))
	_, err := r.ReadCommand()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProtocol))
}

func TestReadCommandRejectsMissingCRLF(t *testing.T) {
	r := NewReader(bytes.NewBufferString("*1\r\n$3\r\nGETxx"))
	_, err := r.ReadCommand()
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrProtocol))
}

func TestWriterRESP2Flattening(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteValue(Map(MapEntry{Key: Bulk("a"), Value: Integer(1)})))
	require.NoError(t, w.Flush())
	assert.Equal(t, "*2\r\n$1\r\na\r\n:1\r\n", buf.String())

	buf.Reset()
	require.NoError(t, w.WriteValue(NullBulk()))
	require.NoError(t, w.Flush())
	assert.Equal(t, "$-1\r\n", buf.String())
}

func TestWriterRESP3Upgrade(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.SetRESP3(true)

	require.NoError(t, w.WriteValue(Map(MapEntry{Key: Bulk("a"), Value: Integer(1)})))
	require.NoError(t, w.Flush())
	assert.Equal(t, "%1\r\n$1\r\na\r\n:1\r\n", buf.String())

	buf.Reset()
	require.NoError(t, w.WriteValue(NullBulk()))
	require.NoError(t, w.Flush())
	assert.Equal(t, "_\r\n", buf.String())

	buf.Reset()
	require.NoError(t, w.WriteValue(Double(3.5)))
	require.NoError(t, w.Flush())
	assert.Equal(t, ",3.5\r\n", buf.String())
}

func TestWriterErrorFormat(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteError("WRONGTYPE", "Operation against a key holding the wrong kind of value"))
	require.NoError(t, w.Flush())
	assert.Equal(t, "-WRONGTYPE Operation against a key holding the wrong kind of value\r\n", buf.String())
}

func TestWriterArray(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteValue(Array(Bulk("a"), Bulk("b"), NullBulk())))
	require.NoError(t, w.Flush())
	assert.Equal(t, "*3\r\n$1\r\na\r\n$1\r\nb\r\n$-1\r\n", buf.String())
}
