package memcache

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cuemby/shardkv/pkg/types"
)

// CommandName enumerates the subset of the memcache text protocol this
// server recognizes.
type CommandName string

const (
	CmdSet    CommandName = "set"
	CmdGet    CommandName = "get"
	CmdGets   CommandName = "gets"
	CmdDelete CommandName = "delete"
	CmdAdd    CommandName = "add"
	CmdReplace CommandName = "replace"
	CmdIncr   CommandName = "incr"
	CmdDecr   CommandName = "decr"
	CmdQuit   CommandName = "quit"
)

// Command is one parsed request line (plus payload, for storage
// commands).
type Command struct {
	Name    CommandName
	Key     string
	Keys    []string // get/gets with multiple keys
	Flags   uint32
	ExpTime int64
	Bytes   int
	NoReply bool
	Payload []byte
	Delta   uint64 // incr/decr
}

const maxPayloadLen = 512 * 1024 * 1024

// Reader parses memcache text-protocol requests.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r with the memcache parser.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadCommand reads one command line, and its payload for storage
// commands. io.EOF is returned verbatim when the connection closes
// cleanly between commands.
func (r *Reader) ReadCommand() (*Command, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty command line", types.ErrProtocol)
	}

	cmd := &Command{Name: CommandName(strings.ToLower(fields[0]))}

	switch cmd.Name {
	case CmdSet, CmdAdd, CmdReplace:
		if len(fields) < 5 {
			return nil, fmt.Errorf("%w: malformed storage command", types.ErrProtocol)
		}
		cmd.Key = fields[1]
		flags, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad flags: %v", types.ErrProtocol, err)
		}
		cmd.Flags = uint32(flags)
		exp, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad exptime: %v", types.ErrProtocol, err)
		}
		cmd.ExpTime = exp
		n, err := strconv.Atoi(fields[4])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad byte count", types.ErrProtocol)
		}
		if n > maxPayloadLen {
			return nil, fmt.Errorf("%w: payload length %d exceeds limit", types.ErrProtocol, n)
		}
		cmd.Bytes = n
		if len(fields) >= 6 {
			cmd.NoReply = fields[5] == "noreply"
		}
		payload := make([]byte, n+2)
		if _, err := io.ReadFull(r.r, payload); err != nil {
			return nil, err
		}
		if payload[n] != '\r' || payload[n+1] != '\n' {
			return nil, fmt.Errorf("%w: payload not terminated by CRLF", types.ErrProtocol)
		}
		cmd.Payload = payload[:n]

	case CmdGet, CmdGets:
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: get requires at least one key", types.ErrProtocol)
		}
		cmd.Keys = fields[1:]
		cmd.Key = fields[1]

	case CmdDelete:
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: delete requires a key", types.ErrProtocol)
		}
		cmd.Key = fields[1]
		cmd.NoReply = len(fields) >= 3 && fields[2] == "noreply"

	case CmdIncr, CmdDecr:
		if len(fields) < 3 {
			return nil, fmt.Errorf("%w: incr/decr requires key and delta", types.ErrProtocol)
		}
		cmd.Key = fields[1]
		d, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad delta: %v", types.ErrProtocol, err)
		}
		cmd.Delta = d
		cmd.NoReply = len(fields) >= 4 && fields[3] == "noreply"

	case CmdQuit:
		// no further fields

	default:
		return nil, fmt.Errorf("%w: unknown command %q", types.ErrProtocol, fields[0])
	}

	return cmd, nil
}

// Writer encodes memcache text-protocol replies.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w with the memcache encoder.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Flush() error { return w.w.Flush() }

func (w *Writer) WriteStored() error    { return w.writeLine("STORED") }
func (w *Writer) WriteNotStored() error { return w.writeLine("NOT_STORED") }
func (w *Writer) WriteDeleted() error   { return w.writeLine("DELETED") }
func (w *Writer) WriteNotFound() error  { return w.writeLine("NOT_FOUND") }
func (w *Writer) WriteExists() error    { return w.writeLine("EXISTS") }
func (w *Writer) WriteEnd() error       { return w.writeLine("END") }
func (w *Writer) WriteError() error     { return w.writeLine("ERROR") }

func (w *Writer) WriteClientError(msg string) error {
	_, err := fmt.Fprintf(w.w, "CLIENT_ERROR %s\r\n", msg)
	return err
}

func (w *Writer) WriteServerError(msg string) error {
	_, err := fmt.Fprintf(w.w, "SERVER_ERROR %s\r\n", msg)
	return err
}

func (w *Writer) WriteValue(key string, flags uint32, payload []byte) error {
	if _, err := fmt.Fprintf(w.w, "VALUE %s %d %d\r\n", key, flags, len(payload)); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	_, err := w.w.WriteString("\r\n")
	return err
}

func (w *Writer) WriteInteger(n uint64) error { return w.writeLine(strconv.FormatUint(n, 10)) }

func (w *Writer) writeLine(s string) error {
	_, err := fmt.Fprintf(w.w, "%s\r\n", s)
	return err
}
