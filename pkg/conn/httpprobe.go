package conn

import (
	"bufio"
	"regexp"
)

// httpGetLine matches the one HTTP request line the admin port recognizes:
// a bare GET, used by load balancers and orchestrators as a liveness
// probe, per spec.md §6.
var httpGetLine = regexp.MustCompile(`^GET [^\r\n]* HTTP/1\.1\r\n$`)

// peekWindow bounds how many bytes ProbeHTTP inspects before giving up and
// assuming the connection speaks the wire protocol instead. It is capped
// at bufio's default buffer size: the caller must construct r with at
// least this much room (bufio.NewReaderSize(netConn, peekWindow)) or Peek
// returns bufio.ErrBufferFull before the window is exhausted.
const peekWindow = 4096

// ProbeHTTP inspects the first line a connection sends, without consuming
// it, and reports whether it looks like an HTTP/1.1 GET request line. The
// caller is expected to gate this on both a config flag and the listening
// port being the admin port — RESP and memcache clients never pay for the
// peek on the data port.
func ProbeHTTP(r *bufio.Reader) (bool, error) {
	for n := 64; n <= peekWindow; n *= 2 {
		buf, err := r.Peek(n)
		if len(buf) > 0 {
			if i := indexCRLF(buf); i >= 0 {
				return httpGetLine.Match(buf[:i+2]), nil
			}
		}
		if err != nil {
			// Not enough bytes buffered yet to find a CRLF, and the
			// peer has nothing more to send: treat whatever arrived
			// as non-HTTP rather than blocking forever.
			return false, nil
		}
	}
	return false, nil
}

func indexCRLF(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}
