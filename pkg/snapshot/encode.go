package snapshot

import (
	"encoding/json"
	"io"

	"github.com/klauspost/compress/zstd"
)

// defaultChunkBytes is the uncompressed-bytes-written threshold past which
// Encoder flushes a zstd frame, mirroring
// --serialization_max_chunk_size: a full snapshot streams to a replica
// socket in bounded chunks instead of buffering the whole dump in memory.
const defaultChunkBytes = 1 << 20

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Encoder serializes Records as newline-delimited JSON over a zstd
// stream, flushing a compressed block every time roughly chunkBytes of
// uncompressed data has been written.
type Encoder struct {
	cw         *countingWriter
	zw         *zstd.Encoder
	enc        *json.Encoder
	chunkBytes int64
}

// NewEncoder wraps w. chunkBytes <= 0 uses defaultChunkBytes.
func NewEncoder(w io.Writer, chunkBytes int64) (*Encoder, error) {
	if chunkBytes <= 0 {
		chunkBytes = defaultChunkBytes
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, err
	}
	cw := &countingWriter{w: zw}
	return &Encoder{cw: cw, zw: zw, enc: json.NewEncoder(cw), chunkBytes: chunkBytes}, nil
}

// Encode writes one record, flushing the underlying zstd frame once the
// chunk threshold is crossed.
func (e *Encoder) Encode(r Record) error {
	if err := e.enc.Encode(&r); err != nil {
		return err
	}
	if e.cw.n >= e.chunkBytes {
		if err := e.zw.Flush(); err != nil {
			return err
		}
		e.cw.n = 0
	}
	return nil
}

// Close flushes and closes the zstd stream.
func (e *Encoder) Close() error { return e.zw.Close() }

// Decoder reads Records back from a stream an Encoder produced.
type Decoder struct {
	zr  *zstd.Decoder
	dec *json.Decoder
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) (*Decoder, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Decoder{zr: zr, dec: json.NewDecoder(zr)}, nil
}

// Decode reads the next record. It returns io.EOF once the stream is
// exhausted.
func (d *Decoder) Decode() (Record, error) {
	var r Record
	err := d.dec.Decode(&r)
	return r, err
}

// Close releases the zstd decoder's resources.
func (d *Decoder) Close() { d.zr.Close() }
