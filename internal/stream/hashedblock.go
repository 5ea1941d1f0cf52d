package stream

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// HashedBlockReader verifies and strips the v3 hashed-block framing
// described in §4.5: block_id(u32 LE) || sha256(32) || len(u32 LE) ||
// data(len). A len=0 block with an all-zero hash terminates the stream.
//
// Grounded on original_source/src/stream/kdbx3.rs's HashedBlockReader.
type HashedBlockReader struct {
	src  io.Reader
	buf  bytes.Buffer
	done bool
}

// NewHashedBlockReader wraps src.
func NewHashedBlockReader(src io.Reader) *HashedBlockReader {
	return &HashedBlockReader{src: src}
}

func (r *HashedBlockReader) Read(p []byte) (int, error) {
	for r.buf.Len() == 0 && !r.done {
		if err := r.bufferNextBlock(); err != nil {
			return 0, err
		}
	}
	if r.buf.Len() == 0 && r.done {
		return 0, io.EOF
	}
	return r.buf.Read(p)
}

func (r *HashedBlockReader) bufferNextBlock() error {
	var idBuf [4]byte
	if _, err := io.ReadFull(r.src, idBuf[:]); err != nil {
		return fmt.Errorf("stream: truncated hashed block id: %w", err)
	}
	var hash [32]byte
	if _, err := io.ReadFull(r.src, hash[:]); err != nil {
		return fmt.Errorf("stream: truncated hashed block checksum: %w", err)
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r.src, lenBuf[:]); err != nil {
		return fmt.Errorf("stream: truncated hashed block length: %w", err)
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	data := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.src, data); err != nil {
			return fmt.Errorf("stream: truncated hashed block data: %w", err)
		}
	}
	if length == 0 {
		r.done = true
		return nil
	}
	sum := sha256.Sum256(data)
	if sum != hash {
		return fmt.Errorf("stream: hashed block checksum mismatch (wrong password or corrupt database)")
	}
	r.buf.Write(data)
	return nil
}

// HashedBlockWriter composes hashed-block framed records on the write side.
// Nothing in the library calls it: the library only reads v3 archives and
// always writes v4.
type HashedBlockWriter struct {
	dst     io.Writer
	index   uint32
	buf     []byte
	flushed bool
}

// NewHashedBlockWriter wraps dst.
func NewHashedBlockWriter(dst io.Writer) *HashedBlockWriter {
	return &HashedBlockWriter{dst: dst}
}

func (w *HashedBlockWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for len(w.buf) >= HmacBlockSize {
		if err := w.writeBlock(w.buf[:HmacBlockSize]); err != nil {
			return 0, err
		}
		w.buf = w.buf[HmacBlockSize:]
	}
	return len(p), nil
}

func (w *HashedBlockWriter) writeBlock(data []byte) error {
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], w.index)
	if _, err := w.dst.Write(idBuf[:]); err != nil {
		return err
	}
	var hash [32]byte
	if len(data) > 0 {
		hash = sha256.Sum256(data)
	}
	if _, err := w.dst.Write(hash[:]); err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.dst.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(data) > 0 {
		if _, err := w.dst.Write(data); err != nil {
			return err
		}
	}
	w.index++
	return nil
}

// Finish flushes the buffered remainder and the zero-length terminator
// block.
func (w *HashedBlockWriter) Finish() error {
	if w.flushed {
		return nil
	}
	w.flushed = true
	if len(w.buf) > 0 {
		if err := w.writeBlock(w.buf); err != nil {
			return err
		}
		w.buf = nil
	}
	return w.writeBlock(nil)
}
