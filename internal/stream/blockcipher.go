package stream

import (
	"bytes"
	"crypto/cipher"
	"fmt"
	"io"
)

// BlockCipherReader decrypts a CBC stream and strips PKCS#7 padding from the
// final block. Since padding only applies to the last ciphertext block, the
// reader keeps a one-block lookahead: a block is only emitted once we know
// it isn't the last (because we've successfully read the block after it).
//
// Grounded on original_source/src/stream/block_cipher.rs's
// BlockCipherReader.
type BlockCipherReader struct {
	src       io.Reader
	decrypter cipher.BlockMode
	blockSize int
	pending   []byte // decrypted, not-yet-known-final block
	out       bytes.Buffer
	atEOF     bool
}

// NewBlockCipherReader constructs a CBC reader over src using block and iv.
func NewBlockCipherReader(src io.Reader, block cipher.Block, iv []byte) (*BlockCipherReader, error) {
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("stream: invalid IV length %d, want %d", len(iv), block.BlockSize())
	}
	return &BlockCipherReader{
		src:       src,
		decrypter: cipher.NewCBCDecrypter(block, iv),
		blockSize: block.BlockSize(),
	}, nil
}

func (r *BlockCipherReader) Read(p []byte) (int, error) {
	for r.out.Len() == 0 && !r.atEOF {
		if err := r.advance(); err != nil {
			return 0, err
		}
	}
	if r.out.Len() == 0 && r.atEOF {
		return 0, io.EOF
	}
	return r.out.Read(p)
}

func (r *BlockCipherReader) advance() error {
	next := make([]byte, r.blockSize)
	n, err := io.ReadFull(r.src, next)
	switch {
	case err == io.EOF:
		// No more ciphertext at all: emit whatever was pending, unpadded.
		if r.pending != nil {
			unpadded, uerr := pkcs7Unpad(r.pending, r.blockSize)
			if uerr != nil {
				return uerr
			}
			r.out.Write(unpadded)
			r.pending = nil
		}
		r.atEOF = true
		return nil
	case err == io.ErrUnexpectedEOF:
		return fmt.Errorf("stream: ciphertext length not a multiple of block size: %w", io.ErrUnexpectedEOF)
	case err != nil:
		return err
	}
	_ = n
	plain := make([]byte, r.blockSize)
	r.decrypter.CryptBlocks(plain, next)
	if r.pending != nil {
		r.out.Write(r.pending)
	}
	r.pending = plain
	return nil
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("stream: bad padding: invalid length")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("stream: bad padding: invalid pad length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("stream: bad padding: inconsistent pad bytes")
		}
	}
	return data[:len(data)-padLen], nil
}

// BlockCipherWriter buffers one block at a time, encrypting on fill, and
// pads the final (possibly empty) block with PKCS#7 on Finish — always
// emitting a full padding block when the payload is already block-aligned.
type BlockCipherWriter struct {
	dst       io.Writer
	encrypter cipher.BlockMode
	blockSize int
	buf       []byte
	finished  bool
}

// NewBlockCipherWriter constructs a CBC writer over dst using block and iv.
func NewBlockCipherWriter(dst io.Writer, block cipher.Block, iv []byte) (*BlockCipherWriter, error) {
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("stream: invalid IV length %d, want %d", len(iv), block.BlockSize())
	}
	return &BlockCipherWriter{
		dst:       dst,
		encrypter: cipher.NewCBCEncrypter(block, iv),
		blockSize: block.BlockSize(),
	}, nil
}

func (w *BlockCipherWriter) Write(p []byte) (int, error) {
	total := len(p)
	w.buf = append(w.buf, p...)
	for len(w.buf) >= w.blockSize {
		block := w.buf[:w.blockSize]
		cipherBlock := make([]byte, w.blockSize)
		w.encrypter.CryptBlocks(cipherBlock, block)
		if _, err := w.dst.Write(cipherBlock); err != nil {
			return 0, err
		}
		w.buf = w.buf[w.blockSize:]
	}
	return total, nil
}

// Finish pads the trailing partial (or empty) block with PKCS#7 and
// flushes it. Must be called exactly once to produce valid output.
func (w *BlockCipherWriter) Finish() error {
	if w.finished {
		return nil
	}
	w.finished = true
	padLen := w.blockSize - len(w.buf)%w.blockSize
	padded := append(w.buf, bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	cipherBlock := make([]byte, len(padded))
	w.encrypter.CryptBlocks(cipherBlock, padded)
	w.buf = nil
	_, err := w.dst.Write(cipherBlock)
	return err
}
