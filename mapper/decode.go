package mapper

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeChunk is the unit in which the fallback reader validates UTF-8.
// Large enough to amortize validation, small enough that switching to the
// latin-1 fallback mid-file never re-reads earlier data.
const decodeChunk = 64 * 1024

// openDecoded opens path for reading as UTF-8 text. A UTF-8 BOM is
// stripped. Hospital files are frequently published in Windows-1252 or
// ISO 8859-1; when a chunk fails UTF-8 validation the reader switches to
// latin-1 decoding for that chunk and everything after it, keeping all
// previously decoded chunks intact.
func openDecoded(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	buf := bufio.NewReaderSize(file, 256*1024)
	bom, err := buf.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		buf.Discard(3)
	}

	return &fallbackReader{src: buf, closer: file}, nil
}

// fallbackReader reads UTF-8 and degrades to latin-1 on the first invalid
// chunk. Multi-byte runes split across chunk boundaries are carried over,
// so a rune straddling two reads is never misdiagnosed as invalid.
type fallbackReader struct {
	src    *bufio.Reader
	closer io.Closer

	latin1 bool
	carry  []byte // incomplete trailing rune from the previous chunk
	out    []byte // decoded bytes not yet handed to the caller
	eof    bool
}

func (r *fallbackReader) Read(p []byte) (int, error) {
	for len(r.out) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.out)
	r.out = r.out[n:]
	return n, nil
}

func (r *fallbackReader) fill() error {
	chunk := make([]byte, decodeChunk)
	n := copy(chunk, r.carry)
	r.carry = nil

	read, err := io.ReadFull(r.src, chunk[n:])
	n += read
	chunk = chunk[:n]
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		r.eof = true
	} else if err != nil {
		return fmt.Errorf("read chunk: %w", err)
	}
	if n == 0 {
		return nil
	}

	if !r.latin1 {
		if !r.eof {
			// Hold back a trailing partial rune for the next chunk.
			if keep := incompleteRuneSuffix(chunk); keep > 0 {
				r.carry = append(r.carry, chunk[n-keep:]...)
				chunk = chunk[:n-keep]
			}
		}
		if utf8.Valid(chunk) {
			r.out = chunk
			return nil
		}
		r.latin1 = true
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(chunk)
	if err != nil {
		return fmt.Errorf("latin-1 decode: %w", err)
	}
	r.out = decoded
	return nil
}

// incompleteRuneSuffix returns the number of trailing bytes of b that form
// the beginning of a multi-byte UTF-8 rune without completing it.
func incompleteRuneSuffix(b []byte) int {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return 0 // ASCII, nothing pending
		}
		if c&0xC0 == 0xC0 { // leading byte of a multi-byte rune
			if r, _ := utf8.DecodeRune(b[len(b)-i:]); r == utf8.RuneError && !utf8.FullRune(b[len(b)-i:]) {
				return i
			}
			return 0
		}
	}
	return 0
}

func (r *fallbackReader) Close() error {
	return r.closer.Close()
}
