package gamelog

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const (
	// scanBlockSize is the chunk size used when scanning the log backward.
	scanBlockSize = 64 << 10

	// maxPendingLine caps how much of an unterminated line is held between
	// reads. Longer fragments are dropped; they cannot match any pattern.
	maxPendingLine = 1 << 20
)

// ///////////////////////////////////////////////
// Backward Scan
// ///////////////////////////////////////////////

// LastLevelUp scans the log at path from the end toward the start and returns
// the most recent level-up. It reads fixed-size blocks, so the cost depends on
// how far back the last level-up is rather than on the file size.
func LastLevelUp(path string, p *Parser) (LevelUp, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return LevelUp{}, false, fmt.Errorf("opening game log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return LevelUp{}, false, fmt.Errorf("stat game log: %w", err)
	}

	var carry []byte
	pos := info.Size()
	for pos > 0 {
		n := min(int64(scanBlockSize), pos)
		pos -= n

		buf := make([]byte, n, n+int64(len(carry)))
		if _, err := f.ReadAt(buf, pos); err != nil && err != io.EOF {
			return LevelUp{}, false, fmt.Errorf("reading game log at %d: %w", pos, err)
		}
		data := append(buf, carry...)

		// Everything after the last newline is a complete line. The head of
		// the block may be the tail of an earlier line, so it is carried.
		for {
			i := bytes.LastIndexByte(data, '\n')
			if i < 0 {
				break
			}
			if ev, ok := p.ParseLevelUp(string(trimCR(data[i+1:]))); ok {
				return ev, true, nil
			}
			data = data[:i]
		}
		carry = data
	}

	if len(carry) > 0 {
		if ev, ok := p.ParseLevelUp(string(trimCR(carry))); ok {
			return ev, true, nil
		}
	}
	return LevelUp{}, false, nil
}

// ///////////////////////////////////////////////
// Tail
// ///////////////////////////////////////////////

// Tail reads lines appended to a log file since the previous read. It holds
// back an unterminated trailing line until its newline arrives, restarts from
// the beginning when the file shrinks, and reopens the path when the file has
// been replaced.
type Tail struct {
	// path is the log file being tailed.
	path string
	// f is the open handle; it may refer to a replaced file until the next
	// read notices the rotation.
	f *os.File
	// offset is the byte position up to which f has been consumed.
	offset int64
	// pending holds bytes of a line whose newline has not been written yet.
	pending []byte
}

// OpenTail opens path for tailing. The cursor starts at the beginning of the
// file; call [Tail.SeekEnd] to skip existing content.
func OpenTail(path string) (*Tail, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening game log: %w", err)
	}
	return &Tail{path: path, f: f}, nil
}

// SeekEnd moves the cursor to the current end of file and discards any
// pending partial line.
func (t *Tail) SeekEnd() error {
	info, err := t.f.Stat()
	if err != nil {
		return fmt.Errorf("stat game log: %w", err)
	}
	t.offset = info.Size()
	t.pending = nil
	return nil
}

// Offset returns the number of bytes consumed from the current file.
func (t *Tail) Offset() int64 {
	return t.offset
}

// ReadLines returns the complete lines appended since the previous call,
// without line terminators.
func (t *Tail) ReadLines() ([]string, error) {
	if err := t.reopenIfRotated(); err != nil {
		return nil, err
	}

	info, err := t.f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat game log: %w", err)
	}
	size := info.Size()

	if size < t.offset {
		slog.Info("game log truncated, reading from start", "path", t.path, "size", size, "offset", t.offset)
		t.offset = 0
		t.pending = nil
	}
	if size == t.offset {
		return nil, nil
	}

	chunk := make([]byte, size-t.offset)
	n, err := t.f.ReadAt(chunk, t.offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading game log at %d: %w", t.offset, err)
	}
	t.offset += int64(n)

	data := append(t.pending, chunk[:n]...)
	var lines []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(trimCR(data[:i])))
		data = data[i+1:]
	}

	switch {
	case len(data) == 0:
		t.pending = nil
	case len(data) > maxPendingLine:
		slog.Debug("dropping oversized partial line", "bytes", len(data))
		t.pending = nil
	default:
		t.pending = append([]byte(nil), data...)
	}
	return lines, nil
}

// Close releases the file handle.
func (t *Tail) Close() error {
	return t.f.Close()
}

// reopenIfRotated swaps the handle when path now names a different file. A
// missing path keeps the old handle: the game may be mid-rotation.
func (t *Tail) reopenIfRotated() error {
	onDisk, err := os.Stat(t.path)
	if err != nil {
		return nil
	}
	current, err := t.f.Stat()
	if err != nil {
		return fmt.Errorf("stat game log: %w", err)
	}
	if os.SameFile(onDisk, current) {
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("reopening rotated game log: %w", err)
	}
	slog.Info("game log replaced, reopening", "path", t.path)
	t.f.Close()
	t.f = f
	t.offset = 0
	t.pending = nil
	return nil
}

// trimCR strips a trailing carriage return left by CRLF line endings.
func trimCR(b []byte) []byte {
	return bytes.TrimSuffix(b, []byte{'\r'})
}
