package recordstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"

	"image-vector-index/domain"
)

// ErrLocked is returned when another writer holds the store.
var ErrLocked = errors.New("record store is locked by another run")

// Writer appends records to a store file.
type Writer struct {
	path    string
	f       *os.File
	bw      *bufio.Writer
	lock    *flock.Flock
	written map[string]struct{}
	// Repaired is the number of bytes of a torn trailing line dropped on open.
	Repaired int64
}

// Create starts a new, empty store at path, replacing any previous content.
func Create(path string) (*Writer, error) {
	return open(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
}

// OpenAppend opens an existing store (or creates one) for appending. A torn
// trailing line left by a crashed run is truncated first.
func OpenAppend(path string) (*Writer, error) {
	w, err := open(path, os.O_CREATE|os.O_RDWR)
	if err != nil {
		return nil, err
	}
	n, err := repairTail(w.f)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("cannot repair store %s: %w", path, err)
	}
	w.Repaired = n
	if _, err := w.f.Seek(0, io.SeekEnd); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func open(path string, flag int) (*Writer, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot lock store %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("cannot open store %s: %w", path, err)
	}
	return &Writer{
		path:    path,
		f:       f,
		bw:      bufio.NewWriter(f),
		lock:    lock,
		written: make(map[string]struct{}),
	}, nil
}

// Path returns the store file path.
func (w *Writer) Path() string {
	return w.path
}

// Append writes rec as one line and makes it durable before returning.
func (w *Writer) Append(rec domain.OutputRecord) error {
	if rec.ID == "" {
		return errors.New("record id is empty")
	}
	if _, dup := w.written[rec.ID]; dup {
		return fmt.Errorf("record %s already written", rec.ID)
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot encode record %s: %w", rec.ID, err)
	}
	if _, err := w.bw.Write(line); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("cannot sync store %s: %w", w.path, err)
	}
	w.written[rec.ID] = struct{}{}
	return nil
}

// Close flushes, closes the file and releases the lock.
func (w *Writer) Close() error {
	var errs []error
	if w.f != nil {
		if err := w.bw.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := w.f.Close(); err != nil {
			errs = append(errs, err)
		}
		w.f = nil
	}
	if w.lock != nil {
		if err := w.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
		w.lock = nil
	}
	return errors.Join(errs...)
}

// repairTail truncates f after its last newline and returns the bytes dropped.
func repairTail(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := st.Size()
	if size == 0 {
		return 0, nil
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	end := size
	for end > 0 {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			keep := start + int64(i) + 1
			if keep == size {
				return 0, nil
			}
			return size - keep, f.Truncate(keep)
		}
		end = start
	}
	return size, f.Truncate(0)
}
