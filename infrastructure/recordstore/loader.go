package recordstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"image-vector-index/domain"
)

// CorruptPolicy selects what Load does with a corrupt line.
type CorruptPolicy string

const (
	// PolicyAbort fails the whole load on the first corrupt line.
	PolicyAbort CorruptPolicy = "abort"
	// PolicySkip drops corrupt lines and reports them in LoadResult.Corrupt.
	PolicySkip CorruptPolicy = "skip"
)

// ParsePolicy validates a policy name. The empty string means PolicyAbort.
func ParsePolicy(s string) (CorruptPolicy, error) {
	switch CorruptPolicy(s) {
	case "", PolicyAbort:
		return PolicyAbort, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown corrupt-line policy %q (want %q or %q)", s, PolicyAbort, PolicySkip)
	}
}

// LoadResult is the in-memory content of a store.
type LoadResult struct {
	Records []domain.OutputRecord
	Corrupt []*domain.FormatError
}

// IDs returns the set of record ids that were loaded.
func (r *LoadResult) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(r.Records))
	for _, rec := range r.Records {
		ids[rec.ID] = struct{}{}
	}
	return ids
}

// maxLineSize fits a few thousand float32 values with room to spare.
const maxLineSize = 16 << 20

// Load reads every record of the store at path, in file order.
func Load(path string, policy CorruptPolicy, logger *slog.Logger) (*LoadResult, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open store %s: %w", path, err)
	}
	defer f.Close()

	res := &LoadResult{}
	seen := make(map[string]int)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, err := decodeLine(line)
		if err == nil {
			if prev, dup := seen[rec.ID]; dup {
				err = fmt.Errorf("duplicate id %q (first seen on line %d)", rec.ID, prev)
			}
		}
		if err != nil {
			ferr := &domain.FormatError{Path: path, Line: lineNo, Err: err}
			if policy != PolicySkip {
				return nil, ferr
			}
			logger.Warn("skipping corrupt record", "path", path, "line", lineNo, "error", err)
			res.Corrupt = append(res.Corrupt, ferr)
			continue
		}
		seen[rec.ID] = lineNo
		res.Records = append(res.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read store %s: %w", path, err)
	}
	return res, nil
}

func decodeLine(line []byte) (domain.OutputRecord, error) {
	var raw struct {
		ID          *string          `json:"id"`
		Vector      domain.Embedding `json:"image_vector"`
		Description string           `json:"description"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return domain.OutputRecord{}, err
	}
	if raw.ID == nil || *raw.ID == "" {
		return domain.OutputRecord{}, errors.New("missing id")
	}
	return domain.OutputRecord{ID: *raw.ID, Vector: raw.Vector, Description: raw.Description}, nil
}
