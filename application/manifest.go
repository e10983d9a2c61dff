package application

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"image-vector-index/domain"
)

// imageExtensions are the files picked up when the manifest is a directory.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".tif": true, ".tiff": true, ".ico": true,
}

// manifestEntry is one element of a JSON manifest. "image_path" is the
// canonical key; "path" and "url" are accepted as aliases.
type manifestEntry struct {
	ImagePath string `json:"image_path"`
	Path      string `json:"path"`
	URL       string `json:"url"`
}

func (e manifestEntry) locator() string {
	switch {
	case e.ImagePath != "":
		return e.ImagePath
	case e.Path != "":
		return e.Path
	default:
		return e.URL
	}
}

// LoadManifest reads the items to process. path may be a JSON array, a JSON
// Lines file, or a directory walked recursively for image files (sorted by path).
// Relative locators in a manifest file resolve against the file's directory.
func LoadManifest(path string) ([]domain.InputItem, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", path, err)
	}
	var locators []string
	if st.IsDir() {
		locators, err = walkImages(path)
	} else {
		locators, err = readManifestFile(path)
	}
	if err != nil {
		return nil, err
	}
	if len(locators) == 0 {
		return nil, fmt.Errorf("manifest %s lists no images", path)
	}

	items := make([]domain.InputItem, len(locators))
	for i, loc := range locators {
		items[i] = domain.InputItem{Index: i, Locator: loc, Label: domain.DescribeLocator(loc)}
	}
	return items, nil
}

func readManifestFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", path, err)
	}
	data = bytes.TrimSpace(data)

	var entries []manifestEntry
	if bytes.HasPrefix(data, []byte("[")) {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("invalid manifest JSON %s: %w", path, err)
		}
	} else {
		for n, line := range bytes.Split(data, []byte("\n")) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var e manifestEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return nil, fmt.Errorf("invalid manifest JSONL %s:%d: %w", path, n+1, err)
			}
			entries = append(entries, e)
		}
	}

	base := filepath.Dir(path)
	locators := make([]string, 0, len(entries))
	for i, e := range entries {
		loc := e.locator()
		if loc == "" {
			return nil, fmt.Errorf("manifest %s: entry %d has no image_path", path, i)
		}
		if !strings.Contains(loc, "://") && !filepath.IsAbs(loc) {
			loc = filepath.Join(base, loc)
		}
		locators = append(locators, loc)
	}
	return locators, nil
}

func walkImages(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			out = append(out, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return nil, fmt.Errorf("error walking directory %s: %w", root, err)
	}
	sort.Strings(out)
	return out, nil
}
