package domain

import (
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// InputItem is one entry of a batch manifest.
type InputItem struct {
	Index   int    `json:"index"`   // Position in the manifest (0-based)
	Locator string `json:"locator"` // Local path, http(s) URL or s3://bucket/key
	Label   string `json:"label"`   // Base filename without extension
}

// RecordID returns the store identity derived from the item index.
func (i InputItem) RecordID() string {
	return strconv.Itoa(i.Index)
}

// OutputRecord is one line of the durable record store.
type OutputRecord struct {
	ID          string    `json:"id" jsonschema:"required,description=Identity derived from the manifest index"`
	Vector      Embedding `json:"image_vector" jsonschema:"required,description=Image embedding or null when embedding failed"`
	Description string    `json:"description" jsonschema:"required,description=Base filename of the image without extension"`
}

// HasVector reports whether the record carries an embedding.
func (r OutputRecord) HasVector() bool {
	return len(r.Vector) > 0
}

// DescribeLocator derives a label from the base filename of a locator, with the
// extension stripped. URL query strings and fragments are ignored.
func DescribeLocator(locator string) string {
	name := locator
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		name = path.Base(u.Path)
	} else {
		name = filepath.Base(locator)
	}
	if name == "." || name == "/" {
		return ""
	}
	return strings.TrimSuffix(name, path.Ext(name))
}
