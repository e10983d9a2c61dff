package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeLocator(t *testing.T) {
	tests := []struct {
		locator string
		want    string
	}{
		{"a.jpg", "a"},
		{"images/cats/tabby.png", "tabby"},
		{"/abs/path/photo.final.jpeg", "photo.final"},
		{"https://example.com/img/dog.jpg?sig=abc#frag", "dog"},
		{"s3://bucket/prefix/bird.webp", "bird"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			assert.Equal(t, tt.want, DescribeLocator(tt.locator))
		})
	}
}

func TestOutputRecordLineFormat(t *testing.T) {
	b, err := json.Marshal(OutputRecord{ID: "0", Vector: Embedding{1, 0}, Description: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"0","image_vector":[1,0],"description":"a"}`, string(b))

	b, err = json.Marshal(OutputRecord{ID: "3", Description: "broken"})
	require.NoError(t, err)
	assert.Equal(t, `{"id":"3","image_vector":null,"description":"broken"}`, string(b))
}

func TestErrorClassification(t *testing.T) {
	cause := errors.New("429 too many requests")
	err := Transient("vectorize image", cause)
	wrapped := errors.Join(errors.New("giving up"), err)

	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	perm := Permanent("vectorize image", errors.New("400 bad image"))
	assert.True(t, IsPermanent(perm))
	assert.False(t, IsTransient(perm))
	assert.Equal(t, "vectorize image: 400 bad image", perm.Error())
}

func TestBatchReportFailedIndices(t *testing.T) {
	r := &BatchReport{
		Total:    5,
		Embedded: 3,
		Failures: []ItemFailure{{Index: 1}, {Index: 4}},
	}
	assert.Equal(t, []int{1, 4}, r.FailedIndices())
	assert.Equal(t, 5, r.Written())
}
