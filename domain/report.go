package domain

// ItemFailure records why one manifest item ended up without a vector.
type ItemFailure struct {
	Index   int    `json:"index"`
	Locator string `json:"locator"`
	Cause   string `json:"cause"`
}

// BatchReport summarizes one materializer run.
type BatchReport struct {
	RunID    string        `json:"run_id"`
	Total    int           `json:"total"`
	Embedded int           `json:"embedded"`
	Skipped  int           `json:"skipped"`
	Failures []ItemFailure `json:"failures"`
}

// Written returns the number of records appended during the run.
func (r *BatchReport) Written() int {
	return r.Embedded + len(r.Failures)
}

// FailedIndices returns the manifest indices that failed, in manifest order.
func (r *BatchReport) FailedIndices() []int {
	out := make([]int, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Index
	}
	return out
}
