package index

import "fmt"

// BulkError captures a single per-document failure inside a bulk request.
type BulkError struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// BulkResult is the typed outcome of a bulk index call. Per-document failures
// never abort the batch; they are enumerated here alongside the successes.
type BulkResult struct {
	Succeeded []string    `json:"succeeded"`
	Failed    []BulkError `json:"failed"`
}

// BulkIndex upserts the documents one by one, capturing individual errors.
// Error classification is decoupled from the write loop so callers never have
// to scan raw engine responses.
func (e *Engine) BulkIndex(docs []*Document) (BulkResult, error) {
	if !e.Exists() {
		return BulkResult{}, ErrIndexMissing
	}

	result := BulkResult{}
	for i, doc := range docs {
		if doc == nil {
			result.Failed = append(result.Failed, BulkError{
				ID:     fmt.Sprintf("batch[%d]", i),
				Type:   "validation_error",
				Reason: "document is nil",
			})
			continue
		}
		if doc.ID == "" {
			result.Failed = append(result.Failed, BulkError{
				ID:     fmt.Sprintf("batch[%d]", i),
				Type:   "validation_error",
				Reason: "document missing id",
			})
			continue
		}

		if err := e.IndexDocument(doc); err != nil {
			result.Failed = append(result.Failed, BulkError{
				ID:     doc.ID,
				Type:   "index_error",
				Reason: err.Error(),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, doc.ID)
	}
	return result, nil
}
