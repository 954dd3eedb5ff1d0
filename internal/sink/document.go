// Package sink persists finished runs: a JSON document on disk and, when
// enabled, per-product submissions to the product-card intake API.
package sink

import (
	"encoding/json"
	"fmt"

	"github.com/okharin/mv-parser/internal/scrape"
)

type successEntry struct {
	URL        string            `json:"url"`
	Name       string            `json:"name"`
	Code       string            `json:"code,omitempty"`
	Attributes scrape.Attributes `json:"attributes"`
	Images     []string          `json:"images"`
}

type failureEntry struct {
	URL     string `json:"url"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Document renders a finished run as the output JSON array. Outcomes keep
// their task order; failed tasks appear as error entries in place of a
// product.
func Document(result scrape.RunResult) ([]byte, error) {
	entries := make([]any, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		if outcome.Success() {
			record := outcome.Record
			images := record.Images
			if images == nil {
				images = []string{}
			}
			entries = append(entries, successEntry{
				URL:        record.URL,
				Name:       record.Name,
				Code:       record.Code,
				Attributes: record.Attributes,
				Images:     images,
			})
			continue
		}
		entries = append(entries, failureEntry{
			URL:     outcome.Task.URL,
			Error:   string(outcome.Kind),
			Message: outcome.Message,
		})
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal run document: %w", err)
	}
	return payload, nil
}

// DecodedEntry is the parsed form of one document element.
type DecodedEntry struct {
	URL        string            `json:"url"`
	Name       string            `json:"name"`
	Code       string            `json:"code"`
	Attributes scrape.Attributes `json:"attributes"`
	Images     []string          `json:"images"`
	Error      string            `json:"error"`
	Message    string            `json:"message"`
}

// Failed reports whether the entry records a task failure.
func (e DecodedEntry) Failed() bool {
	return e.Error != ""
}

// DecodeDocument parses a previously written run document.
func DecodeDocument(data []byte) ([]DecodedEntry, error) {
	var entries []DecodedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode run document: %w", err)
	}
	return entries, nil
}
