package mcpserver

import (
	"encoding/json"
	"fmt"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/schema"
)

// parseEntry validates and parses an editor entry passed as a JSON string.
func parseEntry(data string) (domain.Entry, error) {
	if data == "" {
		return domain.Entry{}, fmt.Errorf("entry is required")
	}
	if err := schema.ValidateEntry([]byte(data)); err != nil {
		return domain.Entry{}, fmt.Errorf("invalid entry: %w", err)
	}
	var entry domain.Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return domain.Entry{}, fmt.Errorf("invalid entry: %w", err)
	}
	return entry, nil
}

// pageSummary is the short form of a page used in listings.
type pageSummary struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Route  string `json:"route"`
	Order  int    `json:"order"`
	Nodes  int    `json:"nodes"`
	Cached bool   `json:"cached"`
	Native bool   `json:"native"`
}
