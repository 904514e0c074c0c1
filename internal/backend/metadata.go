package backend

import (
	"strings"
)

// MetadataKey is the document key holding the ERP's document info.
const MetadataKey = "metadata"

// Version is one entry of a document's change history.
type Version struct {
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	Creation string `json:"creation"`
	Data     string `json:"data"`
}

// Metadata is the document info shown next to a record.
type Metadata struct {
	TotalComments int
	Versions      []Version
	Tags          []string
}

// SplitMetadata separates the metadata from the document fields. The
// returned document is a shallow copy without the metadata key.
func SplitMetadata(doc Document) (Document, Metadata) {
	fields := make(Document, len(doc))
	for k, v := range doc {
		if k != MetadataKey {
			fields[k] = v
		}
	}

	var md Metadata
	info, _ := doc[MetadataKey].(map[string]any)
	if info == nil {
		return fields, md
	}
	switch c := info["comments"].(type) {
	case []any:
		md.TotalComments = len(c)
	case float64:
		md.TotalComments = int(c)
	}
	if n, ok := info["total_comments"].(float64); ok {
		md.TotalComments = int(n)
	}
	if vs, ok := info["versions"].([]any); ok {
		for _, raw := range vs {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			md.Versions = append(md.Versions, Version{
				Name:     str(m["name"]),
				Owner:    str(m["owner"]),
				Creation: str(m["creation"]),
				Data:     str(m["data"]),
			})
		}
	}
	if tags, ok := info["tags"].(string); ok {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				md.Tags = append(md.Tags, t)
			}
		}
	}
	return fields, md
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
