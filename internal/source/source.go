package source

import "context"

// Document is a document listed by the external source. The core never
// parses file formats; the text it later fetches is treated as opaque.
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

// DocumentSource is the document-source collaborator: enumerate the
// collection, fetch one document's full text
type DocumentSource interface {
	ListDocuments(ctx context.Context) ([]Document, error)
	DocumentContent(ctx context.Context, id string) (string, error)
}
