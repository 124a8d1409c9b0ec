package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/chatsync/internal"
)

// JSONExporter writes the session as indented JSON, in the local store layout
type JSONExporter struct{}

func (e *JSONExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(session)
}

func (e *JSONExporter) Extension() string {
	return "json"
}
