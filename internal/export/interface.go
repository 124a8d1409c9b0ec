// Package export writes a conversation in one of several file formats.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/iksnae/chatsync/internal"
)

// Exporter writes one session to w
type Exporter interface {
	Export(session *internal.Session, w io.Writer) error
	Extension() string
}

// Formats lists the accepted format names
var Formats = []string{"md", "json", "jsonl", "yaml"}

// NewExporter returns the exporter for format
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	case "jsonl":
		return &JSONLExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// FileName returns the default output name for session
func FileName(session *internal.Session, e Exporter) string {
	return fmt.Sprintf("chat_%s.%s", session.ID, e.Extension())
}
