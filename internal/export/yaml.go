package export

import (
	"io"

	"github.com/iksnae/chatsync/internal"
	"gopkg.in/yaml.v3"
)

// YAMLExporter writes the session as a YAML document
type YAMLExporter struct{}

func (e *YAMLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(session); err != nil {
		return err
	}
	return enc.Close()
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}
