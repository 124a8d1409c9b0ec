package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/chatsync/internal"
)

// JSONLExporter writes one message object per line
type JSONLExporter struct{}

type jsonlLine struct {
	Session string          `json:"session"`
	Index   int             `json:"index"`
	ID      string          `json:"id"`
	Sender  internal.Sender `json:"sender"`
	Text    string          `json:"text"`
}

func (e *JSONLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	for i, msg := range session.Messages {
		line := jsonlLine{Session: session.ID, Index: i, ID: msg.ID, Sender: msg.Sender, Text: msg.Text}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode message %d: %w", i, err)
		}
	}
	return nil
}

func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
