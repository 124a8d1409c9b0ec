package internal

import (
	"crypto/sha256"
	"encoding/hex"
)

// Deduplicator recognizes transcripts it has already seen by content
type Deduplicator struct {
	seen map[string]bool
}

// NewDeduplicator creates an empty Deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]bool)}
}

// Deduplicate drops sessions whose transcript was already seen, keeping the
// first occurrence.
func (d *Deduplicator) Deduplicate(sessions []Session) []Session {
	var unique []Session
	for _, session := range sessions {
		fp := Fingerprint(session.Messages)
		if d.seen[fp] {
			continue
		}
		d.seen[fp] = true
		unique = append(unique, session)
	}
	return unique
}

// Fingerprint hashes sender and text of every message. Message ids are left
// out so a transcript re-created elsewhere hashes the same.
func Fingerprint(messages []Message) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Sender))
		h.Write([]byte{0})
		h.Write([]byte(msg.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
