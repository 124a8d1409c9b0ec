package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/iksnae/chatsync/internal"
)

// KeyMigratedSessions holds the migration ledger: per local session id, the
// remote record it was uploaded to and how far.
const KeyMigratedSessions = "migrated_sessions"

// MigrateResult summarizes one migration run
type MigrateResult struct {
	Uploaded map[string]string // local id -> remote id
	Skipped  []string          // finished by an earlier run, or duplicate content
	Failed   map[string]error
}

// ledgerEntry records the remote record a guest session went to. Prefix is
// the fingerprint of the first Synced messages, so an entry only applies
// while the local transcript still starts with what was uploaded.
type ledgerEntry struct {
	RemoteID string `json:"remote_id"`
	Synced   int    `json:"synced"`
	Prefix   string `json:"prefix"`
}

type ledger map[string]ledgerEntry

// request returns the save that continues s where an earlier run stopped,
// and whether nothing is left to upload.
func (l ledger) request(s internal.Session) (SaveRequest, bool) {
	req := SaveRequest{Title: s.Title, Messages: s.Messages}
	e, ok := l[s.ID]
	if !ok || e.RemoteID == "" || e.Synced > len(s.Messages) || internal.Fingerprint(s.Messages[:e.Synced]) != e.Prefix {
		return req, false
	}
	req.ID, req.Synced = e.RemoteID, e.Synced
	return req, e.Synced == len(s.Messages)
}

func (l ledger) record(localID string, messages []internal.Message, res SaveResult) bool {
	if res.ID == "" {
		return false
	}
	l[localID] = ledgerEntry{RemoteID: res.ID, Synced: res.Synced, Prefix: internal.Fingerprint(messages[:res.Synced])}
	return true
}

// Migrate uploads every guest session to remote, at most concurrency at a
// time, each as an in-order backfill. Identical transcripts are uploaded
// once. A session leaves the local store only when its content is fully on
// the remote side; partial uploads are resumed by the next run instead of
// being created again.
func Migrate(ctx context.Context, local *LocalStore, remote SessionStore, kv internal.KV, concurrency int) (*MigrateResult, error) {
	if remote.Mode() != internal.ModeAuthenticated {
		return nil, fmt.Errorf("migration target must be the remote store: %w", internal.ErrAuthRequired)
	}
	if concurrency < 1 {
		concurrency = 1
	}

	sessions, err := local.List(ctx)
	if err != nil {
		return nil, err
	}
	led, err := loadLedger(ctx, kv)
	if err != nil {
		return nil, err
	}

	result := &MigrateResult{Uploaded: map[string]string{}, Failed: map[string]error{}}
	if len(sessions) == 0 {
		return result, nil
	}

	remove := map[string]bool{}
	requests := map[string]SaveRequest{}
	var resumed, fresh []internal.Session
	for _, s := range sessions {
		req, done := led.request(s)
		switch {
		case done:
			result.Skipped = append(result.Skipped, s.ID)
			remove[s.ID] = true
			continue
		case req.ID != "":
			resumed = append(resumed, s)
		default:
			fresh = append(fresh, s)
		}
		requests[s.ID] = req
	}

	// one upload per distinct transcript, preferring one that can resume;
	// the others follow its outcome
	pending := append(resumed, fresh...)
	uploads := internal.NewDeduplicator().Deduplicate(pending)
	first := make(map[string]bool, len(uploads))
	for _, s := range uploads {
		first[s.ID] = true
	}
	groups := map[string][]internal.Session{}
	for _, s := range pending {
		fp := internal.Fingerprint(s.Messages)
		if !first[s.ID] {
			result.Skipped = append(result.Skipped, s.ID)
		}
		groups[fp] = append(groups[fp], s)
	}

	var mu sync.Mutex
	dirty := false
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for _, s := range uploads {
		req := requests[s.ID]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				result.Failed[s.ID] = err
				mu.Unlock()
				return nil
			}
			res, err := remote.Save(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			if led.record(s.ID, s.Messages, res) {
				dirty = true
			}
			if err != nil {
				if res.ID != "" {
					internal.LogWarn("session %s partially uploaded to %s (%d/%d messages)", s.ID, res.ID, res.Synced, len(s.Messages))
				}
				result.Failed[s.ID] = err
				return nil
			}
			internal.LogInfo("migrated session %s to %s", s.ID, res.ID)
			result.Uploaded[s.ID] = res.ID
			for _, twin := range groups[internal.Fingerprint(s.Messages)] {
				led.record(twin.ID, twin.Messages, res)
				remove[twin.ID] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	// ledger first, so a failed rewrite below never causes a second upload
	if dirty {
		if err := saveLedger(ctx, kv, led); err != nil {
			return result, err
		}
	}
	if len(remove) == 0 {
		return result, joinFailures(result)
	}
	kept := make([]internal.Session, 0, len(sessions))
	for _, s := range sessions {
		if !remove[s.ID] {
			kept = append(kept, s)
		}
	}
	if err := local.ReplaceAll(ctx, kept); err != nil {
		return result, fmt.Errorf("failed to remove migrated sessions: %w", err)
	}
	return result, joinFailures(result)
}

func joinFailures(r *MigrateResult) error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for id, err := range r.Failed {
		errs = append(errs, fmt.Errorf("session %s: %w", id, err))
	}
	return errors.Join(errs...)
}

func loadLedger(ctx context.Context, kv internal.KV) (ledger, error) {
	raw, ok, err := kv.Load(ctx, KeyMigratedSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration ledger: %w", err)
	}
	led := ledger{}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &led); err != nil {
			return nil, &internal.ParseError{Source: "local", Key: KeyMigratedSessions, Err: err}
		}
	}
	return led, nil
}

func saveLedger(ctx context.Context, kv internal.KV, led ledger) error {
	data, err := json.Marshal(led)
	if err != nil {
		return fmt.Errorf("failed to marshal migration ledger: %w", err)
	}
	if err := kv.Save(ctx, KeyMigratedSessions, string(data)); err != nil {
		return fmt.Errorf("failed to write migration ledger: %w", err)
	}
	return nil
}
