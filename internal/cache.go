package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheVersion is bumped when the on-disk layout changes
const CacheVersion = "1.1"

// ErrInvalidSessionID rejects ids that cannot name a cache file
var ErrInvalidSessionID = errors.New("invalid session id")

// CacheManager keeps the last server-side history listing and opened
// transcripts on disk, so list and show keep working while the backend is
// unreachable.
type CacheManager struct {
	cacheDir string
}

// CacheMetadata identifies whose history the cache holds
type CacheMetadata struct {
	APIURL       string    `yaml:"api_url"`
	UserID       string    `yaml:"user_id"`
	CacheVersion string    `yaml:"cache_version"`
	FetchedAt    time.Time `yaml:"fetched_at"`
}

// SessionIndexEntry is one session of the cached listing
type SessionIndexEntry struct {
	ID           string    `yaml:"id"`
	Title        string    `yaml:"title"`
	CreatedAt    time.Time `yaml:"created_at,omitempty"`
	UpdatedAt    time.Time `yaml:"updated_at,omitempty"`
	MessageCount int       `yaml:"message_count"`
}

// SessionIndex represents the YAML index of all sessions
type SessionIndex struct {
	Sessions []SessionIndexEntry `yaml:"sessions"`
	Metadata CacheMetadata       `yaml:"metadata"`
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string) *CacheManager {
	return &CacheManager{
		cacheDir: cacheDir,
	}
}

// EnsureCacheDir ensures the cache directory exists
func (cm *CacheManager) EnsureCacheDir() error {
	return os.MkdirAll(cm.cacheDir, 0o700)
}

// GetCacheDir returns the cache directory path
func (cm *CacheManager) GetCacheDir() string {
	return cm.cacheDir
}

// GetIndexPath returns the path to the session index YAML file
func (cm *CacheManager) GetIndexPath() string {
	return filepath.Join(cm.cacheDir, "sessions.yaml")
}

// GetSessionPath returns the cache file of one transcript. Transcripts live
// in a directory per backend and user, so one account never reads another's.
func (cm *CacheManager) GetSessionPath(apiURL, userID, sessionID string) (string, error) {
	if !validSessionID(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(cm.scopeDir(apiURL, userID), "session_"+sessionID+".json"), nil
}

func (cm *CacheManager) scopeDir(apiURL, userID string) string {
	sum := sha256.Sum256([]byte(apiURL + "\x00" + userID))
	return filepath.Join(cm.sessionsDir(), hex.EncodeToString(sum[:8]))
}

func (cm *CacheManager) sessionsDir() string {
	return filepath.Join(cm.cacheDir, "sessions")
}

func validSessionID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, "/\\\x00:")
}

// IsCacheValid reports whether the cached index belongs to apiURL and userID
func (cm *CacheManager) IsCacheValid(apiURL, userID string) bool {
	index, err := cm.LoadIndex()
	if err != nil {
		return false
	}
	return index.Metadata.CacheVersion == CacheVersion &&
		index.Metadata.APIURL == apiURL &&
		index.Metadata.UserID == userID
}

// LoadIndex loads the session index
func (cm *CacheManager) LoadIndex() (*SessionIndex, error) {
	data, err := os.ReadFile(cm.GetIndexPath())
	if err != nil {
		return nil, err
	}

	var index SessionIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, &ParseError{Source: "cache", Key: cm.GetIndexPath(), Err: err}
	}
	return &index, nil
}

// SaveIndex writes the index through a temp file so readers never see a
// half-written listing.
func (cm *CacheManager) SaveIndex(index *SessionIndex) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return &StorageError{Path: cm.cacheDir, Op: "save", Err: err}
	}
	data, err := yaml.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	return writeFileAtomic(cm.GetIndexPath(), data)
}

// SaveListing replaces the cached listing for apiURL and userID
func (cm *CacheManager) SaveListing(apiURL, userID string, sessions []Session, now time.Time) error {
	index := SessionIndex{
		Sessions: make([]SessionIndexEntry, 0, len(sessions)),
		Metadata: CacheMetadata{
			APIURL:       apiURL,
			UserID:       userID,
			CacheVersion: CacheVersion,
			FetchedAt:    now,
		},
	}
	for _, s := range sessions {
		index.Sessions = append(index.Sessions, SessionIndexEntry{
			ID:           s.ID,
			Title:        s.Title,
			CreatedAt:    s.CreatedAt,
			UpdatedAt:    s.UpdatedAt,
			MessageCount: s.Count(),
		})
	}
	return cm.SaveIndex(&index)
}

// LoadListing returns the cached listing when it belongs to apiURL and userID
func (cm *CacheManager) LoadListing(apiURL, userID string) ([]Session, time.Time, error) {
	if !cm.IsCacheValid(apiURL, userID) {
		return nil, time.Time{}, ErrNotFound
	}
	index, err := cm.LoadIndex()
	if err != nil {
		return nil, time.Time{}, err
	}
	sessions := make([]Session, 0, len(index.Sessions))
	for _, e := range index.Sessions {
		sessions = append(sessions, Session{
			ID:           e.ID,
			Title:        e.Title,
			CreatedAt:    e.CreatedAt,
			UpdatedAt:    e.UpdatedAt,
			MessageCount: e.MessageCount,
		})
	}
	return sessions, index.Metadata.FetchedAt, nil
}

// SaveSession caches a transcript of userID on apiURL
func (cm *CacheManager) SaveSession(apiURL, userID string, session *Session) error {
	path, err := cm.GetSessionPath(apiURL, userID, session.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return &StorageError{Path: cm.cacheDir, Op: "save", Err: err}
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return writeFileAtomic(path, data)
}

// LoadSession loads a cached transcript of userID on apiURL
func (cm *CacheManager) LoadSession(apiURL, userID, sessionID string) (*Session, error) {
	path, err := cm.GetSessionPath(apiURL, userID, sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Path: path, Op: "load", Err: err}
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, &ParseError{Source: "cache", Key: sessionID, Err: err}
	}
	return &session, nil
}

// DropSession removes one cached transcript and, when the listing belongs
// to the same account, its index entry.
func (cm *CacheManager) DropSession(apiURL, userID, sessionID string) error {
	path, err := cm.GetSessionPath(apiURL, userID, sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if !cm.IsCacheValid(apiURL, userID) {
		return nil
	}
	index, err := cm.LoadIndex()
	if err != nil {
		return nil
	}
	kept := index.Sessions[:0]
	for _, e := range index.Sessions {
		if e.ID != sessionID {
			kept = append(kept, e)
		}
	}
	index.Sessions = kept
	return cm.SaveIndex(index)
}

// ClearCache removes the index and every cached transcript
func (cm *CacheManager) ClearCache() error {
	if err := os.RemoveAll(cm.sessionsDir()); err != nil {
		return err
	}
	if err := os.Remove(cm.GetIndexPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return &StorageError{Path: path, Op: "save", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &StorageError{Path: path, Op: "save", Err: err}
	}
	return nil
}
