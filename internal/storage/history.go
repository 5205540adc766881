package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/replyloop/x-reply-bot/internal/models"
)

const (
	historyBlob = "history/processed_tweets.jsonl"
	stateBlob   = "state.json"
	runPrefix   = "runs/"

	// Entries older than this are dropped on the next append.
	historyRetention = 7 * 24 * time.Hour
)

// HistoryStore keeps the append-only log of processed tweets plus per-run
// result snapshots on top of a blob store. The log is what prevents the bot
// from replying to the same tweet twice across runs.
type HistoryStore struct {
	store StorageInterface
	now   func() time.Time

	mu sync.Mutex
}

// NewHistoryStore wraps a blob store.
func NewHistoryStore(store StorageInterface) *HistoryStore {
	return &HistoryStore{
		store: store,
		now:   time.Now,
	}
}

// AppendProcessed adds processed tweets to the history log. Entries older
// than the retention window are pruned in the same write.
func (h *HistoryStore) AppendProcessed(tweets []models.ProcessedTweet) error {
	if len(tweets) == 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	existing, err := h.readHistory()
	if err != nil {
		return err
	}

	cutoff := h.now().Add(-historyRetention)
	var buf bytes.Buffer
	kept := 0
	for _, entry := range existing {
		if entry.ProcessingTimestamp.Before(cutoff) {
			continue
		}
		if err := writeEntry(&buf, entry); err != nil {
			return err
		}
		kept++
	}
	for _, entry := range tweets {
		if err := writeEntry(&buf, entry); err != nil {
			return err
		}
	}

	if pruned := len(existing) - kept; pruned > 0 {
		logrus.Debugf("Pruned %d history entries older than %s", pruned, historyRetention)
	}

	return h.store.Store(historyBlob, buf.Bytes())
}

// RecentlyProcessedIDs returns the IDs of tweets processed within the given
// window. A missing history file means a fresh deployment, not an error.
func (h *HistoryStore) RecentlyProcessedIDs(window time.Duration) (map[string]bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.readHistory()
	if err != nil {
		return nil, err
	}

	cutoff := h.now().Add(-window)
	ids := make(map[string]bool)
	for _, entry := range entries {
		if entry.ProcessingTimestamp.Before(cutoff) {
			continue
		}
		ids[entry.ID] = true
	}
	return ids, nil
}

// SaveRun stores the full run result under runs/ and updates the state
// snapshot that Status endpoints read.
func (h *HistoryStore) SaveRun(result models.ProcessingResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}

	name := fmt.Sprintf("%s%s_%s.json", runPrefix, result.StartTime.UTC().Format("20060102T150405Z"), result.RunID)
	if err := h.store.Store(name, data); err != nil {
		return fmt.Errorf("failed to store run result: %w", err)
	}

	if err := h.store.Store(stateBlob, data); err != nil {
		return fmt.Errorf("failed to update state snapshot: %w", err)
	}

	return nil
}

// LastRun returns the most recent run result, or nil if no run has
// completed yet.
func (h *HistoryStore) LastRun() (*models.ProcessingResult, error) {
	data, err := h.store.Retrieve(stateBlob)
	if err != nil {
		return nil, nil
	}

	var result models.ProcessingResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse state snapshot: %w", err)
	}
	return &result, nil
}

// ListRuns returns the stored run blob names, oldest first.
func (h *HistoryStore) ListRuns() ([]string, error) {
	return h.store.List(runPrefix)
}

func (h *HistoryStore) readHistory() ([]models.ProcessedTweet, error) {
	data, err := h.store.Retrieve(historyBlob)
	if err != nil {
		// No history yet.
		return nil, nil
	}

	var entries []models.ProcessedTweet
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var entry models.ProcessedTweet
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			logrus.Warnf("Skipping corrupt history entry on line %d: %v", line, err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}

	return entries, nil
}

func writeEntry(buf *bytes.Buffer, entry models.ProcessedTweet) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry %s: %w", entry.ID, err)
	}
	buf.Write(line)
	buf.WriteByte('\n')
	return nil
}
