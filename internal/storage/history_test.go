package storage

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replyloop/x-reply-bot/internal/models"
)

// memStorage is an in-memory StorageInterface for tests.
type memStorage struct {
	blobs map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{blobs: make(map[string][]byte)}
}

func (m *memStorage) Store(filename string, data []byte) error {
	m.blobs[filename] = append([]byte(nil), data...)
	return nil
}

func (m *memStorage) Retrieve(filename string) ([]byte, error) {
	data, ok := m.blobs[filename]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", filename)
	}
	return data, nil
}

func (m *memStorage) List(prefix string) ([]string, error) {
	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *memStorage) Delete(filename string) error {
	delete(m.blobs, filename)
	return nil
}

func processedAt(id string, ts time.Time) models.ProcessedTweet {
	return models.ProcessedTweet{
		Tweet:               models.Tweet{ID: id, Text: "some tweet text"},
		SelectionScore:      42,
		ProcessingTimestamp: ts,
	}
}

func TestHistoryStore_AppendAndRecentIDs(t *testing.T) {
	store := newMemStorage()
	history := NewHistoryStore(store)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	history.now = func() time.Time { return now }

	err := history.AppendProcessed([]models.ProcessedTweet{
		processedAt("100", now.Add(-30*time.Minute)),
		processedAt("200", now.Add(-2*time.Hour)),
	})
	require.NoError(t, err)

	ids, err := history.RecentlyProcessedIDs(1 * time.Hour)
	require.NoError(t, err)
	assert.True(t, ids["100"])
	assert.False(t, ids["200"], "entry outside window should not be returned")

	ids, err = history.RecentlyProcessedIDs(24 * time.Hour)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestHistoryStore_EmptyHistory(t *testing.T) {
	history := NewHistoryStore(newMemStorage())

	ids, err := history.RecentlyProcessedIDs(24 * time.Hour)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestHistoryStore_AppendAccumulates(t *testing.T) {
	store := newMemStorage()
	history := NewHistoryStore(store)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	history.now = func() time.Time { return now }

	require.NoError(t, history.AppendProcessed([]models.ProcessedTweet{processedAt("1", now)}))
	require.NoError(t, history.AppendProcessed([]models.ProcessedTweet{processedAt("2", now)}))

	ids, err := history.RecentlyProcessedIDs(time.Hour)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestHistoryStore_PrunesOldEntriesOnAppend(t *testing.T) {
	store := newMemStorage()
	history := NewHistoryStore(store)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	history.now = func() time.Time { return now }

	require.NoError(t, history.AppendProcessed([]models.ProcessedTweet{
		processedAt("old", now.Add(-8*24*time.Hour)),
	}))
	require.NoError(t, history.AppendProcessed([]models.ProcessedTweet{
		processedAt("new", now),
	}))

	ids, err := history.RecentlyProcessedIDs(30 * 24 * time.Hour)
	require.NoError(t, err)
	assert.True(t, ids["new"])
	assert.False(t, ids["old"], "entries past retention should be pruned")
}

func TestHistoryStore_SkipsCorruptLines(t *testing.T) {
	store := newMemStorage()
	history := NewHistoryStore(store)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	history.now = func() time.Time { return now }

	require.NoError(t, history.AppendProcessed([]models.ProcessedTweet{processedAt("1", now)}))
	store.blobs[historyBlob] = append(store.blobs[historyBlob], []byte("{not json}\n")...)
	require.NoError(t, history.AppendProcessed([]models.ProcessedTweet{processedAt("2", now)}))

	ids, err := history.RecentlyProcessedIDs(time.Hour)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestHistoryStore_SaveRunAndLastRun(t *testing.T) {
	store := newMemStorage()
	history := NewHistoryStore(store)

	result := models.ProcessingResult{
		RunID:           "run-abc123",
		StartTime:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		EndTime:         time.Date(2024, 6, 1, 12, 1, 30, 0, time.UTC),
		TweetsFetched:   20,
		TweetsProcessed: 3,
		RepliesPosted:   2,
	}
	require.NoError(t, history.SaveRun(result))

	last, err := history.LastRun()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "run-abc123", last.RunID)
	assert.Equal(t, 2, last.RepliesPosted)

	runs, err := history.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0], "run-abc123")
}

func TestHistoryStore_LastRunNoState(t *testing.T) {
	history := NewHistoryStore(newMemStorage())

	last, err := history.LastRun()
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, local.Store("runs/first.json", []byte(`{"ok":true}`)))
	require.NoError(t, local.Store("state.json", []byte(`{}`)))

	data, err := local.Retrieve("runs/first.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	names, err := local.List("runs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/first.json"}, names)

	require.NoError(t, local.Delete("state.json"))
	_, err = local.Retrieve("state.json")
	assert.Error(t, err)
}
