package download_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/go-tts-registry/internal/download"
	"github.com/example/go-tts-registry/internal/registry"
)

func newTestTracker(t *testing.T) (*download.Tracker, *registry.Store) {
	t.Helper()
	store := registry.NewStore(filepath.Join(t.TempDir(), "registry.json"), nil)
	return download.NewTracker(store, nil), store
}

func i64(v int64) *int64     { return &v }
func f64(v float64) *float64 { return &v }

func TestSetDerivesProgressFromSizes(t *testing.T) {
	tracker, _ := newTestTracker(t)

	require.NoError(t, tracker.Set("voice-x", download.Update{
		State:          registry.StateDownloading,
		DownloadedSize: i64(500),
		TotalSize:      i64(2000),
	}))

	status, ok := tracker.Get("voice-x")
	require.True(t, ok)
	require.Equal(t, registry.StateDownloading, status.Status)
	require.Equal(t, int64(500), *status.DownloadedSize)
	require.Equal(t, int64(2000), *status.TotalSize)
	require.Equal(t, 25.0, *status.Progress)
	require.NotZero(t, status.Timestamp)
}

func TestSetTruncatesInsteadOfRounding(t *testing.T) {
	tracker, _ := newTestTracker(t)

	// 999/1000 is 99.9%; 9999/10000 is 99.99% and must still show as 99.9,
	// never 100.0, while bytes are outstanding.
	cases := []struct {
		downloaded, total int64
		want              float64
	}{
		{999, 1000, 99.9},
		{9999, 10000, 99.9},
		{1, 3, 33.3},
		{2, 3, 66.6},
		{1000, 1000, 100.0},
	}
	for _, tc := range cases {
		require.NoError(t, tracker.Set("voice-x", download.Update{
			State:          registry.StateDownloading,
			DownloadedSize: i64(tc.downloaded),
			TotalSize:      i64(tc.total),
		}))
		status, ok := tracker.Get("voice-x")
		require.True(t, ok)
		require.Equal(t, tc.want, *status.Progress, "%d/%d", tc.downloaded, tc.total)
	}
}

func TestSetProgressNeverDecreasesAcrossReports(t *testing.T) {
	tracker, _ := newTestTracker(t)

	last := -1.0
	for _, downloaded := range []int64{0, 128, 999, 4096, 9999, 10000} {
		require.NoError(t, tracker.Set("voice-x", download.Update{
			State:          registry.StateDownloading,
			DownloadedSize: i64(downloaded),
			TotalSize:      i64(10000),
		}))
		status, ok := tracker.Get("voice-x")
		require.True(t, ok)
		require.GreaterOrEqual(t, *status.Progress, last)
		last = *status.Progress
	}
	require.Equal(t, 100.0, last)
}

func TestSetWithUnknownTotalPersistsNoProgress(t *testing.T) {
	tracker, _ := newTestTracker(t)

	require.NoError(t, tracker.Set("voice-x", download.Update{
		State:          registry.StateDownloading,
		DownloadedSize: i64(4096),
	}))

	status, ok := tracker.Get("voice-x")
	require.True(t, ok)
	require.Equal(t, int64(4096), *status.DownloadedSize)
	require.Nil(t, status.TotalSize)
	require.Nil(t, status.Progress, "percentage is undefined without a total")
}

func TestSetExplicitProgressIsTruncatedAndClamped(t *testing.T) {
	tracker, _ := newTestTracker(t)

	require.NoError(t, tracker.Set("voice-x", download.Update{
		State:    registry.StateDownloading,
		Progress: f64(45.67),
	}))
	status, _ := tracker.Get("voice-x")
	require.Equal(t, 45.6, *status.Progress)

	require.NoError(t, tracker.Set("voice-x", download.Update{
		State:    registry.StateDownloading,
		Progress: f64(123.4),
	}))
	status, _ = tracker.Get("voice-x")
	require.Equal(t, 100.0, *status.Progress)

	require.NoError(t, tracker.Set("voice-x", download.Update{
		State:    registry.StateDownloading,
		Progress: f64(-5),
	}))
	status, _ = tracker.Get("voice-x")
	require.Equal(t, 0.0, *status.Progress)
}

func TestSetFailedStoresErrorMessage(t *testing.T) {
	tracker, _ := newTestTracker(t)

	require.NoError(t, tracker.Set("voice-x", download.Update{
		State: registry.StateFailed,
		Error: "HTTP 404",
	}))

	status, ok := tracker.Get("voice-x")
	require.True(t, ok)
	require.Equal(t, registry.StateFailed, status.Status)
	require.NotNil(t, status.Error)
	require.Equal(t, "HTTP 404", *status.Error)
	require.Nil(t, status.Progress)
}

func TestCompleteRemovesEntry(t *testing.T) {
	tracker, store := newTestTracker(t)

	require.NoError(t, tracker.Set("voice-x", download.Update{
		State:          registry.StateDownloading,
		DownloadedSize: i64(2000),
		TotalSize:      i64(2000),
	}))
	require.NoError(t, tracker.Complete("voice-x"))

	_, ok := tracker.Get("voice-x")
	require.False(t, ok, "a completed status is never persisted")

	_, ok = store.Read().Downloads["voice-x"]
	require.False(t, ok)
}

func TestRemoveAbsentEntryIsNoop(t *testing.T) {
	tracker, _ := newTestTracker(t)
	require.NoError(t, tracker.Remove("never-seen"))
}
