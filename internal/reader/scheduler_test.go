package reader_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcf-tools/org-mgmt-server/internal/reader"
)

func waitForListings(t *testing.T, fake *fakeBitbucket, want int64) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for fake.listings.Load() < want {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d listings, saw %d", want, fake.listings.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRefresher_SingleShotWhenPeriodDisabled(t *testing.T) {
	t.Parallel()

	fake := &fakeBitbucket{
		repos: map[string][]map[string]string{"PCF_NPE": nil},
	}
	rdr, store := newTestReader(t, fake, "PCF_NPE")

	refresher := reader.NewRefresher(rdr, 0)
	refresher.Start(context.Background())
	defer refresher.Stop()

	waitForListings(t, fake, 1)
	require.NotNil(t, store.Status().CacheTimestamp)

	// No further cycles should follow the initial one.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), fake.listings.Load())
}

func TestRefresher_RunsPeriodically(t *testing.T) {
	t.Parallel()

	fake := &fakeBitbucket{
		repos: map[string][]map[string]string{"PCF_NPE": nil},
	}
	rdr, _ := newTestReader(t, fake, "PCF_NPE")

	refresher := reader.NewRefresher(rdr, 10*time.Millisecond)
	refresher.Start(context.Background())
	defer refresher.Stop()

	waitForListings(t, fake, 3)
}

func TestRefresher_StopHaltsTheLoop(t *testing.T) {
	t.Parallel()

	fake := &fakeBitbucket{
		repos: map[string][]map[string]string{"PCF_NPE": nil},
	}
	rdr, _ := newTestReader(t, fake, "PCF_NPE")

	refresher := reader.NewRefresher(rdr, 10*time.Millisecond)
	refresher.Start(context.Background())

	waitForListings(t, fake, 1)
	refresher.Stop()

	settled := fake.listings.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, fake.listings.Load(), "no refreshes after Stop")
}
