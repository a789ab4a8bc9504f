package indexer

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
	"github.com/vsc-eco/vsc-farm/services/ledger"
)

func TestService_IndexesLedgerFeed(t *testing.T) {
	hub := ledger.NewHub()
	feed := httptest.NewServer(hub)
	defer feed.Close()
	defer hub.Close()

	svc := NewService("ws"+strings.TrimPrefix(feed.URL, "http"), "0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.startIndexing(ctx) }()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Broadcast(farmEvents())

	require.Eventually(t, func() bool {
		farms, _ := svc.QueryFarms()
		return len(farms) == 1 && farms[0].TotalStaked.String() == "175"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("indexing did not stop after cancel")
	}
}

func TestService_FeedClosedByLedger(t *testing.T) {
	hub := ledger.NewHub()
	feed := httptest.NewServer(hub)
	defer feed.Close()

	svc := NewService("ws"+strings.TrimPrefix(feed.URL, "http"), "0")

	done := make(chan error, 1)
	go func() { done <- svc.startIndexing(context.Background()) }()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Broadcast([]farm.Event{{Method: farm.EventFarmCreated, FarmID: 1, Account: "creator", Token: "LP"}})
	hub.Close()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("indexing did not return after the feed closed")
	}

	_, ok := svc.readers[0].(*FarmReadModel).GetFarm(1)
	assert.True(t, ok)
}
