package vscfarm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	body   map[string]interface{}
}

func newRecordingServer(t *testing.T, status int, response interface{}) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.body = nil
		if r.ContentLength > 0 {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rec.body))
		}
		if status != http.StatusOK {
			http.Error(w, "farm not found", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{Endpoint: "http://localhost:8082", Username: "alice"})
	assert.NotNil(t, client)
	assert.Equal(t, "alice", client.config.Username)
	assert.NotZero(t, client.httpClient.Timeout)
}

func TestClient_CreateFarm(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, map[string]interface{}{"farm_id": 4})
	client := NewClient(Config{Endpoint: srv.URL, Username: "creator"})

	id, err := client.CreateFarm(context.Background(), farm.FarmInput{
		StakingToken:       "LP",
		RewardTokens:       []string{"HBD"},
		RewardPerSession:   []farm.Amount{farm.NewAmount(10)},
		SessionIntervalSec: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), id)
	assert.Equal(t, "POST", rec.method)
	assert.Equal(t, "/api/v1/farms", rec.path)
	assert.Equal(t, "creator", rec.body["caller"])

	in := rec.body["farm"].(map[string]interface{})
	assert.Equal(t, "LP", in["staking_token"])
	assert.Equal(t, []interface{}{"10"}, in["reward_per_session"])
}

func TestClient_StakeAndFundMemos(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, farm.Receipt{})
	client := NewClient(Config{Endpoint: srv.URL, Username: "alice"})
	ctx := context.Background()

	_, err := client.Stake(ctx, "LP", 2, farm.NewAmount(100))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/transfers/incoming", rec.path)
	assert.Equal(t, "STAKE:2", rec.body["msg"])
	assert.Equal(t, "alice", rec.body["sender"])
	assert.Equal(t, "LP", rec.body["token"])
	assert.Equal(t, "100", rec.body["amount"])

	_, err = client.Fund(ctx, "HBD", 2, farm.NewAmount(5))
	require.NoError(t, err)
	assert.Equal(t, "ADD_REWARD:2", rec.body["msg"])
}

func TestClient_AccountCalls(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, farm.Receipt{})
	client := NewClient(Config{Endpoint: srv.URL, Username: "alice"})
	ctx := context.Background()

	_, err := client.Claim(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/farms/3/claim", rec.path)
	assert.Equal(t, "alice", rec.body["caller"])

	_, err = client.Withdraw(ctx, 3, farm.NewAmount(7))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/farms/3/withdraw", rec.path)
	assert.Equal(t, "7", rec.body["amount"])

	_, err = client.StorageDeposit(ctx, farm.NewAmount(9))
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/accounts/alice/storage", rec.path)

	_, err = client.StorageWithdraw(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/accounts/alice/storage/withdraw", rec.path)
	assert.NotContains(t, rec.body, "amount")

	_, err = client.RedeemOwed(ctx, "HBD")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/accounts/alice/owed/redeem", rec.path)
	assert.Equal(t, "HBD", rec.body["token"])

	require.NoError(t, client.ResolveTransfer(ctx, "abc", true))
	assert.Equal(t, "/api/v1/transfers/abc/resolve", rec.path)
	assert.Equal(t, true, rec.body["success"])
}

func TestClient_ListPaging(t *testing.T) {
	srv, rec := newRecordingServer(t, http.StatusOK, []farm.FarmView{{FarmID: 5}})
	client := NewClient(Config{Endpoint: srv.URL})

	farms, err := client.ListFarms(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, farms, 1)
	assert.Equal(t, uint64(5), farms[0].FarmID)
	assert.Equal(t, "GET", rec.method)
	assert.Equal(t, "from=5&limit=10", rec.query)
}

func TestClient_APIError(t *testing.T) {
	srv, _ := newRecordingServer(t, http.StatusNotFound, nil)
	client := NewClient(Config{Endpoint: srv.URL})

	_, err := client.GetFarm(context.Background(), 1)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "farm not found", apiErr.Message)
}
