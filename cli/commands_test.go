package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
	"github.com/vsc-eco/vsc-farm/internal/kv"
	"github.com/vsc-eco/vsc-farm/services/ledger"
)

func newLedger(t *testing.T) string {
	t.Helper()
	cfg := ledger.DefaultConfig()
	cfg.StorageByteCost = "1"
	svc, err := ledger.NewService(cfg, kv.NewMemStore(), nil)
	require.NoError(t, err)

	srv := httptest.NewServer(ledger.NewServer(svc, "0").Handler())
	t.Cleanup(srv.Close)
	return srv.URL
}

func run(t *testing.T, endpoint string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--endpoint", endpoint}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestFarmctl_CreateStakeClaim(t *testing.T) {
	endpoint := newLedger(t)

	_, err := run(t, endpoint, "--user", "creator", "storage", "deposit", "1000")
	require.NoError(t, err)

	out, err := run(t, endpoint, "--user", "creator", "farms", "create",
		"--staking-token", "LP",
		"--reward-token", "HBD",
		"--reward-per-session", "10",
		"--interval", "60")
	require.NoError(t, err)
	assert.Equal(t, "Created farm 0\n", out)

	_, err = run(t, endpoint, "--user", "creator", "fund", "0", "HBD", "500")
	require.NoError(t, err)

	_, err = run(t, endpoint, "--user", "alice", "storage", "deposit", "1000")
	require.NoError(t, err)
	out, err = run(t, endpoint, "--user", "alice", "stake", "0", "LP", "100")
	require.NoError(t, err)
	var receipt farm.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.Len(t, receipt.Events, 1)
	assert.Equal(t, farm.EventStaked, receipt.Events[0].Method)

	out, err = run(t, endpoint, "farms", "get", "0")
	require.NoError(t, err)
	var view farm.FarmView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "100", view.TotalStaked.String())
	assert.Equal(t, "500", view.RemainingReward[0].String())

	out, err = run(t, endpoint, "stakes", "list", "alice")
	require.NoError(t, err)
	var stakes []farm.StakeInfoView
	require.NoError(t, json.Unmarshal([]byte(out), &stakes))
	require.Len(t, stakes, 1)

	// nothing has accrued yet, so the claim issues no transfers
	out, err = run(t, endpoint, "--user", "alice", "claim", "0")
	require.NoError(t, err)
	receipt = farm.Receipt{}
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	assert.Empty(t, receipt.Transfers)
}

func TestFarmctl_CreateFromFile(t *testing.T) {
	endpoint := newLedger(t)
	_, err := run(t, endpoint, "--user", "creator", "storage", "deposit", "1000")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "farm.json")
	doc := `{"staking_token":"LP","reward_tokens":["HBD","HIVE"],"reward_per_session":["1",2],"session_interval_sec":5}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := run(t, endpoint, "--user", "creator", "farms", "create", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, "Created farm 0\n", out)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"staking_token":"LP"}`), 0o644))
	_, err = run(t, endpoint, "--user", "creator", "farms", "create", "--file", bad)
	assert.Error(t, err)
}

func TestFarmctl_StorageAndTransfers(t *testing.T) {
	endpoint := newLedger(t)

	_, err := run(t, endpoint, "--user", "bob", "storage", "deposit", "300")
	require.NoError(t, err)

	out, err := run(t, endpoint, "--user", "bob", "storage", "withdraw", "100")
	require.NoError(t, err)
	var receipt farm.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.Len(t, receipt.Transfers, 1)
	id := receipt.Transfers[0].ID

	out, err = run(t, endpoint, "transfers", "pending")
	require.NoError(t, err)
	var pending []farm.Transfer
	require.NoError(t, json.Unmarshal([]byte(out), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	out, err = run(t, endpoint, "transfers", "resolve", id, "--failed")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, err = run(t, endpoint, "owed", "list", "bob")
	require.NoError(t, err)
	var owed []farm.OwedBalance
	require.NoError(t, json.Unmarshal([]byte(out), &owed))
	require.Len(t, owed, 1)
	assert.Equal(t, "100", owed[0].Amount.String())

	_, err = run(t, endpoint, "--user", "bob", "owed", "redeem", farm.NativeToken)
	require.NoError(t, err)

	out, err = run(t, endpoint, "storage", "balance", "bob")
	require.NoError(t, err)
	var bal farm.StorageBalanceView
	require.NoError(t, json.Unmarshal([]byte(out), &bal))
	assert.Equal(t, "200", bal.Deposit.String())
}

func TestFarmctl_Errors(t *testing.T) {
	endpoint := newLedger(t)

	_, err := run(t, endpoint, "claim", "0")
	assert.EqualError(t, err, "--user is required")

	_, err = run(t, endpoint, "farms", "get", "abc")
	assert.Error(t, err)

	_, err = run(t, endpoint, "farms", "get", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = run(t, endpoint, "--user", "alice", "stake", "0", "LP", "not-a-number")
	assert.Error(t, err)
}
