package vscfarm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vsc-eco/vsc-farm/contracts/farm"
	"github.com/vsc-eco/vsc-farm/schemas"
)

// Client provides SDK methods for the farm ledger HTTP API
type Client struct {
	config     Config
	httpClient *http.Client
}

type Config struct {
	// Endpoint is the ledger base URL, e.g. http://localhost:8082.
	Endpoint string
	// Username is the caller for calls that act on behalf of an account.
	Username string
	Timeout  time.Duration
}

// APIError is a non-2xx response from the ledger.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger returned status %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a new farm ledger client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// CreateFarm registers a farm paid for by the configured user and returns
// its id.
func (c *Client) CreateFarm(ctx context.Context, in farm.FarmInput) (uint64, error) {
	var resp struct {
		FarmID uint64 `json:"farm_id"`
	}
	body := map[string]interface{}{"caller": c.config.Username, "farm": in}
	if err := c.do(ctx, "POST", "/api/v1/farms", body, &resp); err != nil {
		return 0, err
	}
	return resp.FarmID, nil
}

// GetFarm returns the farm projected to now.
func (c *Client) GetFarm(ctx context.Context, farmID uint64) (*farm.FarmView, error) {
	var view farm.FarmView
	if err := c.do(ctx, "GET", "/api/v1/farms/"+strconv.FormatUint(farmID, 10), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListFarms pages through farms by id.
func (c *Client) ListFarms(ctx context.Context, from, limit uint64) ([]farm.FarmView, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatUint(from, 10))
	q.Set("limit", strconv.FormatUint(limit, 10))

	var farms []farm.FarmView
	if err := c.do(ctx, "GET", "/api/v1/farms?"+q.Encode(), nil, &farms); err != nil {
		return nil, err
	}
	return farms, nil
}

// NotifyTransfer reports an inbound token transfer to the ledger on behalf
// of the token service.
func (c *Client) NotifyTransfer(ctx context.Context, token, sender string, amount farm.Amount, msg string) (*farm.Receipt, error) {
	body := map[string]interface{}{
		"token":  token,
		"sender": sender,
		"amount": amount,
		"msg":    msg,
	}
	var receipt farm.Receipt
	if err := c.do(ctx, "POST", "/api/v1/transfers/incoming", body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Stake transfers amount of the staking token into the farm for the
// configured user.
func (c *Client) Stake(ctx context.Context, token string, farmID uint64, amount farm.Amount) (*farm.Receipt, error) {
	return c.NotifyTransfer(ctx, token, c.config.Username, amount, schemas.TransferMemo{Action: schemas.ActionStake, FarmID: farmID}.String())
}

// Fund adds amount of a reward token to the farm's pool.
func (c *Client) Fund(ctx context.Context, token string, farmID uint64, amount farm.Amount) (*farm.Receipt, error) {
	return c.NotifyTransfer(ctx, token, c.config.Username, amount, schemas.TransferMemo{Action: schemas.ActionAddReward, FarmID: farmID}.String())
}

// Claim pays out the configured user's accrued rewards.
func (c *Client) Claim(ctx context.Context, farmID uint64) (*farm.Receipt, error) {
	var receipt farm.Receipt
	body := map[string]string{"caller": c.config.Username}
	if err := c.do(ctx, "POST", fmt.Sprintf("/api/v1/farms/%d/claim", farmID), body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Withdraw returns staked principal to the configured user.
func (c *Client) Withdraw(ctx context.Context, farmID uint64, amount farm.Amount) (*farm.Receipt, error) {
	var receipt farm.Receipt
	body := map[string]interface{}{"caller": c.config.Username, "amount": amount}
	if err := c.do(ctx, "POST", fmt.Sprintf("/api/v1/farms/%d/withdraw", farmID), body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// GetStake returns an account's stake with rewards projected to now.
func (c *Client) GetStake(ctx context.Context, account string, farmID uint64) (*farm.StakeInfoView, error) {
	var view farm.StakeInfoView
	path := fmt.Sprintf("/api/v1/accounts/%s/stakes/%d", url.PathEscape(account), farmID)
	if err := c.do(ctx, "GET", path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListStakes pages through an account's stakes.
func (c *Client) ListStakes(ctx context.Context, account string, from, limit uint64) ([]farm.StakeInfoView, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatUint(from, 10))
	q.Set("limit", strconv.FormatUint(limit, 10))

	var stakes []farm.StakeInfoView
	path := "/api/v1/accounts/" + url.PathEscape(account) + "/stakes?" + q.Encode()
	if err := c.do(ctx, "GET", path, nil, &stakes); err != nil {
		return nil, err
	}
	return stakes, nil
}

// StorageDeposit prepays storage for the configured user.
func (c *Client) StorageDeposit(ctx context.Context, amount farm.Amount) (*farm.Receipt, error) {
	var receipt farm.Receipt
	body := map[string]interface{}{"amount": amount}
	if err := c.do(ctx, "POST", c.accountPath("/storage"), body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// StorageWithdraw withdraws unlocked storage deposit. A nil amount
// withdraws everything available.
func (c *Client) StorageWithdraw(ctx context.Context, amount *farm.Amount) (*farm.Receipt, error) {
	var receipt farm.Receipt
	body := map[string]interface{}{}
	if amount != nil {
		body["amount"] = *amount
	}
	if err := c.do(ctx, "POST", c.accountPath("/storage/withdraw"), body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// StorageBalance returns an account's prepaid storage.
func (c *Client) StorageBalance(ctx context.Context, account string) (*farm.StorageBalanceView, error) {
	var bal farm.StorageBalanceView
	if err := c.do(ctx, "GET", "/api/v1/accounts/"+url.PathEscape(account)+"/storage", nil, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// Owed lists what failed transfers left owed to an account.
func (c *Client) Owed(ctx context.Context, account string) ([]farm.OwedBalance, error) {
	var owed []farm.OwedBalance
	if err := c.do(ctx, "GET", "/api/v1/accounts/"+url.PathEscape(account)+"/owed", nil, &owed); err != nil {
		return nil, err
	}
	return owed, nil
}

// RedeemOwed sends the configured user everything owed in token.
func (c *Client) RedeemOwed(ctx context.Context, token string) (*farm.Receipt, error) {
	var receipt farm.Receipt
	body := map[string]string{"token": token}
	if err := c.do(ctx, "POST", c.accountPath("/owed/redeem"), body, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// PendingTransfers lists outbound transfers waiting for an outcome.
func (c *Client) PendingTransfers(ctx context.Context) ([]farm.Transfer, error) {
	var pending []farm.Transfer
	if err := c.do(ctx, "GET", "/api/v1/transfers/pending", nil, &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// ResolveTransfer reports the outcome of an outbound transfer.
func (c *Client) ResolveTransfer(ctx context.Context, id string, success bool) error {
	body := map[string]bool{"success": success}
	return c.do(ctx, "POST", "/api/v1/transfers/"+url.PathEscape(id)+"/resolve", body, nil)
}

// SubscribeEvents streams ledger events to fn until ctx is done or the
// connection breaks.
func (c *Client) SubscribeEvents(ctx context.Context, fn func(farm.Event)) error {
	wsURL := "ws" + strings.TrimPrefix(c.config.Endpoint, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to event feed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev farm.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event feed: %w", err)
		}
		fn(ev)
	}
}

func (c *Client) accountPath(suffix string) string {
	return "/api/v1/accounts/" + url.PathEscape(c.config.Username) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.Endpoint+path, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call ledger: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse ledger response: %w", err)
	}
	return nil
}
