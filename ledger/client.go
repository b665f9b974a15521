package ledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/google/uuid"
)

// ErrTimeout is returned when the node does not answer before the deadline
var ErrTimeout = errors.New("ledger operation timed out")

// Broadcaster is the subset of the CometBFT RPC client used by Client.
// *local.Local from rpc/client/local satisfies it.
type Broadcaster interface {
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTxCommit, error)
	BroadcastTxSync(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTx, error)
	ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*coretypes.ResultABCIQuery, error)
}

// RejectedError is returned when the application refuses a transaction
type RejectedError struct {
	Code uint32
	Log  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("ledger rejected transaction (code %d): %s", e.Code, e.Log)
}

// Unwrap exposes the sentinel error matching the rejection log, if any
func (e *RejectedError) Unwrap() error {
	for _, known := range []error{
		ErrSellerNotCommitted,
		ErrNotInvolved,
		ErrOrderExists,
		ErrOrderNotFound,
		ErrInvalidChainStatus,
		ErrUnknownTxType,
		ErrMissingTxField,
	} {
		if e.Log == known.Error() {
			return known
		}
	}
	return nil
}

// CommitResult identifies the block a transaction was included in
type CommitResult struct {
	TxHash string `json:"txHash"`
	Height int64  `json:"height"`
}

// Client submits ledger transactions to the local node and reads its state
type Client struct {
	rpc     Broadcaster
	timeout time.Duration
	logger  cmtlog.Logger
}

// NewClient creates a ledger client. A non-positive timeout defaults to 10s.
func NewClient(rpc Broadcaster, timeout time.Duration, logger cmtlog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		rpc:     rpc,
		timeout: timeout,
		logger:  logger.With("module", "ledger"),
	}
}

// CommitInventory records a hospital's inventory hash and waits for the block
func (c *Client) CommitInventory(ctx context.Context, wallet, hash string) (*CommitResult, error) {
	tx := &Tx{
		Type:   TxCommitInventory,
		Sender: NormalizeWallet(wallet),
		Hash:   hash,
		Nonce:  uuid.NewString(),
	}
	return c.commit(ctx, tx)
}

// RecordOrder places an order on chain without waiting for a block.
// buyer is the requesting hospital's wallet, seller the fulfilling one.
func (c *Client) RecordOrder(ctx context.Context, buyer, seller, orderID string) (string, error) {
	return c.sync(ctx, &Tx{
		Type:      TxPlaceOrder,
		Sender:    NormalizeWallet(buyer),
		Seller:    NormalizeWallet(seller),
		OrderHash: OrderHash(orderID),
		Nonce:     uuid.NewString(),
	})
}

// RecordOrderStatus submits an order status change on behalf of wallet
func (c *Client) RecordOrderStatus(ctx context.Context, wallet, orderID, status string) (string, error) {
	return c.sync(ctx, &Tx{
		Type:      TxUpdateOrderStatus,
		Sender:    NormalizeWallet(wallet),
		OrderHash: OrderHash(orderID),
		Status:    ChainStatus(status),
		Nonce:     uuid.NewString(),
	})
}

// Inventory returns the latest commitment of a wallet
func (c *Client) Inventory(ctx context.Context, wallet string) (*InventoryCommitment, error) {
	var commitment InventoryCommitment
	if err := c.query(ctx, QueryInventory, []byte(NormalizeWallet(wallet)), ErrInventoryNotFound, &commitment); err != nil {
		return nil, err
	}
	return &commitment, nil
}

// Order returns the on-chain record of an order
func (c *Client) Order(ctx context.Context, orderID string) (*OrderRecord, error) {
	var record OrderRecord
	if err := c.query(ctx, QueryOrder, []byte(OrderHash(orderID)), ErrOrderNotFound, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// OrderCount returns the number of orders the wallet placed on chain. An
// empty wallet counts every order.
func (c *Client) OrderCount(ctx context.Context, wallet string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var data []byte
	if wallet != "" {
		data = []byte(NormalizeWallet(wallet))
	}
	res, err := c.rpc.ABCIQuery(ctx, QueryOrderCount, data)
	if err != nil {
		return 0, fmt.Errorf("query order count: %w", err)
	}
	if res.Response.Code != CodeOK {
		return 0, fmt.Errorf("query order count: %s", res.Response.Log)
	}
	return strconv.ParseInt(string(res.Response.Value), 10, 64)
}

func (c *Client) commit(ctx context.Context, tx *Tx) (*CommitResult, error) {
	raw, err := tx.Encode()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan struct {
		result *coretypes.ResultBroadcastTxCommit
		err    error
	}, 1)

	go func() {
		result, err := c.rpc.BroadcastTxCommit(ctx, cmttypes.Tx(raw))
		done <- struct {
			result *coretypes.ResultBroadcastTxCommit
			err    error
		}{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	case result := <-done:
		if result.err != nil {
			return nil, fmt.Errorf("broadcast %s: %w", tx.Type, result.err)
		}
		if result.result.CheckTx.Code != CodeOK {
			return nil, &RejectedError{Code: result.result.CheckTx.Code, Log: result.result.CheckTx.Log}
		}
		if result.result.TxResult.Code != CodeOK {
			return nil, &RejectedError{Code: result.result.TxResult.Code, Log: result.result.TxResult.Log}
		}

		c.logger.Info("Transaction committed", "type", tx.Type, "height", result.result.Height)
		return &CommitResult{
			TxHash: hex.EncodeToString(result.result.Hash),
			Height: result.result.Height,
		}, nil
	}
}

func (c *Client) sync(ctx context.Context, tx *Tx) (string, error) {
	raw, err := tx.Encode()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.BroadcastTxSync(ctx, cmttypes.Tx(raw))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return "", fmt.Errorf("broadcast %s: %w", tx.Type, err)
	}
	if res.Code != CodeOK {
		return "", &RejectedError{Code: res.Code, Log: res.Log}
	}
	return hex.EncodeToString(res.Hash), nil
}

func (c *Client) query(ctx context.Context, path string, data []byte, notFound error, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.ABCIQuery(ctx, path, data)
	if err != nil {
		return fmt.Errorf("query %s: %w", path, err)
	}
	switch res.Response.Code {
	case CodeOK:
	case CodeNotFound:
		return notFound
	default:
		return fmt.Errorf("query %s: %s", path, res.Response.Log)
	}
	if err := json.Unmarshal(res.Response.Value, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
