package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/medichain/repository/models"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroadcaster struct {
	sent      []Tx
	commitRes *coretypes.ResultBroadcastTxCommit
	syncRes   *coretypes.ResultBroadcastTx
	queryRes  map[string]abcitypes.QueryResponse
	block     chan struct{}
}

func (f *fakeBroadcaster) record(raw cmttypes.Tx) {
	var tx Tx
	_ = json.Unmarshal(raw, &tx)
	f.sent = append(f.sent, tx)
}

func (f *fakeBroadcaster) BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTxCommit, error) {
	f.record(tx)
	if f.block != nil {
		<-f.block
	}
	return f.commitRes, nil
}

func (f *fakeBroadcaster) BroadcastTxSync(ctx context.Context, tx cmttypes.Tx) (*coretypes.ResultBroadcastTx, error) {
	f.record(tx)
	return f.syncRes, nil
}

func (f *fakeBroadcaster) ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*coretypes.ResultABCIQuery, error) {
	return &coretypes.ResultABCIQuery{Response: f.queryRes[path+"|"+string(data)]}, nil
}

func TestValidateBasic(t *testing.T) {
	cases := []struct {
		name string
		tx   Tx
		want error
	}{
		{"commit ok", Tx{Type: TxCommitInventory, Sender: "0x1", Hash: "h"}, nil},
		{"commit without hash", Tx{Type: TxCommitInventory, Sender: "0x1"}, ErrMissingTxField},
		{"missing sender", Tx{Type: TxCommitInventory, Hash: "h"}, ErrMissingTxField},
		{"place without seller", Tx{Type: TxPlaceOrder, Sender: "0x1", OrderHash: "o"}, ErrMissingTxField},
		{"bad status", Tx{Type: TxUpdateOrderStatus, Sender: "0x1", OrderHash: "o", Status: "Shipped"}, ErrInvalidChainStatus},
		{"unknown type", Tx{Type: "burn", Sender: "0x1"}, ErrUnknownTxType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tx.ValidateBasic()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestInventoryHashIgnoresOrder(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := []models.Medicine{
		{Name: "Paracetamol", Quantity: 10, Expiry: expiry},
		{Name: "Insulin", Quantity: 5, Expiry: expiry},
	}
	b := []models.Medicine{a[1], a[0]}
	assert.Equal(t, InventoryHash(a), InventoryHash(b))

	a[0].Quantity = 11
	assert.NotEqual(t, InventoryHash(a), InventoryHash(b))
}

func TestChainStatus(t *testing.T) {
	assert.Equal(t, StatusPending, ChainStatus(models.OrderStatusPending))
	assert.Equal(t, StatusCompleted, ChainStatus(models.OrderStatusCompleted))
	assert.Equal(t, StatusCancelled, ChainStatus(models.OrderStatusCancelled))
	assert.Equal(t, OrderHash("x"), OrderHash("x"))
	assert.NotEqual(t, OrderHash("x"), OrderHash("y"))
}

func TestCommitInventory(t *testing.T) {
	fake := &fakeBroadcaster{commitRes: &coretypes.ResultBroadcastTxCommit{
		Hash:   cmtbytes.HexBytes{0xab, 0xcd},
		Height: 7,
	}}
	c := NewClient(fake, time.Second, cmtlog.NewNopLogger())

	res, err := c.CommitInventory(context.Background(), "0xABC", "hash")
	require.NoError(t, err)
	assert.Equal(t, "abcd", res.TxHash)
	assert.Equal(t, int64(7), res.Height)
	require.Len(t, fake.sent, 1)
	assert.Equal(t, "0xabc", fake.sent[0].Sender)
	assert.NotEmpty(t, fake.sent[0].Nonce)
}

func TestCommitInventoryRejected(t *testing.T) {
	fake := &fakeBroadcaster{commitRes: &coretypes.ResultBroadcastTxCommit{
		TxResult: abcitypes.ExecTxResult{Code: CodeRejected, Log: ErrSellerNotCommitted.Error()},
	}}
	c := NewClient(fake, time.Second, cmtlog.NewNopLogger())

	_, err := c.CommitInventory(context.Background(), "0xabc", "hash")
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.ErrorIs(t, err, ErrSellerNotCommitted)
}

func TestCommitInventoryTimeout(t *testing.T) {
	fake := &fakeBroadcaster{block: make(chan struct{})}
	defer close(fake.block)
	c := NewClient(fake, 20*time.Millisecond, cmtlog.NewNopLogger())

	_, err := c.CommitInventory(context.Background(), "0xabc", "hash")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRecordOrder(t *testing.T) {
	fake := &fakeBroadcaster{syncRes: &coretypes.ResultBroadcastTx{Hash: cmtbytes.HexBytes{0x01}}}
	c := NewClient(fake, time.Second, cmtlog.NewNopLogger())

	hash, err := c.RecordOrder(context.Background(), "0xBuyer", "0xSeller", "order-1")
	require.NoError(t, err)
	assert.Equal(t, "01", hash)
	assert.Equal(t, OrderHash("order-1"), fake.sent[0].OrderHash)
	assert.Equal(t, "0xseller", fake.sent[0].Seller)

	fake.syncRes = &coretypes.ResultBroadcastTx{Code: CodeInvalidTx, Log: "bad"}
	_, err = c.RecordOrderStatus(context.Background(), "0xBuyer", "order-1", models.OrderStatusCompleted)
	assert.Error(t, err)
	assert.Equal(t, StatusCompleted, fake.sent[1].Status)
}

func TestQueries(t *testing.T) {
	record := OrderRecord{OrderHash: OrderHash("o1"), Buyer: "0xa", Seller: "0xb", Status: StatusPending}
	raw, err := json.Marshal(record)
	require.NoError(t, err)

	fake := &fakeBroadcaster{queryRes: map[string]abcitypes.QueryResponse{
		QueryOrder + "|" + OrderHash("o1"): {Code: CodeOK, Value: raw},
		QueryOrder + "|" + OrderHash("o2"): {Code: CodeNotFound},
		QueryInventory + "|0xabc":          {Code: CodeNotFound},
		QueryOrderCount + "|":              {Code: CodeOK, Value: []byte("3")},
		QueryOrderCount + "|0xbuyer":       {Code: CodeOK, Value: []byte("1")},
	}}
	c := NewClient(fake, time.Second, cmtlog.NewNopLogger())
	ctx := context.Background()

	got, err := c.Order(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, record.Buyer, got.Buyer)

	_, err = c.Order(ctx, "o2")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = c.Inventory(ctx, "0xABC")
	assert.ErrorIs(t, err, ErrInventoryNotFound)

	count, err := c.OrderCount(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = c.OrderCount(ctx, "0xBuyer")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
