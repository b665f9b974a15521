package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/medichain/ledger"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyerWallet  = "0xAAA0000000000000000000000000000000000001"
	sellerWallet = "0xbbb0000000000000000000000000000000000002"
	otherWallet  = "0xccc0000000000000000000000000000000000003"
)

func newTestApp(t *testing.T) *Application {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewABCIApplication(db, cmtlog.NewNopLogger())
}

func encodeTx(t *testing.T, tx ledger.Tx) []byte {
	t.Helper()
	raw, err := tx.Encode()
	require.NoError(t, err)
	return raw
}

// runBlock finalizes and commits a block containing txs
func runBlock(t *testing.T, app *Application, height int64, txs ...[]byte) *abcitypes.FinalizeBlockResponse {
	t.Helper()
	ctx := context.Background()
	res, err := app.FinalizeBlock(ctx, &abcitypes.FinalizeBlockRequest{
		Txs:    txs,
		Height: height,
		Time:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(height) * time.Second),
	})
	require.NoError(t, err)
	_, err = app.Commit(ctx, &abcitypes.CommitRequest{})
	require.NoError(t, err)
	return res
}

func commitTx(wallet, hash string) ledger.Tx {
	return ledger.Tx{Type: ledger.TxCommitInventory, Sender: wallet, Hash: hash}
}

func placeTx(buyer, seller, orderHash string) ledger.Tx {
	return ledger.Tx{Type: ledger.TxPlaceOrder, Sender: buyer, Seller: seller, OrderHash: orderHash}
}

func statusTx(sender, orderHash, status string) ledger.Tx {
	return ledger.Tx{Type: ledger.TxUpdateOrderStatus, Sender: sender, OrderHash: orderHash, Status: status}
}

func queryOrder(t *testing.T, app *Application, orderHash string) (*abcitypes.QueryResponse, ledger.OrderRecord) {
	t.Helper()
	res, err := app.Query(context.Background(), &abcitypes.QueryRequest{Path: ledger.QueryOrder, Data: []byte(orderHash)})
	require.NoError(t, err)
	var record ledger.OrderRecord
	if res.Code == ledger.CodeOK {
		require.NoError(t, json.Unmarshal(res.Value, &record))
	}
	return res, record
}

func TestCheckTx(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	res, err := app.CheckTx(ctx, &abcitypes.CheckTxRequest{Tx: encodeTx(t, commitTx(buyerWallet, "abc"))})
	require.NoError(t, err)
	assert.Equal(t, ledger.CodeOK, res.Code)

	res, err = app.CheckTx(ctx, &abcitypes.CheckTxRequest{Tx: []byte("not json")})
	require.NoError(t, err)
	assert.Equal(t, ledger.CodeInvalidTx, res.Code)

	res, err = app.CheckTx(ctx, &abcitypes.CheckTxRequest{Tx: encodeTx(t, ledger.Tx{Type: "mint", Sender: buyerWallet})})
	require.NoError(t, err)
	assert.Equal(t, ledger.CodeInvalidTx, res.Code)
}

func TestCommitInventoryIsQueryableByAnyCase(t *testing.T) {
	app := newTestApp(t)

	res := runBlock(t, app, 1, encodeTx(t, commitTx(buyerWallet, "hash-1")))
	require.Len(t, res.TxResults, 1)
	assert.Equal(t, ledger.CodeOK, res.TxResults[0].Code)
	require.Len(t, res.TxResults[0].Events, 1)
	assert.Equal(t, ledger.EventType, res.TxResults[0].Events[0].Type)

	q, err := app.Query(context.Background(), &abcitypes.QueryRequest{
		Path: ledger.QueryInventory,
		Data: []byte("0xaaa0000000000000000000000000000000000001"),
	})
	require.NoError(t, err)
	require.Equal(t, ledger.CodeOK, q.Code)
	assert.Equal(t, int64(1), q.Height)

	var commitment ledger.InventoryCommitment
	require.NoError(t, json.Unmarshal(q.Value, &commitment))
	assert.Equal(t, "hash-1", commitment.Hash)
	assert.Equal(t, int64(1), commitment.Height)
}

func TestPlaceOrderRequiresSellerCommitment(t *testing.T) {
	app := newTestApp(t)

	res := runBlock(t, app, 1, encodeTx(t, placeTx(buyerWallet, sellerWallet, "order-1")))
	assert.Equal(t, ledger.CodeRejected, res.TxResults[0].Code)
	assert.Equal(t, ledger.ErrSellerNotCommitted.Error(), res.TxResults[0].Log)

	q, _ := queryOrder(t, app, "order-1")
	assert.Equal(t, ledger.CodeNotFound, q.Code)
}

func TestOrderLifecycleInOneBlock(t *testing.T) {
	app := newTestApp(t)

	res := runBlock(t, app, 1,
		encodeTx(t, commitTx(sellerWallet, "stock")),
		encodeTx(t, placeTx(buyerWallet, sellerWallet, "order-1")),
		encodeTx(t, placeTx(buyerWallet, sellerWallet, "order-1")),
	)
	assert.Equal(t, ledger.CodeOK, res.TxResults[0].Code)
	assert.Equal(t, ledger.CodeOK, res.TxResults[1].Code)
	assert.Equal(t, ledger.CodeRejected, res.TxResults[2].Code)
	assert.Equal(t, ledger.ErrOrderExists.Error(), res.TxResults[2].Log)

	q, record := queryOrder(t, app, "order-1")
	require.Equal(t, ledger.CodeOK, q.Code)
	assert.Equal(t, ledger.StatusPending, record.Status)
	assert.Equal(t, ledger.NormalizeWallet(buyerWallet), record.Buyer)

	count, err := app.Query(context.Background(), &abcitypes.QueryRequest{Path: ledger.QueryOrderCount})
	require.NoError(t, err)
	assert.Equal(t, "1", string(count.Value))
}

func TestOrderCountPerBuyer(t *testing.T) {
	app := newTestApp(t)
	runBlock(t, app, 1,
		encodeTx(t, commitTx(sellerWallet, "stock")),
		encodeTx(t, placeTx(buyerWallet, sellerWallet, "order-1")),
		encodeTx(t, placeTx(buyerWallet, sellerWallet, "order-2")),
		encodeTx(t, placeTx(otherWallet, sellerWallet, "order-3")),
	)

	countFor := func(wallet string) string {
		res, err := app.Query(context.Background(), &abcitypes.QueryRequest{Path: ledger.QueryOrderCount, Data: []byte(wallet)})
		require.NoError(t, err)
		require.Equal(t, ledger.CodeOK, res.Code)
		return string(res.Value)
	}
	assert.Equal(t, "2", countFor(buyerWallet))
	assert.Equal(t, "1", countFor(otherWallet))
	assert.Equal(t, "0", countFor(sellerWallet))
	assert.Equal(t, "3", countFor(""))
}

func TestOnlyInvolvedHospitalsUpdateStatus(t *testing.T) {
	app := newTestApp(t)
	runBlock(t, app, 1,
		encodeTx(t, commitTx(sellerWallet, "stock")),
		encodeTx(t, placeTx(buyerWallet, sellerWallet, "order-1")),
	)

	res := runBlock(t, app, 2, encodeTx(t, statusTx(otherWallet, "order-1", ledger.StatusCompleted)))
	assert.Equal(t, ledger.CodeRejected, res.TxResults[0].Code)
	assert.Equal(t, ledger.ErrNotInvolved.Error(), res.TxResults[0].Log)
	_, record := queryOrder(t, app, "order-1")
	assert.Equal(t, ledger.StatusPending, record.Status)

	res = runBlock(t, app, 3, encodeTx(t, statusTx(sellerWallet, "order-1", ledger.StatusCompleted)))
	assert.Equal(t, ledger.CodeOK, res.TxResults[0].Code)
	_, record = queryOrder(t, app, "order-1")
	assert.Equal(t, ledger.StatusCompleted, record.Status)
	assert.Equal(t, int64(3), record.Height)

	res = runBlock(t, app, 4, encodeTx(t, statusTx(buyerWallet, "missing", ledger.StatusCancelled)))
	assert.Equal(t, ledger.ErrOrderNotFound.Error(), res.TxResults[0].Log)
}

func TestInfoAndAppHashChain(t *testing.T) {
	app := newTestApp(t)

	first := runBlock(t, app, 1, encodeTx(t, commitTx(buyerWallet, "h")))
	second := runBlock(t, app, 2)
	assert.NotEqual(t, first.AppHash, second.AppHash)

	info, err := app.Info(context.Background(), &abcitypes.InfoRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.LastBlockHeight)
	assert.Equal(t, second.AppHash, info.LastBlockAppHash)
}

func TestProposalsDropMalformedTransactions(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	valid := encodeTx(t, commitTx(buyerWallet, "h"))

	prep, err := app.PrepareProposal(ctx, &abcitypes.PrepareProposalRequest{Txs: [][]byte{valid, []byte("{}")}})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{valid}, prep.Txs)

	proc, err := app.ProcessProposal(ctx, &abcitypes.ProcessProposalRequest{Txs: [][]byte{[]byte("{}")}})
	require.NoError(t, err)
	assert.Equal(t, abcitypes.PROCESS_PROPOSAL_STATUS_REJECT, proc.Status)
}

func TestQueryRejectsUnknownPath(t *testing.T) {
	app := newTestApp(t)
	res, err := app.Query(context.Background(), &abcitypes.QueryRequest{Path: "/secrets", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, ledger.CodeInvalidTx, res.Code)
}
