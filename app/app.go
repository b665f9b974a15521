package app

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ahmadzakiakmal/medichain/ledger"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
)

var (
	keyLastBlockHeight  = []byte("last_block_height")
	keyLastBlockAppHash = []byte("last_block_app_hash")
	keyOrderCount       = []byte("order_count")
)

func inventoryKey(wallet string) []byte {
	return []byte("inv:" + ledger.NormalizeWallet(wallet))
}

func orderCountKey(wallet string) []byte {
	return []byte("order_count:" + ledger.NormalizeWallet(wallet))
}

func orderKey(orderHash string) []byte {
	return []byte("order:" + orderHash)
}

var _ abcitypes.Application = (*Application)(nil)

// Application implements the ABCI interface for the medicine ledger.
// It records inventory commitments and the status of orders between hospitals.
type Application struct {
	badgerDB     *badger.DB
	onGoingBlock *badger.Txn
	mu           sync.Mutex
	logger       cmtlog.Logger
}

// NewABCIApplication creates a new application on top of badgerDB
func NewABCIApplication(badgerDB *badger.DB, logger cmtlog.Logger) *Application {
	return &Application{
		badgerDB: badgerDB,
		logger:   logger.With("module", "abci-app"),
	}
}

// Info implements the ABCI Info method
func (app *Application) Info(_ context.Context, info *abcitypes.InfoRequest) (*abcitypes.InfoResponse, error) {
	lastBlockHeight := int64(0)
	var lastBlockAppHash []byte

	err := app.badgerDB.View(func(txn *badger.Txn) error {
		val, err := getValue(txn, keyLastBlockHeight)
		if err != nil || val == nil {
			return err
		}
		lastBlockHeight = bytesToInt64(val)

		lastBlockAppHash, err = getValue(txn, keyLastBlockAppHash)
		return err
	})
	if err != nil {
		app.logger.Error("Error getting last block info", "err", err)
	}

	return &abcitypes.InfoResponse{
		Data:             "medichain-ledger",
		LastBlockHeight:  lastBlockHeight,
		LastBlockAppHash: lastBlockAppHash,
	}, nil
}

// Query implements the ABCI Query method. Paths are /inventory (data is a
// wallet address), /order (data is an order hash) and /order_count (data is
// the buyer wallet, empty for the chain-wide count).
func (app *Application) Query(_ context.Context, req *abcitypes.QueryRequest) (*abcitypes.QueryResponse, error) {
	var key []byte
	switch req.Path {
	case ledger.QueryInventory:
		key = inventoryKey(string(req.Data))
	case ledger.QueryOrder:
		key = orderKey(string(req.Data))
	case ledger.QueryOrderCount:
		key = keyOrderCount
		if len(req.Data) > 0 {
			key = orderCountKey(string(req.Data))
		}
	default:
		return &abcitypes.QueryResponse{
			Code: ledger.CodeInvalidTx,
			Log:  fmt.Sprintf("unknown query path %q", req.Path),
		}, nil
	}
	if len(key) == 0 || (req.Path != ledger.QueryOrderCount && len(req.Data) == 0) {
		return &abcitypes.QueryResponse{
			Code: ledger.CodeInvalidTx,
			Log:  "Empty query data",
		}, nil
	}

	resp := abcitypes.QueryResponse{Key: key}
	dbErr := app.badgerDB.View(func(txn *badger.Txn) error {
		if height, err := getValue(txn, keyLastBlockHeight); err == nil && height != nil {
			resp.Height = bytesToInt64(height)
		}

		val, err := getValue(txn, key)
		if err != nil {
			return err
		}
		if req.Path == ledger.QueryOrderCount {
			resp.Value = []byte(strconv.FormatInt(bytesToInt64(val), 10))
			resp.Log = "exists"
			return nil
		}
		if val == nil {
			resp.Code = ledger.CodeNotFound
			resp.Log = "key doesn't exist"
			return nil
		}
		resp.Value = val
		resp.Log = "exists"
		return nil
	})
	if dbErr != nil {
		app.logger.Error("Error reading database, unable to execute query", "err", dbErr)
		return &abcitypes.QueryResponse{
			Code: ledger.CodeInternal,
			Log:  fmt.Sprintf("Database error: %v", dbErr),
		}, nil
	}

	return &resp, nil
}

// CheckTx implements the ABCI CheckTx method. Only the shape of the
// transaction is validated here, state rules run in FinalizeBlock.
func (app *Application) CheckTx(_ context.Context, check *abcitypes.CheckTxRequest) (*abcitypes.CheckTxResponse, error) {
	if _, err := ledger.DecodeTx(check.Tx); err != nil {
		return &abcitypes.CheckTxResponse{
			Code: ledger.CodeInvalidTx,
			Log:  err.Error(),
		}, nil
	}
	return &abcitypes.CheckTxResponse{Code: ledger.CodeOK}, nil
}

// InitChain implements the ABCI InitChain method
func (app *Application) InitChain(_ context.Context, chain *abcitypes.InitChainRequest) (*abcitypes.InitChainResponse, error) {
	return &abcitypes.InitChainResponse{}, nil
}

// PrepareProposal implements the ABCI PrepareProposal method.
// Malformed transactions are left out of the block.
func (app *Application) PrepareProposal(_ context.Context, proposal *abcitypes.PrepareProposalRequest) (*abcitypes.PrepareProposalResponse, error) {
	txs := make([][]byte, 0, len(proposal.Txs))
	var size int64
	for _, tx := range proposal.Txs {
		if _, err := ledger.DecodeTx(tx); err != nil {
			continue
		}
		if proposal.MaxTxBytes > 0 && size+int64(len(tx)) > proposal.MaxTxBytes {
			break
		}
		size += int64(len(tx))
		txs = append(txs, tx)
	}
	return &abcitypes.PrepareProposalResponse{Txs: txs}, nil
}

// ProcessProposal implements the ABCI ProcessProposal method
func (app *Application) ProcessProposal(_ context.Context, proposal *abcitypes.ProcessProposalRequest) (*abcitypes.ProcessProposalResponse, error) {
	for _, tx := range proposal.Txs {
		if _, err := ledger.DecodeTx(tx); err != nil {
			app.logger.Info("Voted invalid", "err", err)
			return &abcitypes.ProcessProposalResponse{
				Status: abcitypes.PROCESS_PROPOSAL_STATUS_REJECT,
			}, nil
		}
	}
	return &abcitypes.ProcessProposalResponse{
		Status: abcitypes.PROCESS_PROPOSAL_STATUS_ACCEPT,
	}, nil
}

// FinalizeBlock implements the ABCI FinalizeBlock method
func (app *Application) FinalizeBlock(_ context.Context, req *abcitypes.FinalizeBlockRequest) (*abcitypes.FinalizeBlockResponse, error) {
	txResults := make([]*abcitypes.ExecTxResult, len(req.Txs))

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.onGoingBlock != nil {
		app.onGoingBlock.Discard()
	}
	app.onGoingBlock = app.badgerDB.NewTransaction(true)

	for i, txBytes := range req.Txs {
		tx, err := ledger.DecodeTx(txBytes)
		if err != nil {
			txResults[i] = &abcitypes.ExecTxResult{
				Code: ledger.CodeInvalidTx,
				Log:  err.Error(),
			}
			continue
		}
		txResults[i] = app.applyTx(tx, req.Height, req.Time.UTC())
	}

	prevAppHash, err := getValue(app.onGoingBlock, keyLastBlockAppHash)
	if err != nil {
		return nil, fmt.Errorf("read app hash: %w", err)
	}
	appHash := calculateAppHash(prevAppHash, txResults)

	if err := app.onGoingBlock.Set(keyLastBlockHeight, int64ToBytes(req.Height)); err != nil {
		return nil, fmt.Errorf("store block height: %w", err)
	}
	if err := app.onGoingBlock.Set(keyLastBlockAppHash, appHash); err != nil {
		return nil, fmt.Errorf("store app hash: %w", err)
	}

	return &abcitypes.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   appHash,
	}, nil
}

// Commit implements the ABCI Commit method
func (app *Application) Commit(_ context.Context, commit *abcitypes.CommitRequest) (*abcitypes.CommitResponse, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.onGoingBlock == nil {
		return &abcitypes.CommitResponse{}, nil
	}
	err := app.onGoingBlock.Commit()
	app.onGoingBlock = nil
	if err != nil {
		return nil, fmt.Errorf("commit block: %w", err)
	}

	return &abcitypes.CommitResponse{}, nil
}

// ListSnapshots implements the ABCI ListSnapshots method
func (app *Application) ListSnapshots(_ context.Context, snapshots *abcitypes.ListSnapshotsRequest) (*abcitypes.ListSnapshotsResponse, error) {
	return &abcitypes.ListSnapshotsResponse{}, nil
}

// OfferSnapshot implements the ABCI OfferSnapshot method
func (app *Application) OfferSnapshot(_ context.Context, snapshot *abcitypes.OfferSnapshotRequest) (*abcitypes.OfferSnapshotResponse, error) {
	return &abcitypes.OfferSnapshotResponse{}, nil
}

// LoadSnapshotChunk implements the ABCI LoadSnapshotChunk method
func (app *Application) LoadSnapshotChunk(_ context.Context, chunk *abcitypes.LoadSnapshotChunkRequest) (*abcitypes.LoadSnapshotChunkResponse, error) {
	return &abcitypes.LoadSnapshotChunkResponse{}, nil
}

// ApplySnapshotChunk implements the ABCI ApplySnapshotChunk method
func (app *Application) ApplySnapshotChunk(_ context.Context, chunk *abcitypes.ApplySnapshotChunkRequest) (*abcitypes.ApplySnapshotChunkResponse, error) {
	return &abcitypes.ApplySnapshotChunkResponse{
		Result: abcitypes.APPLY_SNAPSHOT_CHUNK_RESULT_ACCEPT,
	}, nil
}

// ExtendVote implements the ABCI ExtendVote method
func (app *Application) ExtendVote(_ context.Context, extend *abcitypes.ExtendVoteRequest) (*abcitypes.ExtendVoteResponse, error) {
	return &abcitypes.ExtendVoteResponse{}, nil
}

// VerifyVoteExtension implements the ABCI VerifyVoteExtension method
func (app *Application) VerifyVoteExtension(_ context.Context, verify *abcitypes.VerifyVoteExtensionRequest) (*abcitypes.VerifyVoteExtensionResponse, error) {
	return &abcitypes.VerifyVoteExtensionResponse{
		Status: abcitypes.VERIFY_VOTE_EXTENSION_STATUS_ACCEPT,
	}, nil
}

// Helper Functions

// applyTx runs the state rules of a single transaction against the ongoing block
func (app *Application) applyTx(tx *ledger.Tx, height int64, blockTime time.Time) *abcitypes.ExecTxResult {
	var (
		data []byte
		err  error
	)
	switch tx.Type {
	case ledger.TxCommitInventory:
		data, err = app.commitInventory(tx, height, blockTime)
	case ledger.TxPlaceOrder:
		data, err = app.placeOrder(tx, height, blockTime)
	case ledger.TxUpdateOrderStatus:
		data, err = app.updateOrderStatus(tx, height, blockTime)
	default:
		err = ledger.ErrUnknownTxType
	}

	if err != nil {
		code := ledger.CodeRejected
		var badgerErr *stateError
		if errors.As(err, &badgerErr) {
			code = ledger.CodeInternal
			app.logger.Error("Error applying transaction", "type", tx.Type, "err", err)
		}
		return &abcitypes.ExecTxResult{
			Code: code,
			Log:  err.Error(),
		}
	}

	attributes := []abcitypes.EventAttribute{
		{Key: "type", Value: tx.Type, Index: true},
		{Key: "sender", Value: ledger.NormalizeWallet(tx.Sender), Index: true},
	}
	if tx.OrderHash != "" {
		attributes = append(attributes, abcitypes.EventAttribute{Key: "order_hash", Value: tx.OrderHash, Index: true})
	}
	if tx.Status != "" {
		attributes = append(attributes, abcitypes.EventAttribute{Key: "status", Value: tx.Status, Index: true})
	}

	return &abcitypes.ExecTxResult{
		Code:   ledger.CodeOK,
		Data:   data,
		Log:    "accepted",
		Events: []abcitypes.Event{{Type: ledger.EventType, Attributes: attributes}},
	}
}

func (app *Application) commitInventory(tx *ledger.Tx, height int64, blockTime time.Time) ([]byte, error) {
	commitment := ledger.InventoryCommitment{
		Wallet:    ledger.NormalizeWallet(tx.Sender),
		Hash:      tx.Hash,
		Height:    height,
		Timestamp: blockTime,
	}
	if err := app.putJSON(inventoryKey(tx.Sender), commitment); err != nil {
		return nil, err
	}
	return []byte(tx.Hash), nil
}

func (app *Application) placeOrder(tx *ledger.Tx, height int64, blockTime time.Time) ([]byte, error) {
	committed, err := getValue(app.onGoingBlock, inventoryKey(tx.Seller))
	if err != nil {
		return nil, &stateError{err}
	}
	if committed == nil {
		return nil, ledger.ErrSellerNotCommitted
	}

	existing, err := getValue(app.onGoingBlock, orderKey(tx.OrderHash))
	if err != nil {
		return nil, &stateError{err}
	}
	if existing != nil {
		return nil, ledger.ErrOrderExists
	}

	record := ledger.OrderRecord{
		OrderHash: tx.OrderHash,
		Buyer:     ledger.NormalizeWallet(tx.Sender),
		Seller:    ledger.NormalizeWallet(tx.Seller),
		Status:    ledger.StatusPending,
		Height:    height,
		UpdatedAt: blockTime,
	}
	if err := app.putJSON(orderKey(tx.OrderHash), record); err != nil {
		return nil, err
	}

	for _, key := range [][]byte{keyOrderCount, orderCountKey(tx.Sender)} {
		count, err := getValue(app.onGoingBlock, key)
		if err != nil {
			return nil, &stateError{err}
		}
		if err := app.onGoingBlock.Set(key, int64ToBytes(bytesToInt64(count)+1)); err != nil {
			return nil, &stateError{err}
		}
	}
	return []byte(tx.OrderHash), nil
}

func (app *Application) updateOrderStatus(tx *ledger.Tx, height int64, blockTime time.Time) ([]byte, error) {
	raw, err := getValue(app.onGoingBlock, orderKey(tx.OrderHash))
	if err != nil {
		return nil, &stateError{err}
	}
	if raw == nil {
		return nil, ledger.ErrOrderNotFound
	}

	var record ledger.OrderRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, &stateError{err}
	}
	sender := ledger.NormalizeWallet(tx.Sender)
	if sender != record.Buyer && sender != record.Seller {
		return nil, ledger.ErrNotInvolved
	}

	record.Status = tx.Status
	record.Height = height
	record.UpdatedAt = blockTime
	if err := app.putJSON(orderKey(tx.OrderHash), record); err != nil {
		return nil, err
	}
	return []byte(tx.OrderHash + ":" + tx.Status), nil
}

func (app *Application) putJSON(key []byte, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &stateError{err}
	}
	if err := app.onGoingBlock.Set(key, raw); err != nil {
		return &stateError{err}
	}
	return nil
}

// stateError marks storage failures, as opposed to rule violations
type stateError struct {
	err error
}

func (e *stateError) Error() string { return "state error: " + e.err.Error() }
func (e *stateError) Unwrap() error { return e.err }

// getValue returns a copy of the value under key, or nil when it is absent
func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// calculateAppHash chains the previous app hash with the data of every result
func calculateAppHash(prev []byte, txResults []*abcitypes.ExecTxResult) []byte {
	hasher := sha256.New()
	hasher.Write(prev)
	for _, result := range txResults {
		hasher.Write(int64ToBytes(int64(result.Code)))
		hasher.Write(result.Data)
	}
	return hasher.Sum(nil)
}

// int64ToBytes converts an int64 to bytes
func int64ToBytes(i int64) []byte {
	buf := make([]byte, 8)

	buf[0] = byte(i >> 56)
	buf[1] = byte(i >> 48)
	buf[2] = byte(i >> 40)
	buf[3] = byte(i >> 32)
	buf[4] = byte(i >> 24)
	buf[5] = byte(i >> 16)
	buf[6] = byte(i >> 8)
	buf[7] = byte(i)

	return buf
}

// bytesToInt64 converts bytes to an int64
func bytesToInt64(buf []byte) int64 {
	if len(buf) < 8 {
		return 0
	}

	return int64(buf[0])<<56 |
		int64(buf[1])<<48 |
		int64(buf[2])<<40 |
		int64(buf[3])<<32 |
		int64(buf[4])<<24 |
		int64(buf[5])<<16 |
		int64(buf[6])<<8 |
		int64(buf[7])
}
