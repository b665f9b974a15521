package srvreg

import (
	"errors"
	"net/http"

	"github.com/ahmadzakiakmal/medichain/ledger"
)

type inventoryCommitResult struct {
	Wallet string `json:"wallet"`
	Hash   string `json:"hash"`
	TxHash string `json:"txHash"`
	Height int64  `json:"height"`
}

// CommitInventoryHandler hashes the caller's stock and commits the hash on chain
func (sr *ServiceRegistry) CommitInventoryHandler(req *Request) (*Response, error) {
	if sr.ledger == nil {
		return nil, ledgerDisabled()
	}

	medicines, repoErr := sr.repository.ListMedicinesByHospital(req.Caller.ID)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	hash := ledger.InventoryHash(medicines)

	res, err := sr.ledger.CommitInventory(req.Context(), req.Caller.WalletAddress, hash)
	sr.metrics.LedgerSubmission(ledger.TxCommitInventory, err)
	if err != nil {
		return nil, ledgerFailure(err)
	}

	return success(http.StatusOK, inventoryCommitResult{
		Wallet: ledger.NormalizeWallet(req.Caller.WalletAddress),
		Hash:   hash,
		TxHash: res.TxHash,
		Height: res.Height,
	})
}

func (sr *ServiceRegistry) GetInventoryCommitmentHandler(req *Request) (*Response, error) {
	if sr.ledger == nil {
		return nil, ledgerDisabled()
	}
	commitment, err := sr.ledger.Inventory(req.Context(), req.Params["walletAddress"])
	if err != nil {
		return nil, ledgerFailure(err)
	}
	return success(http.StatusOK, commitment)
}

func (sr *ServiceRegistry) GetLedgerOrderHandler(req *Request) (*Response, error) {
	if sr.ledger == nil {
		return nil, ledgerDisabled()
	}
	record, err := sr.ledger.Order(req.Context(), req.Params["orderId"])
	if err != nil {
		return nil, ledgerFailure(err)
	}
	return success(http.StatusOK, record)
}

type orderCountResult struct {
	Wallet     string `json:"wallet"`
	OrderCount int64  `json:"orderCount"`
}

// LedgerOrderCountHandler returns how many orders the caller's wallet placed on chain
func (sr *ServiceRegistry) LedgerOrderCountHandler(req *Request) (*Response, error) {
	if sr.ledger == nil {
		return nil, ledgerDisabled()
	}
	count, err := sr.ledger.OrderCount(req.Context(), req.Caller.WalletAddress)
	if err != nil {
		return nil, ledgerFailure(err)
	}
	return success(http.StatusOK, orderCountResult{
		Wallet:     ledger.NormalizeWallet(req.Caller.WalletAddress),
		OrderCount: count,
	})
}

func ledgerDisabled() *AppError {
	return &AppError{StatusCode: http.StatusServiceUnavailable, Message: "Ledger is not enabled on this node"}
}

func ledgerFailure(err error) *AppError {
	var rejected *ledger.RejectedError
	switch {
	case errors.Is(err, ledger.ErrInventoryNotFound):
		return NotFound("Inventory commitment not found")
	case errors.Is(err, ledger.ErrOrderNotFound):
		return NotFound("Order not found on ledger")
	case errors.Is(err, ledger.ErrTimeout):
		return &AppError{StatusCode: http.StatusGatewayTimeout, Message: "Ledger did not respond in time", Err: err}
	case errors.As(err, &rejected):
		return &AppError{StatusCode: http.StatusConflict, Message: rejected.Log, Err: err}
	default:
		return Internal("Ledger error", err)
	}
}
