// Package ledger defines the on-chain records of the network and a client
// that submits them to the local CometBFT node.
package ledger

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/medichain/repository/models"
	"github.com/cometbft/cometbft/crypto/tmhash"
)

// Transaction types
const (
	TxCommitInventory   = "commit_inventory"
	TxPlaceOrder        = "place_order"
	TxUpdateOrderStatus = "update_order_status"
)

// On-chain order states
const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusCancelled = "Cancelled"
)

// Query paths served by the application
const (
	QueryInventory  = "/inventory"
	QueryOrder      = "/order"
	QueryOrderCount = "/order_count"
)

// ABCI result codes
const (
	CodeOK uint32 = iota
	CodeInvalidTx
	CodeRejected
	CodeNotFound
	CodeInternal
)

// EventType is the type of the events emitted for every applied transaction
const EventType = "medichain_tx"

var (
	ErrUnknownTxType      = errors.New("unknown transaction type")
	ErrSellerNotCommitted = errors.New("seller hospital has not committed inventory")
	ErrNotInvolved        = errors.New("only involved hospitals can update order status")
	ErrOrderExists        = errors.New("order already recorded")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInventoryNotFound  = errors.New("inventory commitment not found")
	ErrInvalidChainStatus = errors.New("invalid order status")
	ErrMissingTxField     = errors.New("missing transaction field")
)

// Tx is a ledger transaction as broadcast to the chain
type Tx struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Hash      string `json:"hash,omitempty"`
	Seller    string `json:"seller,omitempty"`
	OrderHash string `json:"order_hash,omitempty"`
	Status    string `json:"status,omitempty"`
	// Nonce keeps otherwise identical transactions distinct in the mempool cache
	Nonce string `json:"nonce,omitempty"`
}

// InventoryCommitment is the latest inventory hash committed by a hospital
type InventoryCommitment struct {
	Wallet    string    `json:"wallet"`
	Hash      string    `json:"hash"`
	Height    int64     `json:"height"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderRecord is the on-chain trace of an order
type OrderRecord struct {
	OrderHash string    `json:"orderHash"`
	Buyer     string    `json:"buyer"`
	Seller    string    `json:"seller"`
	Status    string    `json:"status"`
	Height    int64     `json:"height"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DecodeTx parses and validates a raw transaction
func DecodeTx(raw []byte) (*Tx, error) {
	var tx Tx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	if err := tx.ValidateBasic(); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Encode serializes the transaction for broadcasting
func (tx *Tx) Encode() ([]byte, error) {
	return json.Marshal(tx)
}

// ValidateBasic checks the transaction shape without looking at state
func (tx *Tx) ValidateBasic() error {
	if tx.Sender == "" {
		return fmt.Errorf("%w: sender", ErrMissingTxField)
	}
	switch tx.Type {
	case TxCommitInventory:
		if tx.Hash == "" {
			return fmt.Errorf("%w: hash", ErrMissingTxField)
		}
	case TxPlaceOrder:
		if tx.OrderHash == "" || tx.Seller == "" {
			return fmt.Errorf("%w: order_hash and seller", ErrMissingTxField)
		}
	case TxUpdateOrderStatus:
		if tx.OrderHash == "" {
			return fmt.Errorf("%w: order_hash", ErrMissingTxField)
		}
		if !ValidChainStatus(tx.Status) {
			return fmt.Errorf("%w: %q", ErrInvalidChainStatus, tx.Status)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTxType, tx.Type)
	}
	return nil
}

// ValidChainStatus reports whether s is a known on-chain order state
func ValidChainStatus(s string) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ChainStatus maps an order status of the database to its on-chain name
func ChainStatus(status string) string {
	switch status {
	case models.OrderStatusCompleted:
		return StatusCompleted
	case models.OrderStatusCancelled:
		return StatusCancelled
	default:
		return StatusPending
	}
}

// NormalizeWallet lower-cases a wallet address so lookups are case-insensitive
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// OrderHash derives the on-chain key of an order from its id
func OrderHash(orderID string) string {
	return hex.EncodeToString(tmhash.Sum([]byte("order:" + orderID)))
}

// InventoryHash fingerprints a hospital's stock. Lines are sorted so the
// hash does not depend on query order.
func InventoryHash(medicines []models.Medicine) string {
	lines := make([]string, 0, len(medicines))
	for _, m := range medicines {
		lines = append(lines, fmt.Sprintf("%s|%d|%s", strings.ToLower(m.Name), m.Quantity, m.Expiry.UTC().Format(time.RFC3339)))
	}
	sort.Strings(lines)
	return hex.EncodeToString(tmhash.Sum([]byte(strings.Join(lines, "\n"))))
}
