package srvreg

import (
	"net/http"
	"strings"

	"github.com/ahmadzakiakmal/medichain/ledger"
	"github.com/ahmadzakiakmal/medichain/metrics"
	"github.com/ahmadzakiakmal/medichain/repository/models"
)

type orderCreateBody struct {
	MedicineName string `json:"medicineName"`
	Quantity     int    `json:"quantity"`
	ToHospitalID string `json:"toHospitalId"`
	Emergency    bool   `json:"emergency"`
}

type statusUpdateBody struct {
	Status string `json:"status"`
}

type completeOrderBody struct {
	TransactionHash  string  `json:"transactionHash"`
	NFTCertificateID *string `json:"nftCertificateId"`
}

func (sr *ServiceRegistry) CreateOrderHandler(req *Request) (*Response, error) {
	return sr.createOrder(req, false)
}

// EmergencyOrderHandler creates an emergency order and broadcasts an SOS
func (sr *ServiceRegistry) EmergencyOrderHandler(req *Request) (*Response, error) {
	return sr.createOrder(req, true)
}

func (sr *ServiceRegistry) createOrder(req *Request, forceEmergency bool) (*Response, error) {
	var body orderCreateBody
	if err := decodeBody(req, orderCreateSchema, &body); err != nil {
		return nil, err
	}

	order, repoErr := sr.repository.CreateOrder(&models.Order{
		MedicineName:   strings.TrimSpace(body.MedicineName),
		Quantity:       body.Quantity,
		FromHospitalID: req.Caller.ID,
		ToHospitalID:   body.ToHospitalID,
		Emergency:      body.Emergency || forceEmergency,
	})
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}

	sr.metrics.OrderCreated(order.Emergency)
	sr.notifier.OrderCreated(order)
	if order.Emergency {
		sr.logger.Info("SOS broadcast", "hospital", req.Caller.ID, "medicine", order.MedicineName, "quantity", order.Quantity)
		sr.notifier.EmergencyBroadcast(order)
	}
	sr.recordOrderOnLedger(req, order)

	return success(http.StatusCreated, order)
}

func (sr *ServiceRegistry) ListOrdersHandler(req *Request) (*Response, error) {
	orders, repoErr := sr.repository.ListOrders()
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return list(orders, len(orders))
}

func (sr *ServiceRegistry) MyOrdersHandler(req *Request) (*Response, error) {
	orders, repoErr := sr.repository.ListOrdersForHospital(req.Caller.ID)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return list(orders, len(orders))
}

func (sr *ServiceRegistry) GetOrderHandler(req *Request) (*Response, error) {
	order, repoErr := sr.repository.GetOrder(req.Params["id"])
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}
	return success(http.StatusOK, order)
}

func (sr *ServiceRegistry) UpdateOrderStatusHandler(req *Request) (*Response, error) {
	var body statusUpdateBody
	if err := decodeBody(req, statusUpdateSchema, &body); err != nil {
		return nil, err
	}

	order, repoErr := sr.repository.UpdateOrderStatus(req.Params["id"], req.Caller.ID, body.Status)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}

	if order.Status == models.OrderStatusCompleted {
		sr.metrics.OrderCompleted(metrics.CompletionStatusUpdate)
	}
	sr.notifier.OrderStatusChanged(order)
	sr.recordStatusOnLedger(req, order)

	return success(http.StatusOK, order)
}

// CompleteOrderHandler completes an order once the receiving hospital
// reports the on-chain transfer.
func (sr *ServiceRegistry) CompleteOrderHandler(req *Request) (*Response, error) {
	var body completeOrderBody
	if err := decodeBody(req, completeOrderSchema, &body); err != nil {
		return nil, err
	}

	order, repoErr := sr.repository.ConfirmDelivery(
		req.Params["id"],
		req.Caller.ID,
		strings.TrimSpace(body.TransactionHash),
		trimmed(body.NFTCertificateID),
	)
	if repoErr != nil {
		return nil, fromRepositoryError(repoErr)
	}

	sr.metrics.OrderCompleted(metrics.CompletionDelivery)
	sr.notifier.OrderCompleted(order)
	sr.recordStatusOnLedger(req, order)

	return success(http.StatusOK, order)
}

// recordOrderOnLedger places the order on chain. Failures are only logged.
func (sr *ServiceRegistry) recordOrderOnLedger(req *Request, order *models.Order) {
	if sr.ledger == nil {
		return
	}
	seller, repoErr := sr.repository.GetHospitalByID(order.ToHospitalID)
	if repoErr != nil {
		sr.logger.Error("Ledger: cannot resolve seller wallet", "order", order.ID, "err", repoErr)
		return
	}

	_, err := sr.ledger.RecordOrder(req.Context(), req.Caller.WalletAddress, seller.WalletAddress, order.ID)
	sr.metrics.LedgerSubmission(ledger.TxPlaceOrder, err)
	if err != nil {
		sr.logger.Error("Ledger: failed to record order", "order", order.ID, "err", err)
	}
}

// recordStatusOnLedger mirrors an order status change on chain. Failures are only logged.
func (sr *ServiceRegistry) recordStatusOnLedger(req *Request, order *models.Order) {
	if sr.ledger == nil {
		return
	}
	sr.submitStatus(req, req.Caller.WalletAddress, order)
}

// recordPaymentOnLedger mirrors a gateway completion on chain as the buyer,
// since payment callbacks carry no authenticated hospital.
func (sr *ServiceRegistry) recordPaymentOnLedger(req *Request, order *models.Order) {
	if sr.ledger == nil {
		return
	}
	buyer, repoErr := sr.repository.GetHospitalByID(order.FromHospitalID)
	if repoErr != nil {
		sr.logger.Error("Ledger: cannot resolve buyer wallet", "order", order.ID, "err", repoErr)
		return
	}
	sr.submitStatus(req, buyer.WalletAddress, order)
}

func (sr *ServiceRegistry) submitStatus(req *Request, wallet string, order *models.Order) {
	_, err := sr.ledger.RecordOrderStatus(req.Context(), wallet, order.ID, order.Status)
	sr.metrics.LedgerSubmission(ledger.TxUpdateOrderStatus, err)
	if err != nil {
		sr.logger.Error("Ledger: failed to record order status", "order", order.ID, "status", order.Status, "err", err)
	}
}
