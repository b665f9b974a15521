package srvreg

// APIPrefix is the path every API route is served under
const APIPrefix = "/api"

// RegisterDefaultServices sets up the routes of the API
func (sr *ServiceRegistry) RegisterDefaultServices() {
	// Auth
	sr.RegisterHandler("POST", APIPrefix+"/auth/login", true, false, sr.LoginHandler)
	sr.RegisterHandler("POST", APIPrefix+"/auth/register", true, false, sr.RegisterHospitalHandler)

	// Hospitals
	sr.RegisterHandler("GET", APIPrefix+"/hospitals", true, false, sr.ListHospitalsHandler)
	sr.RegisterHandler("GET", APIPrefix+"/hospitals/me/profile", true, true, sr.GetMyProfileHandler)
	sr.RegisterHandler("PUT", APIPrefix+"/hospitals/me/profile", true, true, sr.UpdateMyProfileHandler)
	sr.RegisterHandler("GET", APIPrefix+"/hospitals/nearby/:lat/:lon/:distanceKm", false, true, sr.NearbyHospitalsHandler)
	sr.RegisterHandler("GET", APIPrefix+"/hospitals/:id", false, false, sr.GetHospitalHandler)

	// Medicines
	sr.RegisterHandler("GET", APIPrefix+"/medicines", true, false, sr.ListMedicinesHandler)
	sr.RegisterHandler("POST", APIPrefix+"/medicines", true, true, sr.CreateMedicineHandler)
	sr.RegisterHandler("POST", APIPrefix+"/medicines/search", true, true, sr.SearchMedicinesHandler)
	sr.RegisterHandler("POST", APIPrefix+"/medicines/process-image", true, true, sr.ProcessImageHandler)
	sr.RegisterHandler("GET", APIPrefix+"/medicines/hospital/:hospitalId", false, false, sr.MedicinesByHospitalHandler)
	sr.RegisterHandler("GET", APIPrefix+"/medicines/low-stock/:threshold", false, true, sr.LowStockHandler)
	sr.RegisterHandler("GET", APIPrefix+"/medicines/expiring-soon/:days", false, true, sr.ExpiringSoonHandler)
	sr.RegisterHandler("GET", APIPrefix+"/medicines/:id", false, false, sr.GetMedicineHandler)
	sr.RegisterHandler("PUT", APIPrefix+"/medicines/:id", false, true, sr.UpdateMedicineHandler)
	sr.RegisterHandler("DELETE", APIPrefix+"/medicines/:id", false, true, sr.DeleteMedicineHandler)

	// Orders
	sr.RegisterHandler("POST", APIPrefix+"/orders", true, true, sr.CreateOrderHandler)
	sr.RegisterHandler("GET", APIPrefix+"/orders", true, false, sr.ListOrdersHandler)
	sr.RegisterHandler("GET", APIPrefix+"/orders/my-orders", true, true, sr.MyOrdersHandler)
	sr.RegisterHandler("POST", APIPrefix+"/orders/emergency", true, true, sr.EmergencyOrderHandler)
	sr.RegisterHandler("GET", APIPrefix+"/orders/:id", false, false, sr.GetOrderHandler)
	sr.RegisterHandler("PUT", APIPrefix+"/orders/:id/status", false, true, sr.UpdateOrderStatusHandler)
	sr.RegisterHandler("PUT", APIPrefix+"/orders/:id/complete", false, true, sr.CompleteOrderHandler)

	// Payments
	sr.RegisterHandler("POST", APIPrefix+"/orders/payment", true, true, sr.CreatePaymentHandler)
	sr.RegisterHandler("POST", APIPrefix+"/orders/payment/verify", true, false, sr.VerifyPaymentHandler)
	sr.RegisterHandler("POST", APIPrefix+"/orders/razorpay-webhook", true, false, sr.WebhookHandler)

	// Ledger
	sr.RegisterHandler("POST", APIPrefix+"/ledger/inventory", true, true, sr.CommitInventoryHandler)
	sr.RegisterHandler("GET", APIPrefix+"/ledger/inventory/:walletAddress", false, false, sr.GetInventoryCommitmentHandler)
	sr.RegisterHandler("GET", APIPrefix+"/ledger/orders/count", true, true, sr.LedgerOrderCountHandler)
	sr.RegisterHandler("GET", APIPrefix+"/ledger/orders/:orderId", false, false, sr.GetLedgerOrderHandler)
}
