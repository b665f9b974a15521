package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ahmadzakiakmal/medichain/repository"
	"github.com/ahmadzakiakmal/medichain/repository/models"
)

const apiPrefix = "/api"

// APIError is a non-2xx answer from the API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("medichain api: %d %s", e.StatusCode, e.Message)
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Results *int            `json:"results"`
	Data    json.RawMessage `json:"data"`
}

// Session is the result of a login or registration
type Session struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Email         string   `json:"email"`
	WalletAddress string   `json:"walletAddress"`
	Reputation    int      `json:"reputation"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	Token         string   `json:"token"`
}

type Registration struct {
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Password      string  `json:"password"`
	WalletAddress string  `json:"walletAddress"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

type NewMedicine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Expiry   string `json:"expiry"`
	Priority bool   `json:"priority"`
}

type Search struct {
	Name        string   `json:"name"`
	Quantity    int      `json:"quantity"`
	MaxDistance *float64 `json:"maxDistance,omitempty"`
}

type NewOrder struct {
	MedicineName string `json:"medicineName"`
	Quantity     int    `json:"quantity"`
	ToHospitalID string `json:"toHospitalId"`
	Emergency    bool   `json:"emergency"`
}

// decode checks the status code and unpacks the data of the success envelope
func decode(resp *Response, wantStatus int, out interface{}) error {
	var env envelope
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
		}
	}
	if resp.StatusCode != wantStatus {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (c *HTTPClient) Register(reg Registration) (*Session, error) {
	resp, err := c.POST(apiPrefix+"/auth/register", reg, nil)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := decode(resp, http.StatusCreated, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) Login(email, password string) (*Session, error) {
	resp, err := c.POST(apiPrefix+"/auth/login", map[string]string{"email": email, "password": password}, nil)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := decode(resp, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) GetHospital(id string) (*models.Hospital, error) {
	resp, err := c.GET(apiPrefix+"/hospitals/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var h models.Hospital
	if err := decode(resp, http.StatusOK, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *HTTPClient) NearbyHospitals(lat, lon, distanceKm float64) ([]repository.NearbyHospital, error) {
	resp, err := c.GET(fmt.Sprintf("%s/hospitals/nearby/%g/%g/%g", apiPrefix, lat, lon, distanceKm), nil)
	if err != nil {
		return nil, err
	}
	var hospitals []repository.NearbyHospital
	if err := decode(resp, http.StatusOK, &hospitals); err != nil {
		return nil, err
	}
	return hospitals, nil
}

func (c *HTTPClient) CreateMedicine(m NewMedicine) (*models.Medicine, error) {
	resp, err := c.POST(apiPrefix+"/medicines", m, nil)
	if err != nil {
		return nil, err
	}
	var out models.Medicine
	if err := decode(resp, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SearchMedicines(s Search) ([]repository.MedicineMatch, error) {
	resp, err := c.POST(apiPrefix+"/medicines/search", s, nil)
	if err != nil {
		return nil, err
	}
	var matches []repository.MedicineMatch
	if err := decode(resp, http.StatusOK, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (c *HTTPClient) CreateOrder(o NewOrder) (*models.Order, error) {
	resp, err := c.POST(apiPrefix+"/orders", o, nil)
	if err != nil {
		return nil, err
	}
	var out models.Order
	if err := decode(resp, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) MyOrders() ([]models.Order, error) {
	resp, err := c.GET(apiPrefix+"/orders/my-orders", nil)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	if err := decode(resp, http.StatusOK, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *HTTPClient) UpdateOrderStatus(orderID, status string) (*models.Order, error) {
	resp, err := c.PUT(apiPrefix+"/orders/"+url.PathEscape(orderID)+"/status", map[string]string{"status": status}, nil)
	if err != nil {
		return nil, err
	}
	var out models.Order
	if err := decode(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteOrder reports the on-chain transfer of an order
func (c *HTTPClient) CompleteOrder(orderID, transactionHash string) (*models.Order, error) {
	resp, err := c.PUT(apiPrefix+"/orders/"+url.PathEscape(orderID)+"/complete", map[string]string{"transactionHash": transactionHash}, nil)
	if err != nil {
		return nil, err
	}
	var out models.Order
	if err := decode(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
