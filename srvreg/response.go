package srvreg

import (
	"encoding/json"
	"net/http"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type envelope struct {
	Status  string      `json:"status"`
	Results *int        `json:"results,omitempty"`
	Data    interface{} `json:"data"`
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func jsonResponse(statusCode int, v interface{}) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, Internal("Failed to encode response", err)
	}
	return &Response{
		StatusCode: statusCode,
		Headers:    jsonHeaders(),
		Body:       string(body),
	}, nil
}

func success(statusCode int, data interface{}) (*Response, error) {
	return jsonResponse(statusCode, envelope{Status: statusSuccess, Data: data})
}

func list(data interface{}, n int) (*Response, error) {
	return jsonResponse(http.StatusOK, envelope{Status: statusSuccess, Results: &n, Data: data})
}

func noContent() (*Response, error) {
	return &Response{StatusCode: http.StatusNoContent, Headers: map[string]string{}}, nil
}

func errorEnvelope(statusCode int, message string) *Response {
	body, _ := json.Marshal(errorBody{Status: statusError, Message: message})
	return &Response{
		StatusCode: statusCode,
		Headers:    jsonHeaders(),
		Body:       string(body),
	}
}
