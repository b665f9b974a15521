package srvreg

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// requestSchema pairs a JSON schema with the message returned when a body fails it
type requestSchema struct {
	schema  *gojsonschema.Schema
	message string
}

func mustSchema(message, source string) requestSchema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic("invalid request schema: " + err.Error())
	}
	return requestSchema{schema: schema, message: message}
}

const (
	latitudeSchema  = `{"type": "number", "minimum": -90, "maximum": 90}`
	longitudeSchema = `{"type": "number", "minimum": -180, "maximum": 180}`
	nonEmptyString  = `{"type": "string", "minLength": 1}`
)

var (
	loginSchema = mustSchema("Please provide email and password", `{
		"type": "object",
		"required": ["email", "password"],
		"properties": {
			"email": `+nonEmptyString+`,
			"password": `+nonEmptyString+`
		}
	}`)

	registerSchema = mustSchema("Please provide all required fields", `{
		"type": "object",
		"required": ["name", "email", "password", "walletAddress", "latitude", "longitude"],
		"properties": {
			"name": `+nonEmptyString+`,
			"email": `+nonEmptyString+`,
			"password": `+nonEmptyString+`,
			"walletAddress": `+nonEmptyString+`,
			"latitude": `+latitudeSchema+`,
			"longitude": `+longitudeSchema+`
		}
	}`)

	profileUpdateSchema = mustSchema("Please provide valid profile fields", `{
		"type": "object",
		"properties": {
			"name": `+nonEmptyString+`,
			"email": `+nonEmptyString+`,
			"latitude": `+latitudeSchema+`,
			"longitude": `+longitudeSchema+`
		}
	}`)

	medicineCreateSchema = mustSchema("Please provide all required fields", `{
		"type": "object",
		"required": ["name", "quantity", "expiry"],
		"properties": {
			"name": `+nonEmptyString+`,
			"quantity": {"type": "integer", "minimum": 1},
			"expiry": `+nonEmptyString+`,
			"priority": {"type": "boolean"}
		}
	}`)

	medicineUpdateSchema = mustSchema("Please provide valid medicine fields", `{
		"type": "object",
		"properties": {
			"name": `+nonEmptyString+`,
			"quantity": {"type": "integer", "minimum": 0},
			"expiry": `+nonEmptyString+`,
			"priority": {"type": "boolean"}
		}
	}`)

	searchSchema = mustSchema("Please provide medicine name and quantity", `{
		"type": "object",
		"required": ["name", "quantity"],
		"properties": {
			"name": `+nonEmptyString+`,
			"quantity": {"type": "integer", "minimum": 1},
			"maxDistance": {"type": "number", "minimum": 0}
		}
	}`)

	orderCreateSchema = mustSchema("Please provide all required fields", `{
		"type": "object",
		"required": ["medicineName", "quantity", "toHospitalId"],
		"properties": {
			"medicineName": `+nonEmptyString+`,
			"quantity": {"type": "integer", "minimum": 1},
			"toHospitalId": `+nonEmptyString+`,
			"emergency": {"type": "boolean"}
		}
	}`)

	statusUpdateSchema = mustSchema("Invalid status", `{
		"type": "object",
		"required": ["status"],
		"properties": {
			"status": {"type": "string", "enum": ["pending", "completed", "cancelled"]}
		}
	}`)

	completeOrderSchema = mustSchema("Please provide transaction hash", `{
		"type": "object",
		"required": ["transactionHash"],
		"properties": {
			"transactionHash": `+nonEmptyString+`,
			"nftCertificateId": {"type": "string"}
		}
	}`)

	paymentCreateSchema = mustSchema("Please provide orderId and amount", `{
		"type": "object",
		"required": ["orderId", "amount"],
		"properties": {
			"orderId": `+nonEmptyString+`,
			"amount": {"type": "number", "minimum": 0.01},
			"currency": {"type": "string", "minLength": 3, "maxLength": 3}
		}
	}`)

	paymentVerifySchema = mustSchema("Please provide all required fields", `{
		"type": "object",
		"required": ["orderId", "razorpayPaymentId", "razorpaySignature"],
		"properties": {
			"orderId": `+nonEmptyString+`,
			"razorpayPaymentId": `+nonEmptyString+`,
			"razorpaySignature": `+nonEmptyString+`
		}
	}`)
)

// decodeBody validates the JSON body against rs and decodes it into out
func decodeBody(req *Request, rs requestSchema, out interface{}) error {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		body = "{}"
	}
	if !json.Valid([]byte(body)) {
		return BadRequest("Invalid JSON body")
	}

	result, err := rs.schema.Validate(gojsonschema.NewStringLoader(body))
	if err != nil {
		return BadRequest("Invalid JSON body")
	}
	if !result.Valid() {
		return BadRequest(rs.message)
	}

	if err := json.Unmarshal([]byte(body), out); err != nil {
		return BadRequest(rs.message)
	}
	return nil
}

// parseExpiry accepts RFC 3339 timestamps and plain dates
func parseExpiry(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, BadRequest("Invalid expiry date")
	}
	return t.UTC(), nil
}
