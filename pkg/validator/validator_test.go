package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineItem struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=1000"`
}

type orderRequest struct {
	Items         []lineItem `json:"items" validate:"required,min=1,dive"`
	Address       string     `json:"shipping_address" validate:"notblank,max=500"`
	PaymentMethod string     `json:"payment_method" validate:"required,oneof=card bank_transfer wallet"`
	Currency      string     `json:"currency" validate:"omitempty,iso4217"`
}

func validOrder() orderRequest {
	return orderRequest{
		Items:         []lineItem{{ProductID: "3f2b8c1e-8a44-4b7e-9a57-0d3c1f2e4a11", Quantity: 2}},
		Address:       "Atatürk Cd. 12, İzmir",
		PaymentMethod: "card",
		Currency:      "TRY",
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	require.Error(t, err)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	return valErr.Fields()
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(validOrder()))
}

func TestValidate_JSONFieldNames(t *testing.T) {
	req := validOrder()
	req.PaymentMethod = "cash"
	req.Address = "   "

	fields := fieldsOf(t, Validate(req))
	assert.Equal(t, "must be one of: card bank_transfer wallet", fields["payment_method"])
	assert.Equal(t, "is required", fields["shipping_address"])
}

func TestValidate_NestedItems(t *testing.T) {
	req := validOrder()
	req.Items = append(req.Items, lineItem{ProductID: "nope", Quantity: 0})

	fields := fieldsOf(t, Validate(req))
	assert.Equal(t, "must be a valid UUID", fields["items[1].product_id"])
	assert.Equal(t, "must be greater than or equal to 1", fields["items[1].quantity"])
}

func TestValidate_EmptyItems(t *testing.T) {
	req := validOrder()
	req.Items = []lineItem{}

	fields := fieldsOf(t, Validate(req))
	assert.Equal(t, "must contain at least 1 item(s)", fields["items"])
}

func TestValidate_Currency(t *testing.T) {
	req := validOrder()
	req.Currency = "XXZ"

	fields := fieldsOf(t, Validate(req))
	assert.Contains(t, fields["currency"], "ISO 4217")
}

func TestValidationError_ErrorString(t *testing.T) {
	req := validOrder()
	req.PaymentMethod = ""

	err := Validate(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'payment_method' is required")
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
		isValid bool
	}{
		{
			name:    "valid",
			body:    `{"items":[{"product_id":"3f2b8c1e-8a44-4b7e-9a57-0d3c1f2e4a11","quantity":1}],"shipping_address":"x","payment_method":"wallet"}`,
			isValid: true,
		},
		{name: "empty body", body: ``, wantErr: "request body is empty"},
		{name: "malformed", body: `{"items":`, wantErr: "decode request body"},
		{name: "rule violation", body: `{"items":[],"shipping_address":"x","payment_method":"card"}`, wantErr: "field 'items'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(tt.body))
			var dst orderRequest
			err := DecodeAndValidate(httptest.NewRecorder(), r, &dst)
			if tt.isValid {
				require.NoError(t, err)
				assert.Equal(t, "wallet", dst.PaymentMethod)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecodeAndValidate_BodyTooLarge(t *testing.T) {
	body := `{"shipping_address":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))

	var dst orderRequest
	err := DecodeAndValidate(httptest.NewRecorder(), r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}
