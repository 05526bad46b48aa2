package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayClient_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "secret", pass)

		var req createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(99900), req.Amount)
		assert.Equal(t, "INR", req.Currency)
		assert.Equal(t, "plan_pro", req.Notes["plan_id"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(RazorpayOrder{ID: "order_abc", Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"})
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL, "rzp_test_key", "secret")
	require.True(t, client.Configured())

	order, err := client.CreateOrder(context.Background(), 99900, "INR", "rcpt_1", map[string]string{"plan_id": "plan_pro"})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, "created", order.Status)
}

func TestRazorpayClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"description":"amount too small"}}`))
	}))
	defer srv.Close()

	_, err := NewRazorpayClient(srv.URL, "k", "s").CreateOrder(context.Background(), 1, "INR", "r", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount too small")

	var nilClient *RazorpayClient
	assert.False(t, nilClient.Configured())
	assert.False(t, NewRazorpayClient(srv.URL, "", "").Configured())
}
