package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	config "github.com/powerca/backoffice/configs"
	"github.com/powerca/backoffice/database"
	"github.com/powerca/backoffice/invoices"
	"github.com/powerca/backoffice/middleware"
	"github.com/powerca/backoffice/models"
	"github.com/powerca/backoffice/payments"
	"github.com/powerca/backoffice/services"
	"github.com/powerca/backoffice/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	jwtSecret     = "handler-test-jwt"
	gatewaySecret = "handler-test-gateway"
)

type testEnv struct {
	app     *fiber.App
	handler *Handler
	store   *database.Store
}

func setupEnv(t *testing.T, appEnv string) *testEnv {
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	store := database.NewStore(db)
	settings := &config.Settings{AppEnv: appEnv, JWTSecret: jwtSecret, RazorpayKeySecret: gatewaySecret, SellerStateCode: "33"}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	verification := services.NewVerificationService(services.VerificationDeps{
		Store:     store,
		Verifier:  payments.NewVerifier(settings.RazorpayKeySecret, settings.IsProduction()),
		Composer:  invoices.NewComposer(invoices.NewNumberer(nil), settings.GSTExempt, settings.SellerStateCode),
		Referrals: services.NewReferralService(store, quiet, nil),
		Logger:    quiet,
	})

	h := New(Handler{
		Settings:     settings,
		Store:        store,
		Verification: verification,
		Razorpay:     payments.NewRazorpayClient("", "", ""),
		Logger:       quiet,
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/api/payment/verify", middleware.OptionalSession(jwtSecret), h.VerifyPayment)
	app.Post("/api/payment/create-order", h.CreateOrder)
	app.Post("/api/auth/register", h.RegisterUser)
	app.Post("/api/auth/login", h.LoginUser)
	app.Post("/api/demo/book", h.BookDemo)
	app.Get("/api/profile", middleware.Protected(jwtSecret), h.GetProfile)
	app.Put("/api/profile", middleware.Protected(jwtSecret), h.UpdateProfile)
	app.Post("/api/activity", middleware.Protected(jwtSecret), h.TrackActivity)
	admin := app.Group("/api/admin", middleware.Protected(jwtSecret), middleware.AdminRequired())
	admin.Get("/payments", h.AdminGetPayments)
	admin.Get("/payments/export", h.AdminExportPayments)
	admin.Get("/demo-bookings", h.AdminGetDemoBookings)
	admin.Get("/affiliates", h.AdminListAffiliates)
	admin.Post("/affiliates", h.AdminCreateAffiliate)
	admin.Get("/affiliates/:id/referrals", h.AdminGetAffiliateReferrals)

	return &testEnv{app: app, handler: h, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) (*http.Response, map[string]interface{}) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]interface{}
	_ = json.Unmarshal(raw, &decoded)
	return resp, decoded
}

func (e *testEnv) tokenFor(t *testing.T, role string) string {
	user := &models.User{FullName: "Staff " + role, Email: role + "@powerca.in", Password: "x", Role: role}
	require.NoError(t, e.store.CreateUser(t.Context(), user))
	token, err := middleware.IssueToken(jwtSecret, user, time.Hour)
	require.NoError(t, err)
	return token
}

func errorKind(body map[string]interface{}) string {
	errBody, _ := body["error"].(map[string]interface{})
	kind, _ := errBody["kind"].(string)
	return kind
}

func TestVerifyPayment_RazorpayFieldNames(t *testing.T) {
	env := setupEnv(t, "production")

	resp, body := env.do(t, "POST", "/api/payment/verify", map[string]interface{}{
		"razorpay_order_id":   "order_1",
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  payments.ExpectedSignature("order_1", "pay_1", gatewaySecret),
		"customerDetails":     map[string]string{"email": "a@b.com", "name": "A B"},
		"productDetails":      map[string]interface{}{"name": "Annual", "amount": 1000},
	}, "")

	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "order_1", data["orderId"])
	assert.Equal(t, "pay_1", data["paymentId"])
	assert.Equal(t, "INR", data["currency"])
	assert.Equal(t, 1180.0, data["amount"])
	assert.NotEmpty(t, data["invoiceNumber"])
}

func TestVerifyPayment_Errors(t *testing.T) {
	env := setupEnv(t, "production")

	resp, body := env.do(t, "POST", "/api/payment/verify", map[string]interface{}{
		"orderId": "order_1", "paymentId": "pay_1", "signature": "deadbeef",
	}, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PAYMENT", errorKind(body))
	assert.Equal(t, false, body["success"])

	resp, body = env.do(t, "POST", "/api/payment/verify", `{"orderId":`, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", errorKind(body))

	resp, body = env.do(t, "POST", "/api/payment/verify", map[string]interface{}{
		"orderId": "order_1", "paymentId": "pay_1", "signature": "x",
		"customerDetails": map[string]string{"email": "not-an-email"},
	}, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", errorKind(body))

	env.handler.Verification.Verifier = payments.NewVerifier("", true)
	resp, body = env.do(t, "POST", "/api/payment/verify", map[string]interface{}{
		"orderId": "order_1", "paymentId": "pay_1", "signature": "x",
	}, "")
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "CONFIGURATION", errorKind(body))
}

func TestVerifyPayment_SessionFallback(t *testing.T) {
	env := setupEnv(t, "development")
	token := env.tokenFor(t, models.RoleCustomer)

	resp, _ := env.do(t, "POST", "/api/payment/verify", map[string]interface{}{
		"orderId": "order_s", "paymentId": "pay_s", "isTestPayment": true,
		"productDetails": map[string]interface{}{"amount": 500},
	}, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payment, err := env.store.FindPaymentByPaymentID(t.Context(), "pay_s")
	require.NoError(t, err)
	assert.Equal(t, "customer@powerca.in", payment.Email)
	assert.NotNil(t, payment.UserID)
	assert.True(t, payment.IsTest)
}

func TestCanonical_PrefersGenericNames(t *testing.T) {
	req := VerifyPaymentRequest{
		OrderID:           "order_generic",
		RazorpayOrderID:   "order_native",
		RazorpayPaymentID: "pay_native",
		RazorpaySignature: "sig_native",
		AffiliateCode:     " ref123 ",
		CustomerDetails:   &customerDetails{GST: "27aaaaa0000a1z5"},
	}.Canonical()

	assert.Equal(t, "order_generic", req.OrderID)
	assert.Equal(t, "pay_native", req.PaymentID)
	assert.Equal(t, "sig_native", req.Signature)
	assert.Equal(t, "REF123", req.AffiliateCode)
	assert.Equal(t, "27AAAAA0000A1Z5", req.Customer.GST)
	assert.Nil(t, req.Product)
}

func TestCreateOrder(t *testing.T) {
	t.Run("local order outside production", func(t *testing.T) {
		env := setupEnv(t, "development")
		resp, body := env.do(t, "POST", "/api/payment/create-order", map[string]interface{}{
			"planId": "annual", "amount": 1000,
		}, "")
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)

		data := body["data"].(map[string]interface{})
		orderID := data["orderId"].(string)
		assert.Contains(t, orderID, "order_test_")
		assert.Equal(t, 1180.0, data["amount"])
		assert.Equal(t, 118000.0, data["amountPaise"])

		order, err := env.store.FindOrder(t.Context(), orderID)
		require.NoError(t, err)
		assert.Equal(t, 1000.0, order.Amount)
		assert.Equal(t, "annual", order.PlanID)
	})

	t.Run("production without gateway keys", func(t *testing.T) {
		env := setupEnv(t, "production")
		resp, body := env.do(t, "POST", "/api/payment/create-order", map[string]interface{}{
			"planId": "annual", "amount": 1000,
		}, "")
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "CONFIGURATION", errorKind(body))
	})

	t.Run("invalid amount", func(t *testing.T) {
		env := setupEnv(t, "development")
		resp, body := env.do(t, "POST", "/api/payment/create-order", map[string]interface{}{"planId": "annual"}, "")
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "VALIDATION", errorKind(body))
	})
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupEnv(t, "development")
	register := map[string]interface{}{
		"full_name": "Asha Rao", "email": "Asha@Firm.in", "password": "sup3r-secret", "phone": "9876543210",
	}

	resp, body := env.do(t, "POST", "/api/auth/register", register, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	data := body["data"].(map[string]interface{})
	assert.NotEmpty(t, data["token"])
	user := data["user"].(map[string]interface{})
	assert.Equal(t, "asha@firm.in", user["email"])
	assert.NotEmpty(t, user["trial_ends_at"])

	resp, body = env.do(t, "POST", "/api/auth/register", register, "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", errorKind(body))

	resp, body = env.do(t, "POST", "/api/auth/login", map[string]string{"email": "asha@firm.in", "password": "sup3r-secret"}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	token := body["data"].(map[string]interface{})["token"].(string)

	resp, body = env.do(t, "GET", "/api/profile", nil, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Asha Rao", body["data"].(map[string]interface{})["full_name"])

	resp, body = env.do(t, "PUT", "/api/profile", map[string]string{"city": "Chennai"}, token)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)

	resp, _ = env.do(t, "POST", "/api/activity", map[string]interface{}{"activity": "opened_dashboard"}, token)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	resp, body = env.do(t, "POST", "/api/auth/login", map[string]string{"email": "asha@firm.in", "password": "wrong-password"}, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "AUTHENTICATION", errorKind(body))
}

func TestBookDemo(t *testing.T) {
	env := setupEnv(t, "development")

	resp, body := env.do(t, "POST", "/api/demo/book", map[string]interface{}{
		"name": "Ravi", "email": "ravi@firm.in", "scheduled_at": time.Now().Add(-time.Hour),
	}, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION", errorKind(body))

	resp, body = env.do(t, "POST", "/api/demo/book", map[string]interface{}{
		"name": "Ravi", "email": "ravi@firm.in", "scheduled_at": time.Now().Add(48 * time.Hour), "firm_size": "10-50",
	}, "")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)

	admin := env.tokenFor(t, models.RoleAdmin)
	resp, body = env.do(t, "GET", "/api/admin/demo-bookings", nil, admin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)
}

func TestAdminAffiliates(t *testing.T) {
	env := setupEnv(t, "development")
	admin := env.tokenFor(t, models.RoleAdmin)
	customer := env.tokenFor(t, models.RoleCustomer)

	resp, _ := env.do(t, "GET", "/api/admin/affiliates", nil, customer)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := env.do(t, "POST", "/api/admin/affiliates", map[string]string{"name": "Partner CA", "email": "partner@ca.in"}, admin)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	profile := body["data"].(map[string]interface{})
	code := profile["referral_code"].(string)
	assert.Len(t, code, 8)
	assert.Equal(t, "AFF-"+code, profile["affiliate_id"])

	resp, body = env.do(t, "POST", "/api/admin/affiliates", map[string]string{"name": "Dup", "email": "dup@ca.in", "referral_code": code}, admin)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", errorKind(body))

	resp, body = env.do(t, "POST", "/api/payment/verify", map[string]interface{}{
		"orderId": "order_r", "paymentId": "pay_r",
		"signature":       payments.ExpectedSignature("order_r", "pay_r", gatewaySecret),
		"customerDetails": map[string]string{"email": "client@firm.in", "name": "Client"},
		"productDetails":  map[string]interface{}{"amount": 2000},
		"affiliateCode":   code,
	}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)

	resp, body = env.do(t, "GET", "/api/admin/affiliates/"+profile["id"].(string)+"/referrals", nil, admin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Len(t, data["referrals"], 1)
	assert.Len(t, data["payment_referrals"], 1)

	resp, body = env.do(t, "GET", "/api/admin/affiliates/not-a-uuid/referrals", nil, admin)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, "GET", "/api/admin/affiliates/"+uuid.NewString()+"/referrals", nil, admin)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAdminPaymentsAndExport(t *testing.T) {
	env := setupEnv(t, "production")
	admin := env.tokenFor(t, models.RoleAdmin)

	resp, body := env.do(t, "POST", "/api/payment/verify", map[string]interface{}{
		"orderId": "order_x", "paymentId": "pay_x",
		"signature":      payments.ExpectedSignature("order_x", "pay_x", gatewaySecret),
		"productDetails": map[string]interface{}{"amount": 1000},
	}, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	invoiceNumber := body["data"].(map[string]interface{})["invoiceNumber"].(string)

	resp, body = env.do(t, "GET", "/api/admin/payments?page=1&limit=10", nil, admin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	rows := body["data"].([]interface{})
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, "pay_x", row["payment_id"])
	assert.Equal(t, invoiceNumber, row["invoice"].(map[string]interface{})["invoice_number"])
	assert.Equal(t, 1.0, body["meta"].(map[string]interface{})["total"])

	req := httptest.NewRequest("GET", "/api/admin/payments/export", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	exportResp, err := env.app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, exportResp.StatusCode)
	assert.Contains(t, exportResp.Header.Get("Content-Type"), "spreadsheetml")

	f, err := excelize.OpenReader(exportResp.Body)
	require.NoError(t, err)
	defer f.Close()
	header, err := f.GetCellValue("Payments", "B1")
	require.NoError(t, err)
	assert.Equal(t, "Order ID", header)
	number, err := f.GetCellValue("Payments", "M2")
	require.NoError(t, err)
	assert.Equal(t, invoiceNumber, number)
}

func TestStatusFor(t *testing.T) {
	cases := map[utils.ErrorKind]int{
		utils.KindValidation:     400,
		utils.KindPayment:        400,
		utils.KindConfiguration:  500,
		utils.KindAuthentication: 401,
		utils.KindAuthorization:  403,
		utils.KindNotFound:       404,
		utils.KindConflict:       409,
		utils.KindInternal:       500,
		utils.ErrorKind("OTHER"): 500,
	}
	for kind, status := range cases {
		assert.Equal(t, status, StatusFor(kind), kind)
	}
}
