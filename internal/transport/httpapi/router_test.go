package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/infra/memory"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/ledger"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/platform/user"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/transport/httpapi"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/transport/httpapi/handler"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/transport/httpapi/middleware"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testAPI struct {
	server    *httptest.Server
	users     *memory.UserStore
	userSvc   *user.Service
	jwtSvc    *middleware.JWTService
	ledgerSvc *ledger.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	log := logger.New("test", io.Discard)

	store := memory.NewStore()
	userStore := memory.NewUserStore()
	userSvc := user.NewService(userStore, log)

	systemID, err := userSvc.EnsureSystemUser(t.Context())
	require.NoError(t, err)

	router := ledger.NewSystemRouter(store, systemID)
	cfg := ledger.DefaultConfig()
	cfg.SweepStaleness = 0
	svc := ledger.NewService(store, router, nil, cfg, log)

	jwtSvc := middleware.NewJWTService(testSecret)

	h := httpapi.NewRouter(httpapi.Config{
		Logger:             log,
		AuthHandler:        handler.NewAuthHandler(userSvc, jwtSvc, log),
		AccountHandler:     handler.NewAccountHandler(svc, log),
		TransactionHandler: handler.NewTransactionHandler(svc, log),
		HealthHandler:      handler.NewHealthHandler(nil, log),
		JWTMiddleware:      middleware.JWTMiddleware(jwtSvc),
		AllowedOrigins:     []string{"*"},
	})

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return &testAPI{
		server:    server,
		users:     userStore,
		userSvc:   userSvc,
		jwtSvc:    jwtSvc,
		ledgerSvc: svc,
	}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

// register creates a user through the API and returns its token.
func (a *testAPI) register(t *testing.T, email string) string {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

// adminToken seeds an admin directly in the store and signs a token for it.
func (a *testAPI) adminToken(t *testing.T) string {
	t.Helper()
	id := uuid.New()
	admin := &user.User{
		ID:        id,
		Email:     fmt.Sprintf("admin-%s@example.com", id.String()[:8]),
		Role:      user.RoleAdmin,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, admin.SetPassword("admin-pass-123"))
	require.NoError(t, a.users.Create(t.Context(), admin))

	token, err := a.jwtSvc.GenerateToken(admin.ID, admin.Email, string(admin.Role))
	require.NoError(t, err)
	return token
}

func (a *testAPI) openAccount(t *testing.T, token, kind, currency string) string {
	t.Helper()
	resp, body := a.do(t, http.MethodPost, "/api/v1/accounts", token, map[string]any{
		"kind":     kind,
		"currency": currency,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	number, _ := body["account_number"].(string)
	require.NotEmpty(t, number)
	return number
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)

	token := api.register(t, "alice@example.com")
	require.NotEmpty(t, token)

	t.Run("duplicate email rejected", func(t *testing.T) {
		resp, _ := api.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email":    "alice@example.com",
			"password": "another-pass",
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("login succeeds", func(t *testing.T) {
		resp, body := api.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "alice@example.com",
			"password": "s3cret-pass",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, body["token"])
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		resp, _ := api.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email":    "alice@example.com",
			"password": "wrong-password",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("protected route requires token", func(t *testing.T) {
		resp, body := api.do(t, http.MethodGet, "/api/v1/accounts", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "UNAUTHORIZED", body["code"])
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		resp, body := api.do(t, http.MethodGet, "/api/v1/accounts", "not-a-jwt", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "UNAUTHORIZED", body["code"])
	})
}

func TestAccountAndMoneyFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "bob@example.com")
	account := api.openAccount(t, token, "SAVINGS", "USD")

	t.Run("deposit", func(t *testing.T) {
		resp, body := api.do(t, http.MethodPost, "/api/v1/transactions/deposit", token, map[string]any{
			"account_number": account,
			"amount":         "150.00",
			"currency":       "USD",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Equal(t, "COMPLETED", body["status"])
		require.Equal(t, "150.00", body["amount"])
	})

	t.Run("balance reflects deposit", func(t *testing.T) {
		resp, body := api.do(t, http.MethodGet, "/api/v1/accounts/"+account, token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "150.00", body["balance"])
	})

	t.Run("withdrawal over balance rejected", func(t *testing.T) {
		resp, body := api.do(t, http.MethodPost, "/api/v1/transactions/withdraw", token, map[string]any{
			"account_number": account,
			"amount":         "500.00",
			"currency":       "USD",
		})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Equal(t, "INSUFFICIENT_FUNDS", body["code"])
	})

	t.Run("transfer between accounts", func(t *testing.T) {
		other := api.openAccount(t, token, "SAVINGS", "USD")
		resp, body := api.do(t, http.MethodPost, "/api/v1/transactions/transfer", token, map[string]any{
			"from_account": account,
			"to_account":   other,
			"amount":       "40.00",
			"currency":     "USD",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Equal(t, "COMPLETED", body["status"])

		_, got := api.do(t, http.MethodGet, "/api/v1/accounts/"+other, token, nil)
		require.Equal(t, "40.00", got["balance"])
	})

	t.Run("stranger cannot read the account", func(t *testing.T) {
		stranger := api.register(t, "carol@example.com")
		resp, _ := api.do(t, http.MethodGet, "/api/v1/accounts/"+account, stranger, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("close then deposit rejected", func(t *testing.T) {
		resp, _ := api.do(t, http.MethodPost, "/api/v1/accounts/"+account+"/close", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := api.do(t, http.MethodPost, "/api/v1/transactions/deposit", token, map[string]any{
			"account_number": account,
			"amount":         "5.00",
			"currency":       "USD",
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		require.Equal(t, "INACTIVE_ACCOUNT", body["code"])
	})
}

func TestAsyncAndAdminFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "dave@example.com")
	account := api.openAccount(t, token, "SAVINGS", "USD")

	t.Run("async deposit accepted as pending", func(t *testing.T) {
		resp, body := api.do(t, http.MethodPost, "/api/v1/transactions/deposit", token, map[string]any{
			"account_number": account,
			"amount":         "25.00",
			"currency":       "USD",
			"async":          true,
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.Equal(t, "PENDING", body["status"])

		txID, _ := body["transaction_id"].(string)
		resp, cancelled := api.do(t, http.MethodPost, "/api/v1/transactions/"+txID+"/cancel", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "CANCELLED", cancelled["status"])
	})

	var depositID string
	t.Run("reversal forbidden for non-admin", func(t *testing.T) {
		_, body := api.do(t, http.MethodPost, "/api/v1/transactions/deposit", token, map[string]any{
			"account_number": account,
			"amount":         "60.00",
			"currency":       "USD",
		})
		depositID, _ = body["transaction_id"].(string)
		require.NotEmpty(t, depositID)

		resp, _ := api.do(t, http.MethodPost, "/api/v1/transactions/"+depositID+"/reverse", token, map[string]any{
			"reason": "mistake",
		})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin reverses and charges fees", func(t *testing.T) {
		admin := api.adminToken(t)

		resp, body := api.do(t, http.MethodPost, "/api/v1/transactions/"+depositID+"/reverse", admin, map[string]any{
			"reason": "customer dispute",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Equal(t, "REVERSAL", body["kind"])

		resp, _ = api.do(t, http.MethodPost, "/api/v1/transactions/"+depositID+"/reverse", admin, map[string]any{
			"reason": "again",
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		resp, _ = api.do(t, http.MethodPost, "/api/v1/transactions/fee", token, map[string]any{
			"account_number": account,
			"amount":         "1.00",
			"currency":       "USD",
		})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin sweeps pending transactions", func(t *testing.T) {
		admin := api.adminToken(t)

		resp, _ := api.do(t, http.MethodPost, "/api/v1/transactions/deposit", token, map[string]any{
			"account_number": account,
			"amount":         "7.00",
			"currency":       "USD",
			"async":          true,
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		resp, _ = api.do(t, http.MethodPost, "/api/v1/admin/sweep", token, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, body := api.do(t, http.MethodPost, "/api/v1/admin/sweep", admin, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.EqualValues(t, 1, body["Processed"])
	})

	t.Run("transaction listing", func(t *testing.T) {
		resp, body := api.do(t, http.MethodGet, "/api/v1/transactions?kind=DEPOSIT", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data, _ := body["data"].([]any)
		require.NotEmpty(t, data)
		for _, item := range data {
			tx := item.(map[string]any)
			require.Equal(t, "DEPOSIT", tx["kind"])
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])

	resp, _ = api.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The metrics endpoint serves the Prometheus text format.
	raw, err := api.server.Client().Get(api.server.URL + "/metrics")
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusOK, raw.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := api.register(t, "erin@example.com")
	account := api.openAccount(t, token, "SAVINGS", "USD")

	for i := 0; i < 3; i++ {
		resp, _ := api.do(t, http.MethodPost, "/api/v1/transactions/deposit", token, map[string]any{
			"account_number": account,
			"amount":         fmt.Sprintf("%d.00", (i+1)*10),
			"currency":       "USD",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := api.do(t, http.MethodGet, "/api/v1/transactions/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	summary, _ := body["Summary"].([]any)
	require.Len(t, summary, 1)

	resp, _ = api.do(t, http.MethodGet, "/api/v1/accounts/"+account+"/stats", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
