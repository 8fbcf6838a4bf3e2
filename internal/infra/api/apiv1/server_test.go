//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tw-license-service/internal/config"
	"tw-license-service/internal/domain/model"
	"tw-license-service/internal/infra/api"
	apiv1 "tw-license-service/internal/infra/api/apiv1"
	"tw-license-service/internal/infra/db/memory"
	"tw-license-service/internal/infra/ratelimit"
	"tw-license-service/internal/usecase"
)

const (
	testSecret  = "test-secret"
	scenarioKey = "TW-AAAA-BBBB-CCCC-DDDD"
)

//
// -------------------- test helpers --------------------
//

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

type testEnv struct {
	store  *memory.Store
	auth   *api.AuthManager
	router chi.Router
}

func newEnv(t *testing.T, policies map[usecase.Operation]usecase.RatePolicy) *testEnv {
	t.Helper()
	return newEnvWithServer(t, policies, config.ServerConfig{RequestTimeout: 5 * time.Second})
}

func newEnvWithServer(t *testing.T, policies map[usecase.Operation]usecase.RatePolicy, cfg config.ServerConfig) *testEnv {
	t.Helper()
	log := newLogger()
	store := memory.NewStore()
	settings := usecase.LicenseSettings{StoreTimeout: time.Second, KeyRetryLimit: 5, DefaultActivationLimit: 2}
	auth := api.NewAuthManager(testSecret, "tw-test", time.Hour)

	srv := apiv1.NewServer(
		usecase.NewActivationUseCase(store, store, store, nil, settings, log),
		usecase.NewValidationUseCase(store, store, nil, settings, log),
		usecase.NewIssuanceUseCase(store, store, nil, nil, settings, log),
		usecase.NewRateGuard(ratelimit.NewMemoryLimiter(), policies, time.Second, log),
		auth,
		log,
	)
	router := api.NewRouter(cfg, log, func(r chi.Router) {
		apiv1.RegisterAPIV1(r, srv)
	})
	return &testEnv{store: store, auth: auth, router: router}
}

func defaultPolicies() map[usecase.Operation]usecase.RatePolicy {
	return map[usecase.Operation]usecase.RatePolicy{
		usecase.OpActivate: {Limit: 100, Window: time.Hour},
		usecase.OpValidate: {Limit: 100, Window: time.Minute},
		usecase.OpList:     {Limit: 100, Window: time.Minute},
	}
}

func (e *testEnv) seed(t *testing.T, key, owner string, limit int) {
	t.Helper()
	now := time.Now()
	err := e.store.Create(context.Background(), nil, &model.License{
		ID: key + "-id", Key: key, OwnerID: owner, ProductID: "tw-mac",
		Status: model.LicenseStatusActive, ActivationLimit: limit, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (e *testEnv) token(t *testing.T, subject string, role api.Role) string {
	t.Helper()
	tok, err := e.auth.Mint(subject, role)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return e.doWithHeaders(t, method, path, token, body, nil)
}

func (e *testEnv) doWithHeaders(t *testing.T, method, path, token string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func activateBody(deviceID string) map[string]string {
	return map[string]string{"license_key": scenarioKey, "device_id": deviceID, "device_name": "Work laptop"}
}

//
// -------------------- tests --------------------
//

func TestActivate_Scenario(t *testing.T) {
	e := newEnv(t, defaultPolicies())
	e.seed(t, scenarioKey, "owner-1", 1)
	admin := e.token(t, "ops", api.RoleAdmin)

	rec, body := e.do(t, http.MethodPost, "/api/v1/licenses/activate", "", activateBody("dev-0001"))
	if rec.Code != http.StatusOK || body["status"] != "success" {
		t.Fatalf("want 200 success, got %d %v", rec.Code, body)
	}
	if body["remaining_activations"] != float64(0) {
		t.Errorf("want remaining 0, got %v", body["remaining_activations"])
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" || rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Errorf("missing rate limit headers: %v", rec.Header())
	}
	lic, _ := body["license"].(map[string]any)
	if _, leaked := lic["owner_id"]; leaked {
		t.Error("client view must not expose the owner")
	}

	rec, body = e.do(t, http.MethodPost, "/api/v1/licenses/activate", "", activateBody("dev-0002"))
	if rec.Code != http.StatusForbidden || body["code"] != "ACTIVATION_LIMIT_REACHED" {
		t.Fatalf("want 403 limit, got %d %v", rec.Code, body)
	}
	if body["remaining_slots"] != float64(0) || body["status"] != "error" {
		t.Errorf("unexpected error body %v", body)
	}

	rec, _ = e.do(t, http.MethodDelete, "/api/v1/admin/licenses/"+scenarioKey+"/devices/dev-0001", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin revoke: %d", rec.Code)
	}

	rec, body = e.do(t, http.MethodPost, "/api/v1/licenses/activate", "", activateBody("dev-0002"))
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200 after revoke, got %d %v", rec.Code, body)
	}
}

func TestValidate(t *testing.T) {
	t.Run("should validate an activated device", func(t *testing.T) {
		e := newEnv(t, defaultPolicies())
		e.seed(t, scenarioKey, "owner-1", 2)
		e.do(t, http.MethodPost, "/api/v1/licenses/activate", "", activateBody("dev-0001"))

		rec, body := e.do(t, http.MethodPost, "/api/v1/licenses/validate", "",
			map[string]string{"license_key": strings.ToLower(scenarioKey), "device_id": "dev-0001"})
		if rec.Code != http.StatusOK || body["valid"] != true {
			t.Fatalf("want valid, got %d %v", rec.Code, body)
		}
	})

	t.Run("should reject malformed input before the store", func(t *testing.T) {
		e := newEnv(t, defaultPolicies())
		e.store.FailWith(errors.New("must not be reached"))
		cases := []map[string]string{
			{"license_key": "TW-AAAA", "device_id": "dev-0001"},
			{"license_key": scenarioKey, "device_id": "short"},
			{"license_key": scenarioKey, "device_id": "bad id with spaces"},
			{"device_id": "dev-0001"},
		}
		for _, c := range cases {
			rec, body := e.do(t, http.MethodPost, "/api/v1/licenses/validate", "", c)
			if rec.Code != http.StatusBadRequest || body["code"] != "INVALID_FORMAT" {
				t.Errorf("%v: want 400 INVALID_FORMAT, got %d %v", c, rec.Code, body)
			}
		}
	})

	t.Run("should report unknown licenses and devices", func(t *testing.T) {
		e := newEnv(t, defaultPolicies())
		e.seed(t, scenarioKey, "owner-1", 2)
		_, body := e.do(t, http.MethodPost, "/api/v1/licenses/validate", "",
			map[string]string{"license_key": "TW-ZZZZ-ZZZZ-ZZZZ-ZZZZ", "device_id": "dev-0001"})
		if body["code"] != "LICENSE_NOT_FOUND" {
			t.Errorf("want LICENSE_NOT_FOUND, got %v", body)
		}
		rec, body := e.do(t, http.MethodPost, "/api/v1/licenses/validate", "",
			map[string]string{"license_key": scenarioKey, "device_id": "dev-0001"})
		if rec.Code != http.StatusNotFound || body["code"] != "DEVICE_NOT_FOUND" {
			t.Errorf("want 404 DEVICE_NOT_FOUND, got %d %v", rec.Code, body)
		}
	})

	t.Run("should hide store failures", func(t *testing.T) {
		e := newEnv(t, defaultPolicies())
		e.store.FailWith(errors.New("pq: connection reset by peer"))
		rec, body := e.do(t, http.MethodPost, "/api/v1/licenses/validate", "",
			map[string]string{"license_key": scenarioKey, "device_id": "dev-0001"})
		if rec.Code != http.StatusServiceUnavailable || body["code"] != "STORE_UNAVAILABLE" {
			t.Fatalf("want 503, got %d %v", rec.Code, body)
		}
		if strings.Contains(rec.Body.String(), "connection reset") {
			t.Error("raw store error leaked to the client")
		}
	})

	t.Run("should deny over the limit with retry information", func(t *testing.T) {
		e := newEnv(t, map[usecase.Operation]usecase.RatePolicy{
			usecase.OpValidate: {Limit: 2, Window: time.Minute},
		})
		req := map[string]string{"license_key": scenarioKey, "device_id": "dev-0001"}
		e.do(t, http.MethodPost, "/api/v1/licenses/validate", "", req)
		e.do(t, http.MethodPost, "/api/v1/licenses/validate", "", req)
		rec, body := e.do(t, http.MethodPost, "/api/v1/licenses/validate", "", req)
		if rec.Code != http.StatusTooManyRequests || body["code"] != "RATE_LIMITED" {
			t.Fatalf("want 429, got %d %v", rec.Code, body)
		}
		if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
			t.Errorf("missing retry headers: %v", rec.Header())
		}
		if body["reset_at"] == nil {
			t.Error("missing reset_at")
		}
	})
}

func TestOwnerRoutes(t *testing.T) {
	e := newEnv(t, defaultPolicies())
	e.seed(t, scenarioKey, "owner-1", 2)
	e.do(t, http.MethodPost, "/api/v1/licenses/activate", "", activateBody("dev-0001"))
	ownerTok := e.token(t, "owner-1", api.RoleOwner)
	path := "/api/v1/licenses/" + scenarioKey + "/devices"

	t.Run("should require a token", func(t *testing.T) {
		rec, body := e.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized || body["code"] != "UNAUTHORIZED" {
			t.Errorf("want 401, got %d %v", rec.Code, body)
		}
		rec, _ = e.do(t, http.MethodGet, path, "not-a-jwt", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("want 401 for a bad token, got %d", rec.Code)
		}
	})

	t.Run("should reject the wrong role", func(t *testing.T) {
		rec, _ := e.do(t, http.MethodGet, path, e.token(t, "owner-1", api.RoleAdmin), nil)
		if rec.Code != http.StatusForbidden {
			t.Errorf("want 403, got %d", rec.Code)
		}
	})

	t.Run("should list the owner's devices", func(t *testing.T) {
		rec, body := e.do(t, http.MethodGet, path, ownerTok, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d %v", rec.Code, body)
		}
		devices, _ := body["devices"].([]any)
		if len(devices) != 1 {
			t.Errorf("want 1 device, got %v", body["devices"])
		}
	})

	t.Run("should hide other owners' licenses", func(t *testing.T) {
		rec, body := e.do(t, http.MethodGet, path, e.token(t, "owner-2", api.RoleOwner), nil)
		if rec.Code != http.StatusNotFound || body["code"] != "LICENSE_NOT_FOUND" {
			t.Errorf("want 404, got %d %v", rec.Code, body)
		}
	})

	t.Run("should rename and revoke a device", func(t *testing.T) {
		rec, body := e.do(t, http.MethodPatch, path+"/dev-0001", ownerTok, map[string]string{"device_name": "Studio"})
		if rec.Code != http.StatusOK {
			t.Fatalf("rename: %d %v", rec.Code, body)
		}
		dev, _ := body["device"].(map[string]any)
		if dev["device_name"] != "Studio" {
			t.Errorf("want renamed device, got %v", dev)
		}
		rec, _ = e.do(t, http.MethodDelete, path+"/dev-0001", ownerTok, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("revoke: %d", rec.Code)
		}
	})

	t.Run("should list the owner's licenses", func(t *testing.T) {
		rec, body := e.do(t, http.MethodGet, "/api/v1/me/licenses", ownerTok, nil)
		ls, _ := body["licenses"].([]any)
		if rec.Code != http.StatusOK || len(ls) != 1 {
			t.Errorf("want one license, got %d %v", rec.Code, body)
		}
	})
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv(t, defaultPolicies())
	admin := e.token(t, "ops", api.RoleAdmin)

	t.Run("should issue idempotently per order", func(t *testing.T) {
		req := map[string]any{"owner_id": "owner-9", "product_id": "tw-mac", "activation_limit": 3, "order_id": "order-77"}
		rec, body := e.do(t, http.MethodPost, "/api/v1/admin/licenses", admin, req)
		if rec.Code != http.StatusCreated || body["created"] != true {
			t.Fatalf("want 201, got %d %v", rec.Code, body)
		}
		lic, _ := body["license"].(map[string]any)
		key, _ := lic["key"].(string)

		rec, body = e.do(t, http.MethodPost, "/api/v1/admin/licenses", admin, req)
		again, _ := body["license"].(map[string]any)
		if rec.Code != http.StatusOK || body["created"] != false || again["key"] != key {
			t.Errorf("want same license back, got %d %v", rec.Code, body)
		}

		rec, body = e.do(t, http.MethodGet, "/api/v1/admin/licenses/"+key, admin, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get: %d %v", rec.Code, body)
		}

		rec, body = e.do(t, http.MethodPost, "/api/v1/admin/licenses/"+key+"/revoke", admin, nil)
		revoked, _ := body["license"].(map[string]any)
		if rec.Code != http.StatusOK || revoked["status"] != "revoked" {
			t.Errorf("want revoked, got %d %v", rec.Code, body)
		}
	})

	t.Run("should reject an invalid issue request", func(t *testing.T) {
		rec, body := e.do(t, http.MethodPost, "/api/v1/admin/licenses", admin, map[string]any{"product_id": "tw-mac"})
		if rec.Code != http.StatusBadRequest || body["code"] != "INVALID_FORMAT" {
			t.Errorf("want 400, got %d %v", rec.Code, body)
		}
	})

	t.Run("should refuse deactivating an unknown device", func(t *testing.T) {
		e.seed(t, scenarioKey, "owner-1", 1)
		rec, body := e.do(t, http.MethodPost, "/api/v1/admin/licenses/"+scenarioKey+"/devices/dev-0009/deactivate", admin, nil)
		if rec.Code != http.StatusNotFound || body["code"] != "DEVICE_NOT_FOUND" {
			t.Errorf("want 404, got %d %v", rec.Code, body)
		}
	})
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	rec, body := e.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || body["status"] != "success" {
		t.Errorf("want healthy, got %d %v", rec.Code, body)
	}
	if rec.Header().Get(api.HeaderRequestID) == "" {
		t.Error("expected a request id header")
	}
}

func TestValidate_ClientIdentity(t *testing.T) {
	policies := map[usecase.Operation]usecase.RatePolicy{
		usecase.OpValidate: {Limit: 5, Window: time.Minute},
	}
	req := map[string]string{"license_key": scenarioKey, "device_id": "dev-0001"}

	send := func(e *testEnv, n int) (denied int) {
		for i := 0; i < n; i++ {
			hdr := map[string]string{"X-Real-IP": fmt.Sprintf("10.0.0.%d", i+1)}
			rec, _ := e.doWithHeaders(t, http.MethodPost, "/api/v1/licenses/validate", "", req, hdr)
			if rec.Code == http.StatusTooManyRequests {
				denied++
			}
		}
		return denied
	}

	t.Run("should ignore forwarding headers by default", func(t *testing.T) {
		e := newEnv(t, policies)
		if denied := send(e, 20); denied != 15 {
			t.Errorf("want 15 of 20 denied for one remote address, got %d", denied)
		}
	})

	t.Run("should key on the forwarded address behind a trusted proxy", func(t *testing.T) {
		e := newEnvWithServer(t, policies, config.ServerConfig{RequestTimeout: 5 * time.Second, TrustProxyHeaders: true})
		if denied := send(e, 20); denied != 0 {
			t.Errorf("want every forwarded address in its own window, got %d denied", denied)
		}
	})
}
