package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/logging"
	"github.com/nerrad567/smarthome-core/internal/location"
	"github.com/nerrad567/smarthome-core/internal/onboarding"
	"github.com/nerrad567/smarthome-core/internal/smarthome"
	"github.com/nerrad567/smarthome-core/internal/telemetry"
	_ "github.com/nerrad567/smarthome-core/migrations" // registers embedded schema
)

const testPassword = "correct horse"

type testEnv struct {
	srv     *Server
	client  *smarthome.Client
	handler http.Handler
}

type serverOption func(*Deps)

func withTelemetry(src telemetry.Source) serverOption {
	return func(d *Deps) { d.Telemetry = src }
}

func withOnboarding() serverOption {
	return func(d *Deps) {
		devices := d.Client.Devices
		d.Onboarding = onboarding.NewSessions(func() *onboarding.Flow {
			return onboarding.NewFlow(onboarding.Config{
				Scanner:  onboarding.NewSimulatedScanner(onboarding.DefaultDevicePrefix, 0),
				Resolver: onboarding.StaticResolver{Address: "192.168.4.1"},
				Devices:  devices,
			})
		}, 0)
	}
}

// testServer creates a Server over an in-memory smart home client.
func testServer(t *testing.T, opts ...serverOption) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Store:    config.StoreConfig{Driver: config.StoreDriverSQLite},
		Database: config.DatabaseConfig{Path: database.MemoryPath},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: "test-secret-key-at-least-32-characters-long", AccessTokenTTL: 15},
		},
	}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	client, err := smarthome.Open(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("smarthome.Open() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:      config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:  log,
		Client:  client,
		Version: "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{srv: srv, client: client, handler: srv.Handler()}
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

// signUp creates an account and returns its session token and user id.
func (e *testEnv) signUp(t *testing.T, email string) (token, userID string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": email, "password": testPassword, "displayName": "Test User",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", w.Code, w.Body)
	}
	var resp sessionResponse
	decode(t, w, &resp)
	return resp.AccessToken, resp.Identity.ID
}

// seed creates Main House / Kitchen / Lamp through the API.
func (e *testEnv) seed(t *testing.T, token string) (homeID, roomID, deviceID string) {
	t.Helper()
	var home location.Home
	decode(t, e.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/homes", token,
		map[string]string{"name": "Main House", "address": "1 Main St"}), &home)
	var room location.Room
	decode(t, e.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/homes/"+home.ID+"/rooms", token,
		map[string]string{"name": "Kitchen"}), &room)
	var dev device.Device
	decode(t, e.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/rooms/"+room.ID+"/devices", token,
		map[string]string{"name": "Lamp", "type": "light"}), &dev)
	return home.ID, room.ID, dev.ID
}

func (e *testEnv) expect(t *testing.T, status int, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	w := e.do(t, method, path, token, body)
	if w.Code != status {
		t.Fatalf("%s %s status = %d, want %d, body = %s", method, path, w.Code, status, w.Body)
	}
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %s: %v", w.Body, err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e Error
	decode(t, w, &e)
	return e.Code
}

// ─── Health & Middleware ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	env := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := testServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/homes", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "no token"},
		{name: "garbage token", token: "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/homes", tt.token, nil)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if code := errorCode(t, w); code != ErrCodeUnauthorized {
				t.Errorf("code = %q, want %q", code, ErrCodeUnauthorized)
			}
		})
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestAuth_SessionLifecycle(t *testing.T) {
	env := testServer(t)
	token, userID := env.signUp(t, "ada@example.com")

	var me meResponse
	decode(t, env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/auth/me", token, nil), &me)
	if me.Identity.ID != userID || me.Identity.Email != "ada@example.com" {
		t.Errorf("me identity = %+v", me.Identity)
	}
	if me.Profile == nil || me.Profile.DisplayName != "Test User" || me.Profile.PhotoURL != "" {
		t.Errorf("me profile = %+v", me.Profile)
	}

	env.expect(t, http.StatusNoContent, http.MethodPost, "/api/v1/auth/logout", token, nil)
	env.expect(t, http.StatusUnauthorized, http.MethodGet, "/api/v1/auth/me", token, nil)

	w := env.expect(t, http.StatusOK, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "ada@example.com", Password: testPassword,
	})
	var resp sessionResponse
	decode(t, w, &resp)
	if resp.TokenType != "Bearer" || resp.AccessToken == "" || resp.ExpiresIn <= 0 {
		t.Errorf("login response = %+v", resp)
	}
	env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/auth/me", resp.AccessToken, nil)
}

func TestAuth_Failures(t *testing.T) {
	env := testServer(t)
	env.signUp(t, "ada@example.com")

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong password",
			path:       "/api/v1/auth/login",
			body:       loginRequest{Email: "ada@example.com", Password: "nope-nope"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   ErrCodeUnauthorized,
		},
		{
			name:       "email in use",
			path:       "/api/v1/auth/signup",
			body:       signUpRequest{Email: "ada@example.com", Password: testPassword, DisplayName: "Ada"},
			wantStatus: http.StatusConflict,
			wantCode:   ErrCodeConflict,
		},
		{
			name:       "weak password",
			path:       "/api/v1/auth/signup",
			body:       signUpRequest{Email: "bob@example.com", Password: "123", DisplayName: "Bob"},
			wantStatus: http.StatusBadRequest,
			wantCode:   ErrCodeValidation,
		},
		{
			name:       "federated disabled",
			path:       "/api/v1/auth/federated",
			body:       federatedRequest{IDToken: "token"},
			wantStatus: http.StatusForbidden,
			wantCode:   ErrCodeForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, "", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body)
			}
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}

	t.Run("invalid JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{"))
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestTicketStore(t *testing.T) {
	store := newTicketStore()
	now := time.Now()
	store.now = func() time.Time { return now }

	ticket := store.issue(nil)
	if _, ok := store.redeem(ticket); !ok {
		t.Fatal("redeem() of fresh ticket failed")
	}
	if _, ok := store.redeem(ticket); ok {
		t.Error("ticket redeemed twice")
	}

	stale := store.issue(nil)
	now = now.Add(ticketTTL)
	if _, ok := store.redeem(stale); ok {
		t.Error("expired ticket redeemed")
	}

	store.issue(nil)
	now = now.Add(2 * ticketTTL)
	store.cleanExpired()
	if n := store.pending(); n != 0 {
		t.Errorf("pending() = %d after cleanup, want 0", n)
	}
}

// ─── Homes, rooms and devices ──────────────────────────────────────

func TestHomeTreeAndCascade(t *testing.T) {
	env := testServer(t)
	token, userID := env.signUp(t, "ada@example.com")
	homeID, roomID, deviceID := env.seed(t, token)

	var tree smarthome.HomeTree
	decode(t, env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/homes/"+homeID, token, nil), &tree)
	if tree.UserID != userID || tree.Name != "Main House" {
		t.Errorf("tree home = %+v", tree.Home)
	}
	if len(tree.Rooms) != 1 || tree.Rooms[0].ID != roomID {
		t.Fatalf("tree rooms = %+v", tree.Rooms)
	}
	if devs := tree.Rooms[0].Devices; len(devs) != 1 || devs[0].ID != deviceID || devs[0].IsOn {
		t.Errorf("tree devices = %+v", devs)
	}

	var list struct {
		Homes []location.Home `json:"homes"`
		Count int             `json:"count"`
	}
	decode(t, env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/homes", token, nil), &list)
	if list.Count != 1 || list.Homes[0].ID != homeID {
		t.Errorf("homes = %+v", list)
	}

	env.expect(t, http.StatusNoContent, http.MethodDelete, "/api/v1/homes/"+homeID, token, nil)
	env.expect(t, http.StatusNotFound, http.MethodGet, "/api/v1/rooms/"+roomID, token, nil)
	env.expect(t, http.StatusNotFound, http.MethodGet, "/api/v1/devices/"+deviceID, token, nil)
}

func TestUpdatesLeaveOtherFields(t *testing.T) {
	env := testServer(t)
	token, _ := env.signUp(t, "ada@example.com")
	homeID, roomID, deviceID := env.seed(t, token)

	var home location.Home
	decode(t, env.expect(t, http.StatusOK, http.MethodPatch, "/api/v1/homes/"+homeID, token,
		map[string]string{"name": "Beach House"}), &home)
	if home.Name != "Beach House" || home.Address != "1 Main St" {
		t.Errorf("home after rename = %+v", home)
	}

	var room location.Room
	decode(t, env.expect(t, http.StatusOK, http.MethodPatch, "/api/v1/rooms/"+roomID, token,
		map[string]string{"name": "Galley"}), &room)
	if room.Name != "Galley" || room.HomeID != homeID {
		t.Errorf("room after rename = %+v", room)
	}

	var before device.Device
	decode(t, env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/devices/"+deviceID, token, nil), &before)

	var on, off device.Device
	decode(t, env.expect(t, http.StatusOK, http.MethodPut, "/api/v1/devices/"+deviceID+"/state", token,
		map[string]bool{"isOn": true}), &on)
	decode(t, env.expect(t, http.StatusOK, http.MethodPut, "/api/v1/devices/"+deviceID+"/state", token,
		map[string]bool{"isOn": false}), &off)
	if !on.IsOn || off.IsOn {
		t.Errorf("toggle states on=%v off=%v", on.IsOn, off.IsOn)
	}
	if off.Name != before.Name || off.Type != before.Type || off.Voltage != before.Voltage ||
		off.Current != before.Current || off.Power != before.Power || off.RoomID != before.RoomID {
		t.Errorf("toggle changed other fields: before %+v after %+v", before, off)
	}

	w := env.do(t, http.MethodPut, "/api/v1/devices/"+deviceID+"/state", token, map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("state without isOn status = %d, want 400", w.Code)
	}
}

func TestValidationErrors(t *testing.T) {
	env := testServer(t)
	token, _ := env.signUp(t, "ada@example.com")
	homeID, roomID, deviceID := env.seed(t, token)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"empty home name", http.MethodPost, "/api/v1/homes", map[string]string{"name": "  "}},
		{"empty room name", http.MethodPost, "/api/v1/homes/" + homeID + "/rooms", map[string]string{"name": ""}},
		{"unknown device type", http.MethodPost, "/api/v1/rooms/" + roomID + "/devices", map[string]string{"name": "Heater", "type": "oven"}},
		{"blank device rename", http.MethodPatch, "/api/v1/devices/" + deviceID, map[string]string{"name": " "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, token, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400, body = %s", w.Code, w.Body)
			}
			if code := errorCode(t, w); code != ErrCodeValidation {
				t.Errorf("code = %q, want %q", code, ErrCodeValidation)
			}
		})
	}
}

func TestOwnershipIsEnforced(t *testing.T) {
	env := testServer(t)
	alice, _ := env.signUp(t, "alice@example.com")
	bob, _ := env.signUp(t, "bob@example.com")
	homeID, roomID, deviceID := env.seed(t, alice)
	_, bobRoom, _ := env.seed(t, bob)

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/homes/" + homeID, nil},
		{http.MethodPatch, "/api/v1/homes/" + homeID, map[string]string{"name": "Mine"}},
		{http.MethodDelete, "/api/v1/homes/" + homeID, nil},
		{http.MethodGet, "/api/v1/homes/" + homeID + "/rooms", nil},
		{http.MethodPost, "/api/v1/homes/" + homeID + "/rooms", map[string]string{"name": "Attic"}},
		{http.MethodGet, "/api/v1/rooms/" + roomID, nil},
		{http.MethodDelete, "/api/v1/rooms/" + roomID, nil},
		{http.MethodGet, "/api/v1/rooms/" + roomID + "/devices", nil},
		{http.MethodGet, "/api/v1/devices/" + deviceID, nil},
		{http.MethodPut, "/api/v1/devices/" + deviceID + "/state", map[string]bool{"isOn": true}},
		{http.MethodGet, "/api/v1/devices/" + deviceID + "/readings", nil},
		{http.MethodDelete, "/api/v1/devices/" + deviceID, nil},
	}
	for _, rq := range requests {
		t.Run(rq.method+" "+rq.path, func(t *testing.T) {
			w := env.do(t, rq.method, rq.path, bob, rq.body)
			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", w.Code)
			}
		})
	}

	t.Run("move device into foreign room", func(t *testing.T) {
		w := env.do(t, http.MethodPatch, "/api/v1/devices/"+deviceID, alice, map[string]string{"roomId": bobRoom})
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	var dev device.Device
	decode(t, env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/devices/"+deviceID, alice, nil), &dev)
	if dev.IsOn || dev.RoomID != roomID {
		t.Errorf("alice's device changed: %+v", dev)
	}
}

func TestReadingsAndBackfill(t *testing.T) {
	env := testServer(t, withTelemetry(telemetry.NewSyntheticSource(7)))
	token, _ := env.signUp(t, "ada@example.com")
	_, _, deviceID := env.seed(t, token)

	ctx := context.Background()
	now := time.Now()
	for i := range 3 {
		_, err := env.client.Devices.AppendReading(ctx, deviceID, device.VoltageReading{
			Timestamp: now.Add(-time.Duration(i) * time.Hour).UnixMilli(),
			Voltage:   120, Current: 1, Power: float64(100 + i),
		})
		if err != nil {
			t.Fatalf("AppendReading() error = %v", err)
		}
	}

	var series seriesResponse
	decode(t, env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/devices/"+deviceID+"/readings?limit=2", token, nil), &series)
	if len(series.Readings) != 2 || series.Readings[0].Power != 100 {
		t.Errorf("limited readings = %+v", series.Readings)
	}

	decode(t, env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/devices/"+deviceID+"/readings?window=daily", token, nil), &series)
	if len(series.Readings) != 3 || series.Summary.Count != 3 || series.Summary.PeakPower != 102 {
		t.Errorf("daily readings = %+v", series)
	}
	if series.Readings[0].Timestamp > series.Readings[2].Timestamp {
		t.Error("windowed readings are not oldest first")
	}

	decode(t, env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/devices/"+deviceID+"/backfill?window=weekly", token, nil), &series)
	if series.Window != telemetry.WindowWeekly || len(series.Readings) != 7 || series.Summary.Count != 7 {
		t.Errorf("weekly backfill = %+v", series)
	}

	tests := []struct {
		name string
		path string
		want int
	}{
		{"bad limit", "/readings?limit=zero", http.StatusBadRequest},
		{"unknown window", "/backfill?window=yearly", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := env.do(t, http.MethodGet, "/api/v1/devices/"+deviceID+tt.path, token, nil); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}

	t.Run("backfill without telemetry", func(t *testing.T) {
		bare := testServer(t)
		tok, _ := bare.signUp(t, "ada@example.com")
		_, _, id := bare.seed(t, tok)
		if w := bare.do(t, http.MethodGet, "/api/v1/devices/"+id+"/backfill", tok, nil); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", w.Code)
		}
	})
}

// ─── Onboarding ────────────────────────────────────────────────────

func TestOnboarding(t *testing.T) {
	env := testServer(t, withOnboarding())
	token, _ := env.signUp(t, "ada@example.com")
	other, _ := env.signUp(t, "bob@example.com")
	_, roomID, _ := env.seed(t, token)

	var started onboardingResponse
	decode(t, env.expect(t, http.StatusCreated, http.MethodPost, "/api/v1/onboarding", token, nil), &started)
	base := "/api/v1/onboarding/" + started.ID
	if started.Status.Step != onboarding.StepScan {
		t.Errorf("initial step = %q", started.Status.Step)
	}

	env.expect(t, http.StatusNotFound, http.MethodGet, base, other, nil)

	var status onboardingResponse
	decode(t, env.expect(t, http.StatusOK, http.MethodPost, base+"/scan", token, nil), &status)
	if len(status.Status.Networks) != 3 {
		t.Fatalf("networks = %+v", status.Status.Networks)
	}

	if w := env.do(t, http.MethodPost, base+"/select", token, selectRequest{SSID: "HomeNetwork"}); w.Code != http.StatusBadRequest {
		t.Errorf("select household network status = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPost, base+"/configure", token, onboarding.Configuration{RoomID: roomID, Name: "Plug", Type: device.TypeSwitch}); w.Code != http.StatusConflict {
		t.Errorf("configure before connect status = %d, want 409", w.Code)
	}

	ssid := onboarding.DefaultDevicePrefix + "_A1B2C3"
	env.expect(t, http.StatusOK, http.MethodPost, base+"/select", token, selectRequest{SSID: ssid})
	if w := env.do(t, http.MethodPost, base+"/connect", token, connectRequest{}); w.Code != http.StatusBadRequest {
		t.Errorf("connect without password status = %d, want 400", w.Code)
	}
	decode(t, env.expect(t, http.StatusOK, http.MethodPost, base+"/connect", token, connectRequest{Password: "hunter22"}), &status)
	if status.Status.Step != onboarding.StepConfigure {
		t.Errorf("step after connect = %q", status.Status.Step)
	}

	var dev device.Device
	decode(t, env.expect(t, http.StatusCreated, http.MethodPost, base+"/configure", token,
		onboarding.Configuration{RoomID: roomID, Name: " Desk Plug ", Type: device.TypeSwitch}), &dev)
	if dev.Name != "Desk Plug" || dev.SSID != ssid || dev.IPAddress != "192.168.4.1" || dev.RoomID != roomID || dev.IsOn {
		t.Errorf("onboarded device = %+v", dev)
	}

	env.expect(t, http.StatusNotFound, http.MethodGet, base, token, nil)
}

func TestOnboardingDisabled(t *testing.T) {
	env := testServer(t)
	token, _ := env.signUp(t, "ada@example.com")
	if w := env.do(t, http.MethodPost, "/api/v1/onboarding", token, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────

type wsEnvelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Channel   string          `json:"channel"`
	Payload   json.RawMessage `json:"payload"`
}

func dialWS(t *testing.T, env *testEnv, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	var ticket struct {
		Ticket string `json:"ticket"`
	}
	decode(t, env.expect(t, http.StatusOK, http.MethodPost, "/api/v1/auth/ws-ticket", token, nil), &ticket)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws?ticket=" + ticket.Ticket
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, msgType string, channels ...string) {
	t.Helper()
	msg := WSMessage{Type: msgType, ID: "1", Payload: WSSubscribePayload{Channels: channels}}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
}

// readUntil reads messages until one satisfies ok.
func readUntil(t *testing.T, conn *websocket.Conn, what string, ok func(wsEnvelope) bool) wsEnvelope {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("SetReadDeadline() error = %v", err)
		}
		var msg wsEnvelope
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		if ok(msg) {
			return msg
		}
	}
}

func snapshotOf[T any](t *testing.T, conn *websocket.Conn, channel string, ok func([]T) bool) []T {
	t.Helper()
	var items []T
	readUntil(t, conn, channel+" snapshot", func(m wsEnvelope) bool {
		if m.EventType != WSEventSnapshot || m.Channel != channel {
			return false
		}
		items = nil
		if err := json.Unmarshal(m.Payload, &items); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		return ok(items)
	})
	return items
}

func TestWebSocket_DeviceSnapshots(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	token, _ := env.signUp(t, "ada@example.com")
	_, roomID, deviceID := env.seed(t, token)
	conn := dialWS(t, env, ts, token)

	channel := ChannelDevicesPrefix + roomID
	sendWS(t, conn, WSTypeSubscribe, channel)
	first := snapshotOf(t, conn, channel, func(d []device.Device) bool { return len(d) == 1 })
	if first[0].ID != deviceID || first[0].IsOn {
		t.Fatalf("first snapshot = %+v", first)
	}

	env.expect(t, http.StatusOK, http.MethodPut, "/api/v1/devices/"+deviceID+"/state", token, map[string]bool{"isOn": true})
	next := snapshotOf(t, conn, channel, func(d []device.Device) bool { return len(d) == 1 && d[0].IsOn })

	want := first[0]
	want.IsOn = true
	want.UpdatedAt = next[0].UpdatedAt
	if next[0].UpdatedAt.Before(first[0].UpdatedAt) {
		t.Errorf("lastUpdated did not advance: %v -> %v", first[0].UpdatedAt, next[0].UpdatedAt)
	}
	if next[0] != want {
		t.Errorf("snapshot after toggle = %+v, want %+v", next[0], want)
	}

	sendWS(t, conn, WSTypeUnsubscribe, channel)
	readUntil(t, conn, "unsubscribe response", func(m wsEnvelope) bool {
		return m.Type == WSTypeResponse && strings.Contains(string(m.Payload), "unsubscribed")
	})
	deadline := time.Now().Add(5 * time.Second)
	for env.srv.hub.SubscriptionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_HomesAndForeignChannels(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	alice, _ := env.signUp(t, "alice@example.com")
	bob, _ := env.signUp(t, "bob@example.com")
	aliceHome, _, _ := env.seed(t, alice)
	conn := dialWS(t, env, ts, bob)

	sendWS(t, conn, WSTypeSubscribe, ChannelHomes, ChannelRoomsPrefix+aliceHome, "weather")
	refused := map[string]bool{}
	sawEmpty := false
	readUntil(t, conn, "refusals and first homes snapshot", func(m wsEnvelope) bool {
		switch {
		case m.Type == WSTypeError:
			refused[m.Channel] = true
		case m.EventType == WSEventSnapshot && m.Channel == ChannelHomes:
			sawEmpty = string(m.Payload) == "[]"
		}
		return len(refused) == 2 && sawEmpty
	})
	if !refused[ChannelRoomsPrefix+aliceHome] || !refused["weather"] {
		t.Errorf("refused = %v", refused)
	}

	env.seed(t, bob)
	homes := snapshotOf(t, conn, ChannelHomes, func(h []location.Home) bool { return len(h) == 1 })
	if homes[0].Name != "Main House" {
		t.Errorf("homes = %+v", homes)
	}
}

func TestWebSocket_TicketRules(t *testing.T) {
	env := testServer(t)
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)
	token, _ := env.signUp(t, "ada@example.com")

	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	tests := []struct {
		name   string
		ticket func() string
	}{
		{name: "missing ticket", ticket: func() string { return "" }},
		{name: "unknown ticket", ticket: func() string { return "deadbeef" }},
		{name: "revoked session", ticket: func() string {
			var resp struct {
				Ticket string `json:"ticket"`
			}
			decode(t, env.expect(t, http.StatusOK, http.MethodPost, "/api/v1/auth/ws-ticket", token, nil), &resp)
			env.expect(t, http.StatusNoContent, http.MethodPost, "/api/v1/auth/logout", token, nil)
			return resp.Ticket
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(base+"?ticket="+tt.ticket(), nil)
			if err == nil {
				conn.Close()
				t.Fatal("Dial() succeeded, want handshake failure")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("response = %v, want 401", resp)
			}
		})
	}
}

// ─── Metrics & lifecycle ───────────────────────────────────────────

func TestMetrics(t *testing.T) {
	env := testServer(t, withOnboarding())
	w := env.expect(t, http.StatusOK, http.MethodGet, "/api/v1/metrics", "", nil)

	var m SystemMetrics
	decode(t, w, &m)
	if m.Version != "test" || m.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", m)
	}
	if m.Onboarding == nil || m.Relay != nil || m.MQTT.Connected {
		t.Errorf("optional sections = onboarding %v relay %v mqtt %v", m.Onboarding, m.Relay, m.MQTT)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()

	if err := env.srv.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := env.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.srv.Start(ctx); err == nil {
		t.Error("second Start() = nil, want error")
	}
	if err := env.srv.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, err := http.Get("http://" + env.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := env.srv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger = nil error")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without client = nil error")
	}
}
