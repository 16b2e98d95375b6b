package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iburossy/bolle-backend/internal/config"
	"github.com/iburossy/bolle-backend/internal/domain"
	"github.com/iburossy/bolle-backend/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   20,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Relay: config.RelayConfig{
			ServiceKey:  "testkey",
			ServiceID:   "citizen-service",
			Timeout:     2 * time.Second,
			BaseBackoff: 30 * time.Second,
			MaxAttempts: 5,
		},
		Geo: config.GeoConfig{
			NearbyMaxKm:      5,
			HotspotRadiusKm:  1,
			HotspotMinPoints: 5,
		},
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createPayload() map[string]any {
	return map[string]any{
		"category":    "hygiene",
		"description": "Dépôt sauvage d'ordures au coin de la rue",
		"location": map[string]any{
			"type":        "Point",
			"coordinates": []float64{-17.43, 14.70},
			"address":     "Marché Tilène",
		},
		"proofs": []map[string]any{
			{"type": "image", "url": "https://cdn.example.sn/p/preuve.jpg"},
		},
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t, "smoke"), testConfig())

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.sn")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"https://app.example.sn"}
	RegisterRoutes(r, newTestDB(t, "cors"), cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example.sn")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.sn" {
		t.Fatalf("expected origin echo, got %q", got)
	}

	// Unlisted origin gets no ACAO echo
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "https://evil.example.com" {
		t.Fatalf("unlisted origin must not be echoed")
	}
}

func TestRegisterRoutes_ServiceKeyGuardsExternalSurface(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t, "guard"), testConfig())

	// Missing key → 401 with the auth_failed code
	w := doJSON(t, r, http.MethodGet, "/external/alerts", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /external = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "auth_failed" {
		t.Fatalf("expected auth_failed, got %v", body)
	}

	// Webhook path is guarded too
	w = doJSON(t, r, http.MethodPost, "/webhooks/alert-status", map[string]any{"alertId": "x", "status": "new"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated webhook = %d", w.Code)
	}

	// Correct key passes the guard and reaches the handler
	w = doJSON(t, r, http.MethodGet, "/external/alerts", nil, map[string]string{"X-Service-Key": "testkey"})
	if w.Code != http.StatusOK {
		t.Fatalf("authenticated list = %d (%s)", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_CitizenRelayRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Stub domain service acknowledging pushed alerts.
	var gotSenderID string
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("X-Service-Key") != "testkey" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gotSenderID = req.Header.Get("X-Service-Id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"serviceReferenceId":"ref-e2e"}`))
	}))
	defer stub.Close()

	r := gin.New()
	RegisterRoutes(r, newTestDB(t, "roundtrip"), testConfig())

	// Register the owning service in the directory.
	w := doJSON(t, r, http.MethodPost, "/api/v1/services", map[string]any{
		"name":     "Service d'hygiène",
		"category": "hygiene",
		"base_url": stub.URL,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register service = %d (%s)", w.Code, w.Body.String())
	}

	// Create an alert; the relay must store the stub's reference.
	hdr := map[string]string{"X-Citizen-ID": "citizen-1"}
	w = doJSON(t, r, http.MethodPost, "/api/v1/alerts", createPayload(), hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("create alert = %d (%s)", w.Code, w.Body.String())
	}
	var created domain.Alert
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("json: %v", err)
	}
	if created.RelayReference == nil || *created.RelayReference != "ref-e2e" {
		t.Fatalf("expected relay reference ref-e2e, got %v", created.RelayReference)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("new alert status = %s", created.Status)
	}
	// The push identified this deployment so the receiver can resolve the
	// origin for comment forwarding and status push-back.
	if gotSenderID != "citizen-service" {
		t.Fatalf("X-Service-Id on the push = %q, want citizen-service", gotSenderID)
	}

	// The owner reads it back with history.
	w = doJSON(t, r, http.MethodGet, "/api/v1/alerts/"+created.ID, nil, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("get alert = %d", w.Code)
	}

	// Another citizen cannot see it.
	w = doJSON(t, r, http.MethodGet, "/api/v1/alerts/"+created.ID, nil, map[string]string{"X-Citizen-ID": "citizen-2"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign read = %d", w.Code)
	}

	// The owning service pushes a status change through the webhook.
	w = doJSON(t, r, http.MethodPost, "/webhooks/alert-status", map[string]any{
		"alertId":   created.ID,
		"status":    "in_progress",
		"updatedBy": "operator-7",
	}, map[string]string{"X-Service-Key": "testkey"})
	if w.Code != http.StatusOK {
		t.Fatalf("webhook = %d (%s)", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/alerts/"+created.ID, nil, hdr)
	var after domain.Alert
	if err := json.Unmarshal(w.Body.Bytes(), &after); err != nil {
		t.Fatalf("json: %v", err)
	}
	if after.Status != domain.StatusProcessing {
		t.Fatalf("status after webhook = %s, want processing", after.Status)
	}
}

func TestRegisterRoutes_IngestConvergesOnDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t, "ingest"), testConfig())

	hdr := map[string]string{"X-Service-Key": "testkey", "X-Service-Id": "citizen-service"}
	payload := map[string]any{
		"alertId":     "7f9c3f31-6f68-4c9f-a9e1-2e2fd4f0a111",
		"category":    "hygiene",
		"description": "Odeur suspecte près du canal",
		"location": map[string]any{
			"type":        "Point",
			"coordinates": []float64{-17.43, 14.70},
			"address":     "Canal 4",
		},
		"proofs":      []map[string]any{{"type": "photo", "url": "https://cdn.example.sn/p/photo.jpg"}},
		"isAnonymous": false,
		"citizenId":   "citizen-1",
		"createdAt":   time.Now().UTC().Format(time.RFC3339),
	}

	w := doJSON(t, r, http.MethodPost, "/external/alerts", payload, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("first ingest = %d (%s)", w.Code, w.Body.String())
	}
	var first map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("json: %v", err)
	}
	ref, _ := first["serviceReferenceId"].(string)
	if ref == "" || first["accepted"] != true {
		t.Fatalf("unexpected ingest ack: %v", first)
	}

	// Retransmission is accepted and converges on the same copy.
	w = doJSON(t, r, http.MethodPost, "/external/alerts", payload, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate ingest = %d", w.Code)
	}
	var second map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatalf("json: %v", err)
	}
	if second["serviceReferenceId"] != ref || second["duplicate"] != true {
		t.Fatalf("duplicate must return the existing id: %v", second)
	}

	// The copy is listable and readable with its zones.
	w = doJSON(t, r, http.MethodGet, "/external/alerts/"+ref, nil, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("get domain alert = %d", w.Code)
	}

	// Stats endpoint reflects the single record.
	w = doJSON(t, r, http.MethodGet, "/external/alerts/stats", nil, hdr)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	var stats struct {
		Total    int64            `json:"total"`
		ByStatus map[string]int64 `json:"by_status"`
		Rollup   map[string]int64 `json:"rollup"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("json: %v", err)
	}
	if stats.Total != 1 || stats.ByStatus["new"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Rollup["pending"] != 1 {
		t.Fatalf("citizen rollup must count the new record as pending: %v", stats.Rollup)
	}
}

func TestRegisterRoutes_ZoneLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t, "zones"), testConfig())

	w := doJSON(t, r, http.MethodPost, "/api/v1/zones", map[string]any{
		"name":       "Médina Nord",
		"risk_level": "high",
		"boundary": [][]float64{
			{-17.46, 14.68}, {-17.40, 14.68}, {-17.40, 14.72}, {-17.46, 14.72},
		},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create zone = %d (%s)", w.Code, w.Body.String())
	}
	var z domain.Zone
	if err := json.Unmarshal(w.Body.Bytes(), &z); err != nil {
		t.Fatalf("json: %v", err)
	}

	// Same name again → 409
	w = doJSON(t, r, http.MethodPost, "/api/v1/zones", map[string]any{
		"name":       "Médina Nord",
		"risk_level": "low",
		"boundary": [][]float64{
			{-17.46, 14.68}, {-17.40, 14.68}, {-17.40, 14.72},
		},
	}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate zone = %d", w.Code)
	}

	// Listing annotates the never-inspected zone as due.
	w = doJSON(t, r, http.MethodGet, "/api/v1/zones", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list zones = %d", w.Code)
	}
	var list struct {
		Zones []struct {
			Zone            domain.Zone `json:"zone"`
			NeedsInspection bool        `json:"needs_inspection"`
		} `json:"zones"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(list.Zones) != 1 || !list.Zones[0].NeedsInspection {
		t.Fatalf("expected one inspection-due zone, got %+v", list.Zones)
	}

	// Recording an inspection clears the flag.
	w = doJSON(t, r, http.MethodPost, "/api/v1/zones/"+z.ID+"/inspection", nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("inspection = %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/v1/zones", nil, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("json: %v", err)
	}
	if list.Zones[0].NeedsInspection {
		t.Fatalf("fresh inspection must clear the due flag")
	}

	// Hotspots endpoint answers even with no alerts.
	w = doJSON(t, r, http.MethodGet, "/api/v1/zones/hotspots", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("hotspots = %d", w.Code)
	}

	// A circle given as center plus radius is expanded to a closed ring.
	w = doJSON(t, r, http.MethodPost, "/api/v1/zones", map[string]any{
		"name":      "Plateau Centre",
		"center":    []float64{-17.44, 14.67},
		"radius_km": 1.5,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create circular zone = %d (%s)", w.Code, w.Body.String())
	}
	var circ domain.Zone
	if err := json.Unmarshal(w.Body.Bytes(), &circ); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(circ.Boundary) < 4 || !circ.Boundary.Closed() {
		t.Fatalf("circular zone boundary must be a closed ring, got %d vertices", len(circ.Boundary))
	}

	// Neither boundary nor circle → 400
	w = doJSON(t, r, http.MethodPost, "/api/v1/zones", map[string]any{"name": "Nulle Part"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("zone without geometry = %d", w.Code)
	}
}
