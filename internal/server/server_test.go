package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilworks/blindbet/internal/bet"
	"github.com/veilworks/blindbet/internal/bus"
	"github.com/veilworks/blindbet/internal/enclave"
	"github.com/veilworks/blindbet/internal/market"
	"github.com/veilworks/blindbet/internal/server/handler"
	"github.com/veilworks/blindbet/internal/server/ws"
	"github.com/veilworks/blindbet/internal/settlement"
	"github.com/veilworks/blindbet/internal/store/memory"
	"github.com/veilworks/blindbet/internal/token"
)

const (
	testAPIKey = "test-api-key"
	testOrigin = "https://app.example.com"
)

var (
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000dead0001")
	ledgerAddr   = common.HexToAddress("0x00000000000000000000000000000000dead0002")
	aliceAddr    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	encSvc, err := enclave.New(enclave.Config{Passphrase: "test-passphrase"}, logger)
	if err != nil {
		t.Fatalf("enclave: %v", err)
	}

	markets := memory.NewMarketStore()
	bets := memory.NewBetStore()
	claims := memory.NewClaimStore()
	events := memory.NewEventStore()

	memBus := bus.NewMemory()
	eventBus := bus.Fanout{bus.StoreSink{Store: events}, memBus}

	ledger := token.New(encSvc, ledgerAddr, logger)
	registry := market.NewRegistry(markets, bets, encSvc, eventBus, treasuryAddr, logger)
	betSvc := bet.NewService(markets, bets, ledger, encSvc, eventBus, treasuryAddr, logger)
	engine := settlement.NewEngine(markets, bets, claims, encSvc, ledger, eventBus,
		treasuryAddr, ledgerAddr, 24*time.Hour, logger)

	handlers := Handlers{
		Health:  handler.NewHealthHandler(logger),
		Markets: handler.NewMarketHandler(registry, betSvc, logger),
		Bets:    handler.NewBetHandler(betSvc),
		Claims:  handler.NewClaimHandler(engine),
		Token:   handler.NewTokenHandler(ledger, encSvc, true),
	}
	srv := NewServer(Config{
		Port:        0,
		CORSOrigins: []string{testOrigin},
		APIKey:      testAPIKey,
	}, handlers, ws.NewHub(memBus, logger), logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// doJSON issues an authenticated request as the given caller and decodes the
// JSON response body into out (when out is non-nil).
func doJSON(t *testing.T, ts *httptest.Server, method, path string, caller common.Address, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("X-Blindbet-Address", caller.Hex())
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return resp
}

func TestHealthBypassesAuth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthRejectsMissingAndBadTokens(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/markets")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/markets", nil)
	req.Header.Set("X-API-Key", "wrong-key")
	resp, err = ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", resp.StatusCode)
	}
}

func TestCORSPreflightAllowsConfiguredOrigin(t *testing.T) {
	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/markets", nil)
	req.Header.Set("Origin", testOrigin)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Fatalf("expected allowed origin %q, got %q", testOrigin, got)
	}

	req, _ = http.NewRequest(http.MethodOptions, ts.URL+"/api/markets", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = ts.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header for unknown origin, got %q", got)
	}
}

func TestMarketAndBetFlow(t *testing.T) {
	ts := newTestServer(t)

	// Fund the caller through the faucet and authorize the custody account.
	var minted map[string]string
	resp := doJSON(t, ts, http.MethodPost, "/api/token/mint", aliceAddr,
		map[string]string{"value": "500"}, &minted)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint: expected 200, got %d", resp.StatusCode)
	}
	if minted["balance_handle"] == "" {
		t.Fatal("mint: expected a balance handle")
	}

	resp = doJSON(t, ts, http.MethodPost, "/api/token/approve", aliceAddr,
		map[string]any{"operator": treasuryAddr.Hex(), "ttl_seconds": 3600}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", resp.StatusCode)
	}

	var created map[string]uint64
	resp = doJSON(t, ts, http.MethodPost, "/api/markets", aliceAddr,
		map[string]any{"question": "will it rain?", "duration_hours": 24, "delay_hours": 2}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create market: expected 201, got %d", resp.StatusCode)
	}
	if created["market_id"] != 1 {
		t.Fatalf("expected market id 1, got %d", created["market_id"])
	}

	var encrypted map[string]string
	resp = doJSON(t, ts, http.MethodPost, "/api/token/encrypt", aliceAddr,
		map[string]string{"value": "100"}, &encrypted)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("encrypt: expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, ts, http.MethodPost, "/api/markets/1/bets", aliceAddr,
		map[string]string{"prediction": "yes", "amount_handle": encrypted["handle"], "proof": ""}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("place bet: expected 201, got %d", resp.StatusCode)
	}

	var m struct {
		ID       uint64 `json:"id"`
		Question string `json:"question"`
		YesCount int64  `json:"yes_count"`
		NoCount  int64  `json:"no_count"`
		Active   bool   `json:"active"`
	}
	resp = doJSON(t, ts, http.MethodGet, "/api/markets/1", aliceAddr, nil, &m)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get market: expected 200, got %d", resp.StatusCode)
	}
	if m.Question != "will it rain?" || m.YesCount != 1 || m.NoCount != 0 || !m.Active {
		t.Fatalf("unexpected market view: %+v", m)
	}

	var b struct {
		Prediction   string `json:"prediction"`
		AmountHandle string `json:"amount_handle"`
		Claimed      bool   `json:"claimed"`
	}
	resp = doJSON(t, ts, http.MethodGet, "/api/markets/1/bets/me", aliceAddr, nil, &b)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get bet: expected 200, got %d", resp.StatusCode)
	}
	if b.Prediction != "yes" || b.AmountHandle == "" || b.Claimed {
		t.Fatalf("unexpected bet view: %+v", b)
	}

	// A second bet from the same caller conflicts.
	resp = doJSON(t, ts, http.MethodPost, "/api/markets/1/bets", aliceAddr,
		map[string]string{"prediction": "no", "amount_handle": encrypted["handle"], "proof": ""}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second bet: expected 409, got %d", resp.StatusCode)
	}
}

func TestRoutingErrors(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodGet, "/api/markets/99", aliceAddr, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing market: expected 404, got %d", resp.StatusCode)
	}

	resp = doJSON(t, ts, http.MethodGet, "/api/markets/not-a-number", aliceAddr, nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", resp.StatusCode)
	}

	// Missing caller header on an endpoint that needs a principal.
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/markets", bytes.NewBufferString(`{"question":"q","duration_hours":24,"delay_hours":2}`))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp2, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing address: expected 400, got %d", resp2.StatusCode)
	}
}
