//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	httpapi "github.com/accord-hub/accord/internal/api/http"
	appEvent "github.com/accord-hub/accord/internal/application/event"
	appNegotiation "github.com/accord-hub/accord/internal/application/negotiation"
	"github.com/accord-hub/accord/internal/infrastructure/postgres"
)

const identityHeader = "X-User-ID"

type negotiationResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Round int    `json:"round"`
}

func TestConsensusIntegration(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	n := env.createOpen(t, nil, "p1", "p2")
	for _, user := range []string{"p1", "p2"} {
		resp := env.do(t, http.MethodPost, "/v1/negotiations/"+n.ID+"/replies", user, map[string]string{"action": "accept"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("reply by %s: status %d", user, resp.StatusCode)
		}
		resp.Body.Close()
	}

	got := env.get(t, n.ID, "o")
	if got.State != "accepted" {
		t.Fatalf("expected accepted, got %s", got.State)
	}

	resp := env.do(t, http.MethodGet, "/v1/negotiations/"+n.ID+"/event.ics", "p1", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ics: status %d", resp.StatusCode)
	}
}

func TestConcurrentAcceptsIntegration(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	participants := []string{"p1", "p2", "p3", "p4", "p5"}
	n := env.createOpen(t, nil, participants...)

	var wg sync.WaitGroup
	codes := make(chan int, len(participants))
	for _, user := range participants {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			resp := env.do(t, http.MethodPost, "/v1/negotiations/"+n.ID+"/replies", user, map[string]string{"action": "accept"})
			if resp == nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}(user)
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		if code != http.StatusOK {
			t.Fatalf("concurrent reply: status %d", code)
		}
	}

	if got := env.get(t, n.ID, "o"); got.State != "accepted" {
		t.Fatalf("expected accepted, got %s", got.State)
	}
	var events int
	if err := env.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM events WHERE negotiation_id = $1`, n.ID).Scan(&events); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if events != 1 {
		t.Fatalf("expected exactly one event, got %d", events)
	}
}

func TestSweeperIntegration(t *testing.T) {
	env := newTestEnv(t)
	defer env.cleanup()

	exp := time.Now().UTC().Add(2 * time.Second)
	n := env.createOpen(t, &exp, "p1")
	time.Sleep(3 * time.Second)

	sweeper := appNegotiation.NewSweeper(env.store, appNegotiation.SweeperConfig{BatchSize: 10}, zerolog.Nop())
	count, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired, got %d", count)
	}
	if got := env.get(t, n.ID, "p1"); got.State != "expired" {
		t.Fatalf("expected expired, got %s", got.State)
	}
}

type testEnv struct {
	server  *httptest.Server
	pool    *pgxpool.Pool
	store   *postgres.Store
	cleanup func()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := testDatabaseURL(t)

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("migrations: %v", err)
	}
	if err := resetDatabase(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("reset db: %v", err)
	}

	logger := zerolog.Nop()
	store := postgres.NewStore(pool)
	svc := appNegotiation.NewService(
		store,
		appEvent.NewMaterializer(appEvent.NewLogPublisher(logger), logger),
		appNegotiation.Config{MaxTxRetries: 5},
		logger,
	)
	apiServer := httpapi.NewServer(svc, store, httpapi.HeaderIdentity{Header: identityHeader}, 10*time.Second, logger)
	server := httptest.NewServer(apiServer.Router())

	return &testEnv{
		server: server,
		pool:   pool,
		store:  store,
		cleanup: func() {
			server.Close()
			pool.Close()
		},
	}
}

func (e *testEnv) do(t *testing.T, method, path, user string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Errorf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Errorf("new request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identityHeader, user)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Errorf("%s %s: %v", method, path, err)
		return nil
	}
	return resp
}

func (e *testEnv) createOpen(t *testing.T, expiresAt *time.Time, participants ...string) negotiationResponse {
	t.Helper()
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	body := map[string]interface{}{
		"title":          "Offsite",
		"participantIds": participants,
		"slots":          []map[string]interface{}{{"startsAt": start, "endsAt": start.Add(time.Hour)}},
		"venues":         []map[string]interface{}{{"name": "HQ"}},
	}
	if expiresAt != nil {
		body["expiresAt"] = expiresAt
	}
	resp := e.do(t, http.MethodPost, "/v1/negotiations", "o", body)
	n := decodeNegotiation(t, resp, http.StatusCreated)

	resp = e.do(t, http.MethodPost, "/v1/negotiations/"+n.ID+"/finalize", "o", nil)
	return decodeNegotiation(t, resp, http.StatusOK)
}

func (e *testEnv) get(t *testing.T, id, user string) negotiationResponse {
	t.Helper()
	return decodeNegotiation(t, e.do(t, http.MethodGet, "/v1/negotiations/"+id, user, nil), http.StatusOK)
}

func decodeNegotiation(t *testing.T, resp *http.Response, want int) negotiationResponse {
	t.Helper()
	if resp == nil {
		t.FailNow()
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
	var n negotiationResponse
	if err := json.NewDecoder(resp.Body).Decode(&n); err != nil {
		t.Fatalf("decode negotiation: %v", err)
	}
	return n
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE TABLE
			idempotency_keys,
			events,
			negotiation_transitions,
			negotiation_venues,
			negotiation_slots,
			negotiation_participants,
			negotiations
		RESTART IDENTITY CASCADE
	`)
	return err
}
