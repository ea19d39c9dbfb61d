package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"splitledger/internal/core"
	"splitledger/internal/ledger/memory"
	"splitledger/internal/services"
)

type testEnv struct {
	server *Server
	store  *memory.Store
	payer  core.User
	alice  core.User
	bob    core.User
	group  core.GroupWithMembers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	payer := store.SeedUser(core.User{FullName: "Paula"})
	alice := store.SeedUser(core.User{FullName: "Alice"})
	bob := store.SeedUser(core.User{FullName: "Bob"})
	group := store.SeedGroup(core.GroupWithMembers{
		Group:     core.Group{Name: "trip", CreatorID: payer.ID},
		MemberIDs: []string{payer.ID, alice.ID, bob.ID},
	})

	expenses := services.NewExpenseService(store, nil)
	settlements := services.NewSettlementService(store, nil)
	server := NewServer(":0", expenses, settlements)
	t.Cleanup(func() { server.limiter.Stop() })

	return &testEnv{server: server, store: store, payer: payer, alice: alice, bob: bob, group: group}
}

func (e *testEnv) do(t *testing.T, method, target, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
		req.Header.Set("X-User-Role", "user")
	}
	rec := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return env
}

func TestServer_CreateExpense(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/expenses", e.payer.ID, map[string]any{
		"amount":   90.0,
		"currency": "eur",
		"groupId":  e.group.ID,
		"splits": []map[string]any{
			{"userId": e.alice.ID, "amount": 30.0},
			{"userId": e.bob.ID, "amount": 30.0},
		},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("success = false, message %q", env.Message)
	}
	if env.Message != "Expense created successfully" {
		t.Errorf("message = %q", env.Message)
	}

	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data has type %T", env.Data)
	}
	if got := data["amount"].(float64); got != 90.0 {
		t.Errorf("amount = %v, want 90", got)
	}
	if got := data["currency"].(string); got != "EUR" {
		t.Errorf("currency = %q, want EUR", got)
	}
	splits, ok := data["splits"].([]any)
	if !ok || len(splits) != 3 {
		t.Errorf("splits = %v, want 3 entries", data["splits"])
	}
}

func TestServer_CreateExpense_NoSplitsKeepsWholeAmountOnPayer(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/expenses", e.payer.ID, map[string]any{
		"amount":   90.0,
		"currency": "eur",
		"groupId":  e.group.ID,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	splits, ok := data["splits"].([]any)
	if !ok || len(splits) != 1 {
		t.Fatalf("splits = %v, want single payer split", data["splits"])
	}
	if got := splits[0].(map[string]any)["userId"]; got != e.payer.ID {
		t.Errorf("split userId = %v, want payer %s", got, e.payer.ID)
	}
	if got := e.store.Settlements(); len(got) != 0 {
		t.Errorf("settlements = %+v, want none without declared shares", got)
	}
}

func TestServer_CreateExpense_StringAmounts(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/expenses", e.payer.ID, map[string]any{
		"amount":   "90,00",
		"currency": "eur",
		"groupId":  e.group.ID,
		"splits": []map[string]any{
			{"userId": e.alice.ID, "amount": "30.00"},
			{"userId": e.bob.ID, "amount": "30"},
		},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	if got := data["amount"].(float64); got != 90.0 {
		t.Errorf("amount = %v, want 90", got)
	}
	if got := e.store.Settlements(); len(got) != 2 {
		t.Fatalf("settlements = %+v, want two rows", got)
	}
	for _, st := range e.store.Settlements() {
		if st.Amount.Cents != 3000 {
			t.Errorf("settlement amount = %d cents, want 3000", st.Amount.Cents)
		}
	}
}

func TestServer_CreateExpense_Unauthorized(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/expenses", "", map[string]any{
		"amount": 10.0, "currency": "eur",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Success {
		t.Error("success = true for unauthorized request")
	}
}

func TestServer_CreateExpense_Errors(t *testing.T) {
	e := newTestEnv(t)

	tests := []struct {
		name       string
		userID     string
		body       any
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "malformed body",
			userID:     e.payer.ID,
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid request body",
		},
		{
			name:       "unknown payer",
			userID:     "missing-user",
			body:       map[string]any{"amount": 10.0, "currency": "eur"},
			wantStatus: http.StatusNotFound,
			wantMsg:    "User not found",
		},
		{
			name:       "splits without group",
			userID:     e.payer.ID,
			body: map[string]any{
				"amount": 10.0, "currency": "eur",
				"splits": []map[string]any{{"userId": e.alice.ID, "amount": 5.0}},
			},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Splits require a groupId",
		},
		{
			name:       "negative amount",
			userID:     e.payer.ID,
			body:       map[string]any{"amount": -3.5, "currency": "eur"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid amount",
		},
		{
			name:       "non-numeric string amount",
			userID:     e.payer.ID,
			body:       map[string]any{"amount": "ten euros", "currency": "eur"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/expenses", tt.userID, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			env := decodeEnvelope(t, rec)
			if env.Success {
				t.Error("success = true for failed request")
			}
			if tt.wantMsg != "" && env.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", env.Message, tt.wantMsg)
			}
		})
	}
}

func TestServer_AdjustSettlement(t *testing.T) {
	e := newTestEnv(t)

	// A 90 EUR even expense leaves alice and bob owing 30 each.
	rec := e.do(t, http.MethodPost, "/expenses", e.payer.ID, map[string]any{
		"amount": 90.0, "currency": "eur", "groupId": e.group.ID,
		"splits": []map[string]any{
			{"userId": e.alice.ID, "amount": 30.0},
			{"userId": e.bob.ID, "amount": 30.0},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed expense: status = %d", rec.Code)
	}
	settlements := e.store.Settlements()
	if len(settlements) != 2 {
		t.Fatalf("seeded %d settlements, want 2", len(settlements))
	}
	target := settlements[0]

	rec = e.do(t, http.MethodPatch, "/settlements/"+target.ID, target.DebtorID, map[string]any{
		"senderId":   target.DebtorID,
		"receiverId": target.CreditorID,
		"amount":     10.0,
		"groupId":    target.GroupID,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Message != "Settlement updated successfully" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestServer_AdjustSettlement_NotFound(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPatch, "/settlements/unknown-id", e.payer.ID, map[string]any{
		"senderId":   e.alice.ID,
		"receiverId": e.payer.ID,
		"amount":     10.0,
	})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (body %s)", rec.Code, rec.Body.String())
	}
	if env := decodeEnvelope(t, rec); env.Message != "Settlement not found" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestServer_ListSettlements(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/expenses", e.payer.ID, map[string]any{
		"amount": 90.0, "currency": "eur", "groupId": e.group.ID,
		"splits": []map[string]any{
			{"userId": e.alice.ID, "amount": 30.0},
			{"userId": e.bob.ID, "amount": 30.0},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed expense: status = %d", rec.Code)
	}

	target := fmt.Sprintf("/groups/%s/settlements?userId=%s", e.group.ID, e.alice.ID)
	rec = e.do(t, http.MethodGet, target, e.alice.ID, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	list, ok := env.Data.([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("data = %v, want one settlement", env.Data)
	}
	row := list[0].(map[string]any)
	if row["creditorId"] != e.payer.ID || row["debtorId"] != e.alice.ID {
		t.Errorf("unexpected pair: %v", row)
	}
	if row["amount"].(float64) != 30.0 {
		t.Errorf("amount = %v, want 30", row["amount"])
	}
}

func TestServer_ListSettlements_UnknownGroup(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/groups/missing/settlements", e.payer.ID, nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (body %s)", rec.Code, rec.Body.String())
	}
	if env := decodeEnvelope(t, rec); env.Message != "Group not found" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestServer_SecurityHeaders(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/groups/missing/settlements", e.payer.ID, nil)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got == "" {
		t.Error("Content-Security-Policy header missing")
	}
}

func TestServer_Health(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /readyz = %d, want 404", rec.Code)
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:4431",
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header from untrusted peer is ignored",
			remoteAddr: "203.0.113.7:4431",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.9"},
			want:       "203.0.113.7",
		},
		{
			name:       "forwarded header from trusted proxy",
			remoteAddr: "10.0.0.5:1234",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.5"},
			want:       "198.51.100.9",
		},
		{
			name:       "real ip from trusted proxy",
			remoteAddr: "127.0.0.1:9999",
			headers:    map[string]string{"X-Real-IP": "198.51.100.20"},
			want:       "198.51.100.20",
		},
		{
			name:       "garbage forwarded value falls back to peer",
			remoteAddr: "192.168.1.10:80",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			want:       "192.168.1.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := extractClientIP(req); got != tt.want {
				t.Errorf("extractClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
