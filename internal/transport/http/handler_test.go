package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noah-Huppert/wallet-service/internal/auth"
	"github.com/Noah-Huppert/wallet-service/internal/model"
	"github.com/Noah-Huppert/wallet-service/internal/repository"
)

type mockService struct {
	authorities map[string]model.Authority

	entries    []model.Entry
	entriesErr error
	wallets    []model.Wallet
	walletsErr error

	createdEntry model.Entry
	consumeEntry model.Entry
	consumeErr   error

	gotAuthorityID  string
	gotEntryReq     model.EntryRequest
	gotEntryFilter  model.EntryFilter
	gotWalletFilter model.WalletFilter
	gotConsumeID    string
}

func (m *mockService) Authority(ctx context.Context, id string) (model.Authority, error) {
	if a, ok := m.authorities[id]; ok {
		return a, nil
	}
	return model.Authority{}, repository.ErrAuthorityNotFound
}

func (m *mockService) CreateAuthority(ctx context.Context, name string, owner model.Owner, publicKey string) (model.Authority, error) {
	return model.Authority{}, nil
}

func (m *mockService) CreateEntry(ctx context.Context, authorityID string, req model.EntryRequest) (model.Entry, error) {
	m.gotAuthorityID = authorityID
	m.gotEntryReq = req
	return m.createdEntry, nil
}

func (m *mockService) Entries(ctx context.Context, filter model.EntryFilter) ([]model.Entry, error) {
	m.gotEntryFilter = filter
	return m.entries, m.entriesErr
}

func (m *mockService) ConsumeItem(ctx context.Context, entryID string) (model.Entry, error) {
	m.gotConsumeID = entryID
	return m.consumeEntry, m.consumeErr
}

func (m *mockService) Wallets(ctx context.Context, filter model.WalletFilter) ([]model.Wallet, error) {
	m.gotWalletFilter = filter
	return m.wallets, m.walletsErr
}

func (m *mockService) RecordEvent(ctx context.Context, event model.EntryEvent) error {
	return nil
}

// newTestServer builds a server over the mock service plus a token signer
// for a registered test authority.
func newTestServer(t *testing.T, svc *mockService, apiNotOkay string) (http.Handler, func() string) {
	t.Helper()

	pair, err := auth.GenerateKeyPair()
	require.NoError(t, err)

	if svc.authorities == nil {
		svc.authorities = map[string]model.Authority{}
	}
	svc.authorities["auth-a"] = model.Authority{
		ID:        "auth-a",
		Name:      "Test Authority",
		Owner:     model.Owner{Contact: "owner@example.com", Nickname: "owner"},
		PublicKey: pair.PublicPEM,
	}

	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pair.PrivatePEM))
	require.NoError(t, err)

	sign := func() string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.RegisteredClaims{
			Subject:   "auth-a",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(key)
		require.NoError(t, err)
		return raw
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authn := auth.NewAuthenticator(svc, logger)
	server := NewServer(":0", svc, authn, nil, apiNotOkay, logger)

	return server.srv.Handler, sign
}

func doRequest(handler http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	handler, _ := newTestServer(t, &mockService{}, "")

	rec := doRequest(handler, http.MethodGet, "/api/v1/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"version":"1.0.0"}`, rec.Body.String())
}

func TestHealthNotOkay(t *testing.T) {
	handler, _ := newTestServer(t, &mockService{}, "draining")

	rec := doRequest(handler, http.MethodGet, "/api/v1/health", "", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"draining","version":"1.0.0"}`, rec.Body.String())
}

func TestWalletsRequiresAuth(t *testing.T) {
	handler, _ := newTestServer(t, &mockService{}, "")

	rec := doRequest(handler, http.MethodGet, "/api/v1/wallet", "", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authorization data required"}`, rec.Body.String())
}

func TestWallets(t *testing.T) {
	svc := &mockService{wallets: []model.Wallet{
		{UserID: "u1", Total: 70},
		{UserID: "u2", Total: -5},
	}}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodGet,
		"/api/v1/wallet?user_ids=u1,u2&authority_ids=auth-a", sign(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"wallets":[{"user_id":"u1","total":70},{"user_id":"u2","total":-5}]}`,
		rec.Body.String())
	assert.Equal(t, []string{"u1", "u2"}, svc.gotWalletFilter.UserIDs)
	assert.Equal(t, []string{"auth-a"}, svc.gotWalletFilter.AuthorityIDs)
}

func TestWalletsEmpty(t *testing.T) {
	svc := &mockService{}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodGet, "/api/v1/wallet", sign(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"wallets":[]}`, rec.Body.String())
	assert.Empty(t, svc.gotWalletFilter.UserIDs)
}

func TestWalletsInternalError(t *testing.T) {
	svc := &mockService{walletsErr: errors.New("connection refused")}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodGet, "/api/v1/wallet", sign(), "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"an internal error has occurred"}`, rec.Body.String())
}

func TestCreateEntry(t *testing.T) {
	createdOn := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := &mockService{createdEntry: model.Entry{
		ID:          "e1",
		AuthorityID: "auth-a",
		UserID:      "u1",
		CreatedOn:   createdOn,
		Amount:      100,
		Reason:      "bonus",
	}}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodPost, "/api/v1/entry", sign(),
		`{"user_id":"u1","amount":100,"reason":"bonus"}`)

	assert.Equal(t, http.StatusOK, rec.Code)

	// Attribution comes from the verified token, not the body.
	assert.Equal(t, "auth-a", svc.gotAuthorityID)
	assert.Equal(t, "u1", svc.gotEntryReq.UserID)
	require.NotNil(t, svc.gotEntryReq.Amount)
	assert.Equal(t, int64(100), *svc.gotEntryReq.Amount)

	var resp struct {
		Entry entryPayload `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "e1", resp.Entry.EntryID)
	assert.Equal(t, createdOn.Unix(), resp.Entry.CreatedOn)
}

func TestCreateEntryWithItem(t *testing.T) {
	svc := &mockService{createdEntry: model.Entry{
		ID: "e1", AuthorityID: "auth-a", UserID: "u1",
		Item: &model.Item{Name: "sword", Used: false},
	}}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodPost, "/api/v1/entry", sign(),
		`{"user_id":"u1","amount":0,"reason":"loot","item":{"name":"sword","data":{"rarity":"epic"}}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.gotEntryReq.Item)
	assert.Equal(t, "sword", svc.gotEntryReq.Item.Name)
	assert.Equal(t, "epic", svc.gotEntryReq.Item.Data["rarity"])
}

func TestCreateEntryValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing user_id", body: `{"amount":1,"reason":"x"}`, field: "user_id"},
		{name: "missing amount", body: `{"user_id":"u1","reason":"x"}`, field: "amount"},
		{name: "missing reason", body: `{"user_id":"u1","amount":1}`, field: "reason"},
		{name: "item without name", body: `{"user_id":"u1","amount":1,"reason":"x","item":{"data":{}}}`, field: "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			handler, sign := newTestServer(t, svc, "")

			rec := doRequest(handler, http.MethodPost, "/api/v1/entry", sign(), tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.field, resp["field"])
		})
	}
}

func TestCreateEntryMalformedBody(t *testing.T) {
	svc := &mockService{}
	handler, sign := newTestServer(t, svc, "")

	for _, body := range []string{
		`{"user_id":"u1","amount":1.5,"reason":"x"}`,
		`{"user_id":"u1","amount":1,"reason":"x","bogus":true}`,
		`not json`,
	} {
		rec := doRequest(handler, http.MethodPost, "/api/v1/entry", sign(), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
}

func TestInventory(t *testing.T) {
	svc := &mockService{entries: []model.Entry{
		{
			ID: "e1", AuthorityID: "auth-a", UserID: "u1", Amount: 10,
			Item: &model.Item{Name: "potion", Used: true},
		},
	}}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodGet, "/api/v1/entry/inventory?used=true", sign(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"inventory":[{"entry_id":"e1","authority_id":"auth-a","user_id":"u1","item":{"name":"potion","used":true}}]}`,
		rec.Body.String())

	require.NotNil(t, svc.gotEntryFilter.HasItem)
	assert.True(t, *svc.gotEntryFilter.HasItem, "inventory listing must only cover entries with items")
	require.NotNil(t, svc.gotEntryFilter.Used)
	assert.True(t, *svc.gotEntryFilter.Used)
}

func TestInventoryUsedUnspecified(t *testing.T) {
	svc := &mockService{}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodGet, "/api/v1/entry/inventory", sign(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.gotEntryFilter.Used)
}

func TestInventoryBadUsedParam(t *testing.T) {
	svc := &mockService{}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodGet, "/api/v1/entry/inventory?used=maybe", sign(), "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsumeItem(t *testing.T) {
	svc := &mockService{consumeEntry: model.Entry{
		ID: "e1", AuthorityID: "auth-a", UserID: "u1",
		Item: &model.Item{Name: "potion", Used: true},
	}}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodPost, "/api/v1/entry/e1/inventory/use", sign(), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "e1", svc.gotConsumeID)

	var resp struct {
		Entry entryPayload `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Entry.Item)
	assert.True(t, resp.Entry.Item.Used)
}

func TestConsumeItemNotFound(t *testing.T) {
	svc := &mockService{consumeErr: repository.ErrEntryNotFound}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodPost, "/api/v1/entry/missing/inventory/use", sign(), "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestConsumeItemAlreadyUsed(t *testing.T) {
	svc := &mockService{consumeErr: repository.ErrItemUsed}
	handler, sign := newTestServer(t, svc, "")

	rec := doRequest(handler, http.MethodPost, "/api/v1/entry/e1/inventory/use", sign(), "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"item already used"}`, rec.Body.String())
}
