package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"leavedesk/backend/config"
	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/zoho"
)

// ── 测试辅助 ──

var zohoNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

// fakeAccounts 模拟 Zoho accounts 的 token 端点
type fakeAccounts struct {
	mu       sync.Mutex
	forms    []url.Values
	status   int
	response map[string]interface{}
}

func (f *fakeAccounts) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != zoho.PathToken || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	_ = r.ParseForm()
	f.mu.Lock()
	f.forms = append(f.forms, r.PostForm)
	status, body := f.status, f.response
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func setupTestZohoAuth(t *testing.T) (*zohoAuthService, *testRepos, *fakeAccounts) {
	t.Helper()
	accounts := &fakeAccounts{response: map[string]interface{}{
		"access_token":  "T1",
		"refresh_token": "R1",
		"expires_in":    3600,
		"api_domain":    "https://www.zohoapis.com",
		"token_type":    "Bearer",
	}}
	srv := httptest.NewServer(accounts)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Zoho: config.ZohoConfig{
			ClientID:            "client-id",
			ClientSecret:        "client-secret",
			RedirectURI:         "https://leave.example.com/api/v1/zoho/callback",
			AccountsBaseURL:     srv.URL,
			FrontendRedirectURL: "https://leave.example.com/settings/zoho",
			StateTTL:            10 * time.Minute,
		},
		Feature: config.FeatureConfig{ZohoIntegrationEnabled: true},
	}
	repos := newTestRepos()
	repos.seedOrg()

	oauth := zoho.NewOAuthClient(&cfg.Zoho, srv.Client()).WithClock(func() time.Time { return zohoNow })
	svc := NewZohoAuthService(cfg, repos.repo, oauth, NewDBStateStore(repos.oauthStates), zap.NewNop()).(*zohoAuthService)
	return svc, repos, accounts
}

func stateFromURL(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("授权地址无效: %v", err)
	}
	return u.Query().Get("state")
}

// ── state 编解码 ──

func TestOAuthState_RoundTrip(t *testing.T) {
	nonce := strings.Repeat("a", stateNonceLength)
	encoded, err := encodeState(oauthState{OrgID: testOrg, UserID: "admin", Nonce: nonce})
	if err != nil {
		t.Fatalf("编码失败: %v", err)
	}
	if strings.ContainsAny(encoded, "+/=") {
		t.Errorf("state 应为 URL 安全编码: %s", encoded)
	}

	st, err := decodeState(encoded)
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if st.OrgID != testOrg || st.UserID != "admin" || st.Nonce != nonce {
		t.Errorf("解码结果不符: %+v", st)
	}
}

func TestOAuthState_Malformed(t *testing.T) {
	short, _ := encodeState(oauthState{OrgID: testOrg, UserID: "admin", Nonce: "short"})
	noOrg, _ := encodeState(oauthState{UserID: "admin", Nonce: strings.Repeat("a", stateNonceLength)})

	for _, s := range []string{"%%%", "bm90LWpzb24", short, noOrg} {
		if _, err := decodeState(s); !errors.Is(err, ErrOAuthStateMalformed) {
			t.Errorf("state %q 期望 ErrOAuthStateMalformed，实际: %v", s, err)
		}
	}
}

// ── Initiate ──

func TestInitiate(t *testing.T) {
	svc, repos, _ := setupTestZohoAuth(t)
	ctx := context.Background()

	if _, err := svc.Initiate(ctx, "emp", model.RoleEmployee, testOrg); !errors.Is(err, ErrZohoAdminOnly) {
		t.Errorf("期望 ErrZohoAdminOnly，实际: %v", err)
	}

	resp, err := svc.Initiate(ctx, "admin", model.RoleAdmin, testOrg)
	if err != nil {
		t.Fatalf("发起授权失败: %v", err)
	}
	u, _ := url.Parse(resp.AuthURL)
	q := u.Query()
	if u.Path != zoho.PathAuthorize {
		t.Errorf("授权路径不符: %s", u.Path)
	}
	if q.Get("client_id") != "client-id" || q.Get("access_type") != "offline" || q.Get("prompt") != "consent" {
		t.Errorf("授权参数不符: %v", q)
	}
	if q.Get("redirect_uri") != svc.cfg.Zoho.RedirectURI || q.Get("state") != resp.State {
		t.Errorf("redirect_uri/state 不符: %v", q)
	}
	if strings.Contains(resp.AuthURL, "client-secret") {
		t.Error("授权地址不能包含 client secret")
	}
	if len(repos.oauthStates.states) != 1 {
		t.Errorf("期望保存一条 state，实际: %d", len(repos.oauthStates.states))
	}
}

func TestInitiate_Disabled(t *testing.T) {
	svc, _, _ := setupTestZohoAuth(t)
	svc.cfg.Feature.ZohoIntegrationEnabled = false

	if _, err := svc.Initiate(context.Background(), "admin", model.RoleAdmin, testOrg); !errors.Is(err, ErrZohoDisabled) {
		t.Errorf("期望 ErrZohoDisabled，实际: %v", err)
	}
}

// ── Callback ──

func TestCallback_StoresConnection(t *testing.T) {
	svc, repos, accounts := setupTestZohoAuth(t)
	ctx := context.Background()

	auth, err := svc.Initiate(ctx, "admin", model.RoleAdmin, testOrg)
	if err != nil {
		t.Fatalf("发起授权失败: %v", err)
	}

	resp, err := svc.Callback(ctx, &dto.ZohoCallbackRequest{Code: "C", State: stateFromURL(t, auth.AuthURL)})
	if err != nil {
		t.Fatalf("回调失败: %v", err)
	}
	if !resp.Success || resp.OrgID != testOrg {
		t.Errorf("回调结果不符: %+v", resp)
	}

	conn := repos.zohoConns.conns[testOrg]
	if conn == nil {
		t.Fatal("期望写入连接")
	}
	if conn.AccessToken != "T1" || conn.RefreshToken != "R1" {
		t.Errorf("token 不符: %s / %s", conn.AccessToken, conn.RefreshToken)
	}
	if !conn.ExpiresAt.Equal(zohoNow.Add(time.Hour)) {
		t.Errorf("期望过期时间 %v，实际: %v", zohoNow.Add(time.Hour), conn.ExpiresAt)
	}
	if conn.PeopleBaseURL != "https://people.zoho.com" {
		t.Errorf("people 地址应由 api_domain 推导，实际: %s", conn.PeopleBaseURL)
	}
	if conn.ConnectedBy == nil || *conn.ConnectedBy != "admin" {
		t.Errorf("connected_by 不符: %v", conn.ConnectedBy)
	}

	form := accounts.forms[0]
	if form.Get("grant_type") != "authorization_code" || form.Get("code") != "C" ||
		form.Get("client_secret") != "client-secret" || form.Get("redirect_uri") != svc.cfg.Zoho.RedirectURI {
		t.Errorf("换取请求参数不符: %v", form)
	}
	if actions := repos.audits.actions(); len(actions) != 1 || actions[0] != "zoho_connected" {
		t.Errorf("期望一条 zoho_connected 审计，实际: %v", actions)
	}

	// state 只能使用一次
	_, err = svc.Callback(ctx, &dto.ZohoCallbackRequest{Code: "C", State: auth.State})
	if !errors.Is(err, ErrOAuthStateInvalid) {
		t.Errorf("重放 state 期望 ErrOAuthStateInvalid，实际: %v", err)
	}
}

func TestCallback_ReconnectOverwrites(t *testing.T) {
	svc, repos, accounts := setupTestZohoAuth(t)
	ctx := context.Background()
	repos.zohoConns.conns[testOrg] = &model.ZohoConnection{ConnectionID: "conn-old", OrgID: testOrg, AccessToken: "OLD", RefreshToken: "OLD-R"}

	accounts.response["access_token"] = "T2"
	accounts.response["refresh_token"] = "R2"
	auth, _ := svc.Initiate(ctx, "admin", model.RoleAdmin, testOrg)
	if _, err := svc.Callback(ctx, &dto.ZohoCallbackRequest{Code: "C2", State: auth.State}); err != nil {
		t.Fatalf("回调失败: %v", err)
	}

	conn := repos.zohoConns.conns[testOrg]
	if len(repos.zohoConns.conns) != 1 || conn.ConnectionID != "conn-old" || conn.AccessToken != "T2" || conn.RefreshToken != "R2" {
		t.Errorf("重新授权应覆盖同一连接，实际: %+v", conn)
	}
}

func TestCallback_Rejections(t *testing.T) {
	svc, repos, accounts := setupTestZohoAuth(t)
	ctx := context.Background()

	if _, err := svc.Callback(ctx, &dto.ZohoCallbackRequest{Error: "access_denied"}); !errors.Is(err, ErrZohoAuthorizationDenied) {
		t.Errorf("期望 ErrZohoAuthorizationDenied，实际: %v", err)
	}
	if _, err := svc.Callback(ctx, &dto.ZohoCallbackRequest{Code: "C"}); !errors.Is(err, ErrZohoCallbackParams) {
		t.Errorf("期望 ErrZohoCallbackParams，实际: %v", err)
	}

	// 未登记的 nonce
	unknown, _ := encodeState(oauthState{OrgID: testOrg, UserID: "admin", Nonce: strings.Repeat("x", stateNonceLength)})
	if _, err := svc.Callback(ctx, &dto.ZohoCallbackRequest{Code: "C", State: unknown}); !errors.Is(err, ErrOAuthStateInvalid) {
		t.Errorf("期望 ErrOAuthStateInvalid，实际: %v", err)
	}

	// 篡改 state 中的用户
	auth, _ := svc.Initiate(ctx, "admin", model.RoleAdmin, testOrg)
	st, _ := decodeState(auth.State)
	st.UserID = "emp"
	forged, _ := encodeState(*st)
	if _, err := svc.Callback(ctx, &dto.ZohoCallbackRequest{Code: "C", State: forged}); !errors.Is(err, ErrOAuthStateInvalid) {
		t.Errorf("篡改的 state 期望 ErrOAuthStateInvalid，实际: %v", err)
	}

	// 非法 accounts-server
	auth, _ = svc.Initiate(ctx, "admin", model.RoleAdmin, testOrg)
	_, err := svc.Callback(ctx, &dto.ZohoCallbackRequest{Code: "C", State: auth.State, AccountsServer: "https://accounts.evil.example"})
	if !errors.Is(err, ErrInvalidAccountsServer) {
		t.Errorf("期望 ErrInvalidAccountsServer，实际: %v", err)
	}

	if len(accounts.forms) != 0 {
		t.Errorf("以上情况都不应请求 token 端点，实际: %d 次", len(accounts.forms))
	}
	if len(repos.zohoConns.conns) != 0 {
		t.Error("失败的回调不应写入连接")
	}
}

func TestCallback_ExchangeFailures(t *testing.T) {
	svc, repos, accounts := setupTestZohoAuth(t)
	ctx := context.Background()

	accounts.status = http.StatusBadRequest
	accounts.response = map[string]interface{}{"error": "invalid_code"}
	auth, _ := svc.Initiate(ctx, "admin", model.RoleAdmin, testOrg)
	_, err := svc.Callback(ctx, &dto.ZohoCallbackRequest{Code: "bad", State: auth.State})
	if !errors.Is(err, zoho.ErrExchangeFailed) {
		t.Errorf("期望 ErrExchangeFailed，实际: %v", err)
	}
	if got := svc.FrontendRedirectURL(err); !strings.Contains(got, "error=exchange_failed") {
		t.Errorf("跳转地址应带 exchange_failed，实际: %s", got)
	}

	accounts.status = http.StatusOK
	accounts.response = map[string]interface{}{"access_token": "T1", "expires_in": 3600, "token_type": "Bearer"}
	auth, _ = svc.Initiate(ctx, "admin", model.RoleAdmin, testOrg)
	_, err = svc.Callback(ctx, &dto.ZohoCallbackRequest{Code: "C", State: auth.State})
	if !errors.Is(err, zoho.ErrMissingRefreshToken) {
		t.Errorf("期望 ErrMissingRefreshToken，实际: %v", err)
	}

	if len(repos.zohoConns.conns) != 0 {
		t.Error("换取失败时不应写入连接")
	}
}

// ── Status / Disconnect ──

func TestStatusAndDisconnect(t *testing.T) {
	svc, repos, _ := setupTestZohoAuth(t)
	ctx := context.Background()
	svc.now = func() time.Time { return zohoNow }

	status, err := svc.Status(ctx, testOrg)
	if err != nil || status.Connected {
		t.Fatalf("未连接时应返回 connected=false，实际: %+v %v", status, err)
	}

	repos.zohoConns.conns[testOrg] = &model.ZohoConnection{
		ConnectionID:    "c1",
		OrgID:           testOrg,
		AccountsBaseURL: "https://accounts.zoho.eu",
		PeopleBaseURL:   "https://people.zoho.eu",
		AccessToken:     "T1",
		RefreshToken:    "R1",
		ExpiresAt:       zohoNow.Add(-time.Minute),
	}
	status, _ = svc.Status(ctx, testOrg)
	if !status.Connected || !status.Expired || status.PeopleBaseURL != "https://people.zoho.eu" {
		t.Errorf("状态不符: %+v", status)
	}

	if err := svc.Disconnect(ctx, testOrg, "admin"); err != nil {
		t.Fatalf("断开失败: %v", err)
	}
	if err := svc.Disconnect(ctx, testOrg, "admin"); !errors.Is(err, zoho.ErrNotConnected) {
		t.Errorf("重复断开期望 ErrNotConnected，实际: %v", err)
	}
	if actions := repos.audits.actions(); len(actions) != 1 || actions[0] != "zoho_disconnected" {
		t.Errorf("期望一条 zoho_disconnected 审计，实际: %v", actions)
	}
}

func TestFrontendRedirectURL(t *testing.T) {
	svc, _, _ := setupTestZohoAuth(t)

	if got := svc.FrontendRedirectURL(nil); got != "https://leave.example.com/settings/zoho?success=true" {
		t.Errorf("成功跳转地址不符: %s", got)
	}
	if got := svc.FrontendRedirectURL(ErrOAuthStateInvalid); got != "https://leave.example.com/settings/zoho?error=invalid_state" {
		t.Errorf("失败跳转地址不符: %s", got)
	}
	if got := svc.FrontendRedirectURL(errors.New("boom")); !strings.HasSuffix(got, "error=server_error") {
		t.Errorf("内部错误不应暴露细节: %s", got)
	}
}

// ── DB state 存储 ──

func TestDBStateStore_Expiry(t *testing.T) {
	repos := newTestRepos()
	store := NewDBStateStore(repos.oauthStates).(*dbStateStore)
	store.now = func() time.Time { return zohoNow }
	ctx := context.Background()

	_ = store.Save(ctx, "n1", PendingAuthorization{OrgID: testOrg, UserID: "admin", ExpiresAt: zohoNow.Add(-time.Second)})
	if _, err := store.Take(ctx, "n1"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("过期 state 期望 ErrStateNotFound，实际: %v", err)
	}

	_ = store.Save(ctx, "n2", PendingAuthorization{OrgID: testOrg, UserID: "admin", RedirectURI: "https://x", ExpiresAt: zohoNow.Add(time.Minute)})
	p, err := store.Take(ctx, "n2")
	if err != nil || p.RedirectURI != "https://x" {
		t.Fatalf("读取 state 失败: %+v %v", p, err)
	}
	if _, err := store.Take(ctx, "n2"); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("state 应一次性消费，实际: %v", err)
	}
}
