package zoho

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"leavedesk/backend/config"
	"leavedesk/backend/internal/model"
)

// ── 测试夹具 ──

var fixedNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

type memStore struct {
	mu      sync.Mutex
	conns   map[string]*model.ZohoConnection
	updates int
}

func newMemStore(conns ...*model.ZohoConnection) *memStore {
	s := &memStore{conns: make(map[string]*model.ZohoConnection)}
	for _, c := range conns {
		s.conns[c.OrgID] = c
	}
	return s
}

func (s *memStore) GetByOrgID(_ context.Context, orgID string) (*model.ZohoConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[orgID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) UpdateAccessToken(_ context.Context, orgID, token string, expiresAt time.Time, rotated string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[orgID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.AccessToken = token
	c.ExpiresAt = expiresAt
	if rotated != "" {
		c.RefreshToken = rotated
	}
	s.updates++
	return nil
}

func (s *memStore) get(orgID string) model.ZohoConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.conns[orgID]
}

// fakeZoho 同时模拟 accounts 与 people 两个域名的最小 Zoho 服务
type fakeZoho struct {
	srv *httptest.Server

	tokenCalls int32
	dataCalls  int32

	// tokenHandler 处理 /oauth/v2/token；dataHandler 处理其余路径
	tokenHandler http.HandlerFunc
	dataHandler  http.HandlerFunc

	mu          sync.Mutex
	seenAuth    []string
	lastTokenRq map[string]string
}

func newFakeZoho() *fakeZoho {
	f := &fakeZoho{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == PathToken {
			atomic.AddInt32(&f.tokenCalls, 1)
			_ = r.ParseForm()
			f.mu.Lock()
			f.lastTokenRq = map[string]string{}
			for k := range r.PostForm {
				f.lastTokenRq[k] = r.PostForm.Get(k)
			}
			f.mu.Unlock()
			f.tokenHandler(w, r)
			return
		}
		atomic.AddInt32(&f.dataCalls, 1)
		f.mu.Lock()
		f.seenAuth = append(f.seenAuth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		f.dataHandler(w, r)
	}))
	return f
}

func (f *fakeZoho) Close() { f.srv.Close() }

func (f *fakeZoho) tokenForm(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastTokenRq[key]
}

func (f *fakeZoho) authHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seenAuth...)
}

func jsonReply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func testZohoConfig() *config.ZohoConfig {
	return &config.ZohoConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/api/v1/integrations/zoho/callback",
	}
}

func newTestOAuth(f *fakeZoho) *OAuthClient {
	return NewOAuthClient(testZohoConfig(), f.srv.Client()).WithClock(fixedClock)
}

func newConn(f *fakeZoho, expiresAt time.Time) *model.ZohoConnection {
	return &model.ZohoConnection{
		OrgID:           "org-1",
		AccountsBaseURL: f.srv.URL,
		PeopleBaseURL:   f.srv.URL,
		AccessToken:     "T-stale",
		RefreshToken:    "R1",
		ExpiresAt:       expiresAt,
	}
}

func (s *memStore) snap(orgID string) *model.ZohoConnection {
	c := s.get(orgID)
	return &c
}
