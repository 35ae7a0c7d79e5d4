package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
	pkgerrors "leavedesk/backend/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

// put 直接写入测试数据
func (m *mockUserRepo) put(u *model.User) *model.User {
	cp := *u
	m.users[u.UserID] = &cp
	return u
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	if user.UserID == "" {
		m.seq++
		user.UserID = fmt.Sprintf("user-%d", m.seq)
	}
	user.CreatedAt = time.Now()
	cp := *user
	cp.Manager = nil
	m.users[user.UserID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	if cp.ManagerID != nil {
		if mgr, ok := m.users[*cp.ManagerID]; ok {
			mcp := *mgr
			cp.Manager = &mcp
		}
	}
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	if _, ok := m.users[user.UserID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *user
	cp.Manager = nil
	m.users[user.UserID] = &cp
	return nil
}

func (m *mockUserRepo) List(_ context.Context, filter repository.UserFilter, offset, limit int) ([]model.User, int64, error) {
	var all []model.User
	for _, u := range m.users {
		if filter.OrgID != "" && u.OrgID != filter.OrgID {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.ManagerID != "" && (u.ManagerID == nil || *u.ManagerID != filter.ManagerID) {
			continue
		}
		if filter.Keyword != "" && !strings.Contains(u.FullName()+" "+u.Email, filter.Keyword) {
			continue
		}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	return paginate(all, offset, limit), int64(len(all)), nil
}

// ── Mock LeaveRequestRepository ──

type mockLeaveRequestRepo struct {
	reqs  map[string]*model.LeaveRequest
	users *mockUserRepo
	seq   int
}

func newMockLeaveRequestRepo(users *mockUserRepo) *mockLeaveRequestRepo {
	return &mockLeaveRequestRepo{reqs: make(map[string]*model.LeaveRequest), users: users}
}

func (m *mockLeaveRequestRepo) Create(_ context.Context, req *model.LeaveRequest) error {
	if req.LeaveRequestID == "" {
		m.seq++
		req.LeaveRequestID = fmt.Sprintf("leave-%d", m.seq)
	}
	if req.Version == 0 {
		req.Version = 1
	}
	now := time.Now()
	req.CreatedAt, req.UpdatedAt = now, now
	cp := *req
	cp.User = nil
	m.reqs[req.LeaveRequestID] = &cp
	return nil
}

func (m *mockLeaveRequestRepo) GetByID(ctx context.Context, id string) (*model.LeaveRequest, error) {
	r, ok := m.reqs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m.withUser(ctx, r), nil
}

func (m *mockLeaveRequestRepo) withUser(ctx context.Context, r *model.LeaveRequest) *model.LeaveRequest {
	cp := *r
	if u, err := m.users.GetByID(ctx, r.UserID); err == nil {
		cp.User = u
	}
	return &cp
}

func (m *mockLeaveRequestRepo) UpdateStatus(_ context.Context, req *model.LeaveRequest, fromStatus string) error {
	stored, ok := m.reqs[req.LeaveRequestID]
	if !ok || stored.Status != fromStatus || stored.Version != req.Version {
		return pkgerrors.ErrOptimisticLock
	}
	stored.Status = req.Status
	stored.Comments = req.Comments
	stored.UpdatedBy = req.UpdatedBy
	stored.UpdatedAt = req.UpdatedAt
	stored.Version++
	req.Version++
	return nil
}

func (m *mockLeaveRequestRepo) FindOverlapping(_ context.Context, userID string, start, end time.Time) ([]model.LeaveRequest, error) {
	var result []model.LeaveRequest
	for _, r := range m.reqs {
		if r.UserID != userID {
			continue
		}
		if r.Status != model.LeaveStatusPending && r.Status != model.LeaveStatusApproved {
			continue
		}
		if !r.StartDate.After(end) && !r.EndDate.Before(start) {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (m *mockLeaveRequestRepo) filter(ctx context.Context, f repository.LeaveRequestFilter) []model.LeaveRequest {
	var all []model.LeaveRequest
	for _, r := range m.reqs {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.ManagerID != "" {
			owner, ok := m.users.users[r.UserID]
			if !ok || owner.ManagerID == nil || *owner.ManagerID != f.ManagerID {
				continue
			}
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.LeaveType != "" && r.LeaveType != f.LeaveType {
			continue
		}
		if f.From != nil && r.EndDate.Before(*f.From) {
			continue
		}
		if f.To != nil && r.StartDate.After(*f.To) {
			continue
		}
		all = append(all, *m.withUser(ctx, r))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LeaveRequestID < all[j].LeaveRequestID })
	return all
}

func (m *mockLeaveRequestRepo) List(ctx context.Context, f repository.LeaveRequestFilter, offset, limit int) ([]model.LeaveRequest, int64, error) {
	all := m.filter(ctx, f)
	return paginate(all, offset, limit), int64(len(all)), nil
}

func (m *mockLeaveRequestRepo) ListAll(ctx context.Context, f repository.LeaveRequestFilter) ([]model.LeaveRequest, error) {
	return m.filter(ctx, f), nil
}

// ── Mock LeaveApprovalRepository ──

type mockLeaveApprovalRepo struct {
	approvals []model.LeaveApproval
}

func (m *mockLeaveApprovalRepo) Create(_ context.Context, a *model.LeaveApproval) error {
	if a.ApprovalID == "" {
		a.ApprovalID = fmt.Sprintf("approval-%d", len(m.approvals)+1)
	}
	m.approvals = append(m.approvals, *a)
	return nil
}

func (m *mockLeaveApprovalRepo) ListByRequest(_ context.Context, leaveRequestID string) ([]model.LeaveApproval, error) {
	var result []model.LeaveApproval
	for _, a := range m.approvals {
		if a.LeaveRequestID == leaveRequestID {
			result = append(result, a)
		}
	}
	return result, nil
}

// ── Mock LeaveBalanceRepository ──

type mockLeaveBalanceRepo struct {
	balances []*model.LeaveBalance
	batchErr error
}

func (m *mockLeaveBalanceRepo) Get(_ context.Context, userID, leaveType string, year int) (*model.LeaveBalance, error) {
	for _, b := range m.balances {
		if b.UserID == userID && b.LeaveType == leaveType && b.Year == year {
			cp := *b
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockLeaveBalanceRepo) ListByUser(_ context.Context, userID string, year int) ([]model.LeaveBalance, error) {
	var result []model.LeaveBalance
	for _, b := range m.balances {
		if b.UserID == userID && b.Year == year {
			result = append(result, *b)
		}
	}
	return result, nil
}

func (m *mockLeaveBalanceRepo) BatchCreate(ctx context.Context, balances []model.LeaveBalance) error {
	if m.batchErr != nil {
		return m.batchErr
	}
	for i := range balances {
		b := balances[i]
		if _, err := m.Get(ctx, b.UserID, b.LeaveType, b.Year); err == nil {
			continue
		}
		b.LeaveBalanceID = fmt.Sprintf("balance-%d", len(m.balances)+1)
		m.balances = append(m.balances, &b)
	}
	return nil
}

func (m *mockLeaveBalanceRepo) Deduct(_ context.Context, balanceID string, days float64) error {
	for _, b := range m.balances {
		if b.LeaveBalanceID == balanceID {
			b.UsedDays += days
			b.AvailableDays -= days
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ── Mock LeavePolicyRepository ──

type mockLeavePolicyRepo struct {
	policies []*model.LeavePolicy
}

func (m *mockLeavePolicyRepo) Create(_ context.Context, p *model.LeavePolicy) error {
	if p.LeavePolicyID == "" {
		p.LeavePolicyID = fmt.Sprintf("policy-%d", len(m.policies)+1)
	}
	cp := *p
	m.policies = append(m.policies, &cp)
	return nil
}

func (m *mockLeavePolicyRepo) GetByID(_ context.Context, id string) (*model.LeavePolicy, error) {
	for _, p := range m.policies {
		if p.LeavePolicyID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockLeavePolicyRepo) GetActiveByType(_ context.Context, leaveType string) (*model.LeavePolicy, error) {
	for _, p := range m.policies {
		if p.LeaveType == leaveType && p.IsActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockLeavePolicyRepo) List(_ context.Context, activeOnly bool) ([]model.LeavePolicy, error) {
	var result []model.LeavePolicy
	for _, p := range m.policies {
		if activeOnly && !p.IsActive {
			continue
		}
		result = append(result, *p)
	}
	return result, nil
}

func (m *mockLeavePolicyRepo) Update(_ context.Context, p *model.LeavePolicy) error {
	for i, existing := range m.policies {
		if existing.LeavePolicyID == p.LeavePolicyID {
			cp := *p
			m.policies[i] = &cp
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ── Mock AuditLogRepository ──

type mockAuditLogRepo struct {
	mu      sync.Mutex
	entries []model.AuditLog
	err     error
}

func (m *mockAuditLogRepo) Create(_ context.Context, entry *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	entry.AuditLogID = fmt.Sprintf("audit-%d", len(m.entries)+1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *mockAuditLogRepo) List(_ context.Context, f repository.AuditLogFilter, offset, limit int) ([]model.AuditLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.AuditLog
	for _, e := range m.entries {
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.Table != "" && e.Table != f.Table {
			continue
		}
		if f.UserID != "" && (e.UserID == nil || *e.UserID != f.UserID) {
			continue
		}
		if f.RecordID != "" && (e.RecordID == nil || *e.RecordID != f.RecordID) {
			continue
		}
		all = append(all, e)
	}
	return paginate(all, offset, limit), int64(len(all)), nil
}

// actions 按写入顺序返回全部 action
func (m *mockAuditLogRepo) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	mu    sync.Mutex
	items []*model.Notification
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.NotificationID = fmt.Sprintf("notif-%d", len(m.items)+1)
	n.CreatedAt = time.Now()
	cp := *n
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, offset, limit int) ([]model.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.Notification
	for _, n := range m.items {
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		all = append(all, *n)
	}
	return paginate(all, offset, limit), int64(len(all)), nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.NotificationID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

// ── Mock Zoho repositories ──

type mockZohoConnectionRepo struct {
	conns map[string]*model.ZohoConnection
}

func newMockZohoConnectionRepo() *mockZohoConnectionRepo {
	return &mockZohoConnectionRepo{conns: make(map[string]*model.ZohoConnection)}
}

func (m *mockZohoConnectionRepo) GetByOrgID(_ context.Context, orgID string) (*model.ZohoConnection, error) {
	c, ok := m.conns[orgID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockZohoConnectionRepo) Upsert(_ context.Context, conn *model.ZohoConnection) error {
	if existing, ok := m.conns[conn.OrgID]; ok {
		conn.ConnectionID = existing.ConnectionID
	} else if conn.ConnectionID == "" {
		conn.ConnectionID = "conn-" + conn.OrgID
	}
	conn.UpdatedAt = time.Now()
	cp := *conn
	m.conns[conn.OrgID] = &cp
	return nil
}

func (m *mockZohoConnectionRepo) UpdateAccessToken(_ context.Context, orgID, token string, expiresAt time.Time, rotated string) error {
	c, ok := m.conns[orgID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.AccessToken = token
	c.ExpiresAt = expiresAt
	if rotated != "" {
		c.RefreshToken = rotated
	}
	return nil
}

func (m *mockZohoConnectionRepo) ListExpiringBefore(_ context.Context, t time.Time) ([]model.ZohoConnection, error) {
	var result []model.ZohoConnection
	for _, c := range m.conns {
		if c.ExpiresAt.Before(t) {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (m *mockZohoConnectionRepo) DeleteByOrgID(_ context.Context, orgID string) error {
	if _, ok := m.conns[orgID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.conns, orgID)
	return nil
}

type mockZohoEmployeeMapRepo struct {
	maps map[string]*model.ZohoEmployeeMap
}

func newMockZohoEmployeeMapRepo() *mockZohoEmployeeMapRepo {
	return &mockZohoEmployeeMapRepo{maps: make(map[string]*model.ZohoEmployeeMap)}
}

func (m *mockZohoEmployeeMapRepo) GetByUserID(_ context.Context, userID string) (*model.ZohoEmployeeMap, error) {
	e, ok := m.maps[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockZohoEmployeeMapRepo) Upsert(_ context.Context, e *model.ZohoEmployeeMap) error {
	if e.MappingID == "" {
		e.MappingID = "map-" + e.AppUserID
	}
	e.UpdatedAt = time.Now()
	cp := *e
	m.maps[e.AppUserID] = &cp
	return nil
}

func (m *mockZohoEmployeeMapRepo) ListByOrg(_ context.Context, orgID string) ([]model.ZohoEmployeeMap, error) {
	var result []model.ZohoEmployeeMap
	for _, e := range m.maps {
		if e.OrgID == orgID {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result, nil
}

func (m *mockZohoEmployeeMapRepo) DeleteByUserID(_ context.Context, userID string) error {
	if _, ok := m.maps[userID]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.maps, userID)
	return nil
}

type mockOAuthStateRepo struct {
	states map[string]*model.OAuthState
}

func newMockOAuthStateRepo() *mockOAuthStateRepo {
	return &mockOAuthStateRepo{states: make(map[string]*model.OAuthState)}
}

func (m *mockOAuthStateRepo) Create(_ context.Context, st *model.OAuthState) error {
	cp := *st
	m.states[st.Nonce] = &cp
	return nil
}

func (m *mockOAuthStateRepo) Take(_ context.Context, nonce string) (*model.OAuthState, error) {
	st, ok := m.states[nonce]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	delete(m.states, nonce)
	return st, nil
}

func (m *mockOAuthStateRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for k, st := range m.states {
		if st.ExpiresAt.Before(before) {
			delete(m.states, k)
			n++
		}
	}
	return n, nil
}

// ── 测试辅助 ──

type testRepos struct {
	repo          *repository.Repository
	users         *mockUserRepo
	leaves        *mockLeaveRequestRepo
	approvals     *mockLeaveApprovalRepo
	balances      *mockLeaveBalanceRepo
	policies      *mockLeavePolicyRepo
	audits        *mockAuditLogRepo
	notifications *mockNotificationRepo
	zohoConns     *mockZohoConnectionRepo
	zohoMaps      *mockZohoEmployeeMapRepo
	oauthStates   *mockOAuthStateRepo
}

// newTestRepos 组装未绑定数据库的 Repository，Transaction 直接执行回调
func newTestRepos() *testRepos {
	users := newMockUserRepo()
	t := &testRepos{
		users:         users,
		leaves:        newMockLeaveRequestRepo(users),
		approvals:     &mockLeaveApprovalRepo{},
		balances:      &mockLeaveBalanceRepo{},
		policies:      &mockLeavePolicyRepo{},
		audits:        &mockAuditLogRepo{},
		notifications: &mockNotificationRepo{},
		zohoConns:     newMockZohoConnectionRepo(),
		zohoMaps:      newMockZohoEmployeeMapRepo(),
		oauthStates:   newMockOAuthStateRepo(),
	}
	t.repo = &repository.Repository{
		User:            t.users,
		LeaveRequest:    t.leaves,
		LeaveApproval:   t.approvals,
		LeaveBalance:    t.balances,
		LeavePolicy:     t.policies,
		AuditLog:        t.audits,
		Notification:    t.notifications,
		ZohoConnection:  t.zohoConns,
		ZohoEmployeeMap: t.zohoMaps,
		OAuthState:      t.oauthStates,
	}
	return t
}

const testOrg = "org-test"

// seedOrg 管理员 admin、经理 mgr、员工 emp（经理为 mgr）、员工 other（无经理）
func (t *testRepos) seedOrg() {
	t.users.put(&model.User{UserID: "admin", OrgID: testOrg, Email: "admin@test.com", FirstName: "Ada", Role: model.RoleAdmin, IsActive: true})
	t.users.put(&model.User{UserID: "mgr", OrgID: testOrg, Email: "mgr@test.com", FirstName: "Mia", LastName: "Manager", Role: model.RoleManager, IsActive: true})
	t.users.put(&model.User{UserID: "emp", OrgID: testOrg, Email: "emp@test.com", FirstName: "Eve", LastName: "Employee", Role: model.RoleEmployee, ManagerID: model.StrPtr("mgr"), IsActive: true})
	t.users.put(&model.User{UserID: "other", OrgID: testOrg, Email: "other@test.com", FirstName: "Otto", Role: model.RoleEmployee, IsActive: true})
}

// recordingDispatcher 记录所有通知事件
type recordingDispatcher struct {
	mu     sync.Mutex
	events []NotificationEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, evt NotificationEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func paginate[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func date(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}
