package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"leavedesk/backend/config"
	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
)

// ── 测试辅助 ──

func setupTestApprovalService(deduct bool) (ApprovalService, *testRepos, *recordingDispatcher) {
	repos := newTestRepos()
	repos.seedOrg()
	repos.balances.balances = []*model.LeaveBalance{
		{LeaveBalanceID: "b-annual", UserID: "emp", LeaveType: model.LeaveTypeAnnual, Year: 2026, TotalDays: 15, AvailableDays: 15},
	}
	cfg := &config.Config{Feature: config.FeatureConfig{DeductBalanceOnApprove: deduct}}
	dispatcher := &recordingDispatcher{}
	svc := NewApprovalService(cfg, repos.repo, dispatcher, zap.NewNop())
	svc.(*approvalService).now = func() time.Time { return time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC) }
	return svc, repos, dispatcher
}

func seedPending(t *testing.T, repos *testRepos) string {
	t.Helper()
	req := &model.LeaveRequest{
		UserID:      "emp",
		LeaveType:   model.LeaveTypeAnnual,
		StartDate:   date("2026-03-09"),
		EndDate:     date("2026-03-11"),
		TotalDays:   3,
		BalanceYear: 2026,
		Status:      model.LeaveStatusPending,
	}
	if err := repos.leaves.Create(context.Background(), req); err != nil {
		t.Fatalf("写入测试数据失败: %v", err)
	}
	return req.LeaveRequestID
}

// ── Decide ──

func TestDecide_ManagerApproves(t *testing.T) {
	svc, repos, dispatcher := setupTestApprovalService(true)
	id := seedPending(t, repos)

	resp, err := svc.Decide(context.Background(), id, "mgr", model.LeaveStatusApproved, "Approved")
	if err != nil {
		t.Fatalf("审批失败: %v", err)
	}
	if resp.Status != model.LeaveStatusApproved {
		t.Errorf("期望 approved，实际: %s", resp.Status)
	}
	if resp.Comments == nil || *resp.Comments != "Approved" {
		t.Errorf("审批意见未保存: %+v", resp.Comments)
	}

	stored := repos.leaves.reqs[id]
	if stored.Status != model.LeaveStatusApproved || stored.Version != 2 {
		t.Errorf("存储状态不符: status=%s version=%d", stored.Status, stored.Version)
	}

	approvals, _ := repos.approvals.ListByRequest(context.Background(), id)
	if len(approvals) != 1 || approvals[0].ApproverID != "mgr" || approvals[0].Status != model.LeaveStatusApproved {
		t.Errorf("期望一条审批记录，实际: %+v", approvals)
	}
	if actions := repos.audits.actions(); len(actions) != 1 || actions[0] != "leave_request_approved" {
		t.Errorf("期望一条 leave_request_approved 审计，实际: %v", actions)
	}
	if len(dispatcher.events) != 1 || dispatcher.events[0].Type != model.NotificationApproved || dispatcher.events[0].ActorID != "mgr" {
		t.Errorf("期望投递 approved 通知，实际: %+v", dispatcher.events)
	}

	b, _ := repos.balances.Get(context.Background(), "emp", model.LeaveTypeAnnual, 2026)
	if b.UsedDays != 3 || b.AvailableDays != 12 {
		t.Errorf("期望扣减 3 天，实际: used=%v available=%v", b.UsedDays, b.AvailableDays)
	}
}

// 12 月提交、次年 1 月开始的申请：从提交时校验的年度扣减
func TestDecide_DeductsFromSubmittedBalanceYear(t *testing.T) {
	svc, repos, _ := setupTestApprovalService(true)
	req := &model.LeaveRequest{
		UserID:      "emp",
		LeaveType:   model.LeaveTypeAnnual,
		StartDate:   date("2027-01-04"),
		EndDate:     date("2027-01-05"),
		TotalDays:   2,
		BalanceYear: 2026,
		Status:      model.LeaveStatusPending,
	}
	if err := repos.leaves.Create(context.Background(), req); err != nil {
		t.Fatalf("写入测试数据失败: %v", err)
	}

	if _, err := svc.Decide(context.Background(), req.LeaveRequestID, "mgr", model.LeaveStatusApproved, ""); err != nil {
		t.Fatalf("审批失败: %v", err)
	}
	b, _ := repos.balances.Get(context.Background(), "emp", model.LeaveTypeAnnual, 2026)
	if b.UsedDays != 2 || b.AvailableDays != 13 {
		t.Errorf("期望从 2026 年度扣减 2 天，实际: used=%v available=%v", b.UsedDays, b.AvailableDays)
	}
}

func TestDecide_RejectDoesNotDeduct(t *testing.T) {
	svc, repos, _ := setupTestApprovalService(true)
	id := seedPending(t, repos)

	resp, err := svc.Decide(context.Background(), id, "admin", model.LeaveStatusRejected, "人手不足")
	if err != nil {
		t.Fatalf("管理员驳回失败: %v", err)
	}
	if resp.Status != model.LeaveStatusRejected {
		t.Errorf("期望 rejected，实际: %s", resp.Status)
	}
	if b, _ := repos.balances.Get(context.Background(), "emp", model.LeaveTypeAnnual, 2026); b.AvailableDays != 15 {
		t.Errorf("驳回不应扣减余额，实际: %v", b.AvailableDays)
	}
}

func TestDecide_DeductDisabled(t *testing.T) {
	svc, repos, _ := setupTestApprovalService(false)
	id := seedPending(t, repos)

	if _, err := svc.Decide(context.Background(), id, "mgr", model.LeaveStatusApproved, ""); err != nil {
		t.Fatalf("审批失败: %v", err)
	}
	if b, _ := repos.balances.Get(context.Background(), "emp", model.LeaveTypeAnnual, 2026); b.AvailableDays != 15 {
		t.Errorf("关闭扣减开关时不应扣减，实际: %v", b.AvailableDays)
	}
}

func TestDecide_SecondDecisionFails(t *testing.T) {
	svc, repos, dispatcher := setupTestApprovalService(true)
	ctx := context.Background()
	id := seedPending(t, repos)

	if _, err := svc.Decide(ctx, id, "mgr", model.LeaveStatusApproved, ""); err != nil {
		t.Fatalf("首次审批失败: %v", err)
	}
	if _, err := svc.Decide(ctx, id, "admin", model.LeaveStatusRejected, ""); !errors.Is(err, ErrLeaveNotPending) {
		t.Errorf("期望 ErrLeaveNotPending，实际: %v", err)
	}
	if len(repos.approvals.approvals) != 1 || len(dispatcher.events) != 1 {
		t.Error("第二次审批不应产生记录或通知")
	}
}

func TestDecide_Forbidden(t *testing.T) {
	svc, repos, _ := setupTestApprovalService(true)
	ctx := context.Background()
	id := seedPending(t, repos)

	if _, err := svc.Decide(ctx, id, "other", model.LeaveStatusApproved, ""); !errors.Is(err, ErrApprovalForbidden) {
		t.Errorf("非经理审批期望 ErrApprovalForbidden，实际: %v", err)
	}
	if _, err := svc.Decide(ctx, id, "emp", model.LeaveStatusApproved, ""); !errors.Is(err, ErrApprovalForbidden) {
		t.Errorf("不能审批自己的申请，实际: %v", err)
	}

	repos.users.put(&model.User{UserID: "foreign-admin", OrgID: "org-b", Email: "fa@b.com", Role: model.RoleAdmin, IsActive: true})
	if _, err := svc.Decide(ctx, id, "foreign-admin", model.LeaveStatusApproved, ""); !errors.Is(err, ErrApprovalForbidden) {
		t.Errorf("跨组织管理员期望 ErrApprovalForbidden，实际: %v", err)
	}
	if repos.leaves.reqs[id].Status != model.LeaveStatusPending {
		t.Error("被拒绝的审批不应改变状态")
	}
}

func TestDecide_InvalidInput(t *testing.T) {
	svc, repos, _ := setupTestApprovalService(true)
	ctx := context.Background()
	id := seedPending(t, repos)

	if _, err := svc.Decide(ctx, id, "mgr", model.LeaveStatusCancelled, ""); !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("期望 ErrInvalidDecision，实际: %v", err)
	}
	if _, err := svc.Decide(ctx, "missing", "mgr", model.LeaveStatusApproved, ""); !errors.Is(err, ErrLeaveRequestNotFound) {
		t.Errorf("期望 ErrLeaveRequestNotFound，实际: %v", err)
	}
	if _, err := svc.Decide(ctx, id, "ghost", model.LeaveStatusApproved, ""); !errors.Is(err, ErrApproverNotFound) {
		t.Errorf("期望 ErrApproverNotFound，实际: %v", err)
	}
}

// ── 通知投递 ──

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to+"|"+subject)
	return nil
}

func TestDeliver_Recipients(t *testing.T) {
	repos := newTestRepos()
	repos.seedOrg()
	mail := &recordingMailer{}
	svc := NewNotificationService(repos.repo, mail, zap.NewNop())
	ctx := context.Background()
	id := seedPending(t, repos)

	if err := svc.Deliver(ctx, NotificationEvent{Type: model.NotificationSubmitted, LeaveRequestID: id, ActorID: "emp"}); err != nil {
		t.Fatalf("投递失败: %v", err)
	}
	if err := svc.Deliver(ctx, NotificationEvent{Type: model.NotificationApproved, LeaveRequestID: id, ActorID: "mgr"}); err != nil {
		t.Fatalf("投递失败: %v", err)
	}
	if len(mail.sent) != 2 || mail.sent[0] != "mgr@test.com|新的请假申请待审批" || mail.sent[1] != "emp@test.com|请假申请已批准" {
		t.Errorf("收件人不符: %v", mail.sent)
	}

	mgrInbox, _, _ := svc.ListMine(ctx, "mgr", &dto.NotificationListRequest{})
	if len(mgrInbox) != 1 {
		t.Errorf("经理应收到一条站内通知，实际: %d", len(mgrInbox))
	}
	if actions := repos.audits.actions(); len(actions) != 2 || actions[0] != "email_notification_submitted" {
		t.Errorf("每次投递应写一条审计，实际: %v", actions)
	}
}

func TestDeliver_MailFailureIsSwallowed(t *testing.T) {
	repos := newTestRepos()
	repos.seedOrg()
	mail := &recordingMailer{err: errors.New("smtp down")}
	svc := NewNotificationService(repos.repo, mail, zap.NewNop())
	id := seedPending(t, repos)

	if err := svc.Deliver(context.Background(), NotificationEvent{Type: model.NotificationRejected, LeaveRequestID: id}); err != nil {
		t.Errorf("邮件失败不应返回错误: %v", err)
	}
	if len(repos.notifications.items) != 1 {
		t.Error("邮件失败时仍应写入站内通知")
	}
	if repos.audits.entries[0].NewValues["sent"] != false {
		t.Errorf("审计应记录发送失败: %+v", repos.audits.entries[0].NewValues)
	}
}

func TestDeliver_NoManagerSkips(t *testing.T) {
	repos := newTestRepos()
	repos.seedOrg()
	mail := &recordingMailer{}
	svc := NewNotificationService(repos.repo, mail, zap.NewNop())
	req := &model.LeaveRequest{UserID: "other", LeaveType: model.LeaveTypeAnnual, StartDate: date("2026-03-09"), EndDate: date("2026-03-09"), TotalDays: 1, Status: model.LeaveStatusPending}
	_ = repos.leaves.Create(context.Background(), req)

	if err := svc.Deliver(context.Background(), NotificationEvent{Type: model.NotificationSubmitted, LeaveRequestID: req.LeaveRequestID}); err != nil {
		t.Fatalf("投递失败: %v", err)
	}
	if len(mail.sent) != 0 {
		t.Errorf("无直属经理时不发送，实际: %v", mail.sent)
	}
}

func TestHandleTask_BadPayload(t *testing.T) {
	svc := NewNotificationService(newTestRepos().repo, &recordingMailer{}, zap.NewNop())
	if err := svc.HandleTask(context.Background(), []byte("{not json")); err != nil {
		t.Errorf("损坏负载不应触发重试: %v", err)
	}
}

// ── NotificationDispatcher ──

type blockingDeliverer struct {
	release   chan struct{}
	delivered chan NotificationEvent
}

func (d *blockingDeliverer) Deliver(_ context.Context, evt NotificationEvent) error {
	<-d.release
	d.delivered <- evt
	return nil
}

type stubEnqueuer struct {
	err   error
	calls int
}

func (e *stubEnqueuer) Enqueue(context.Context, string, interface{}) error {
	e.calls++
	return e.err
}

func TestDispatch_WithoutQueueDeliversInBackground(t *testing.T) {
	tests := []struct {
		name     string
		enqueuer TaskEnqueuer
	}{
		{"未启用队列", nil},
		{"入队失败", &stubEnqueuer{err: errors.New("redis down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &blockingDeliverer{release: make(chan struct{}), delivered: make(chan NotificationEvent, 1)}
			dispatcher := NewNotificationDispatcher(d, tt.enqueuer, zap.NewNop())

			// Deliver 阻塞期间 Dispatch 必须已返回
			dispatcher.Dispatch(context.Background(), NotificationEvent{Type: model.NotificationApproved, LeaveRequestID: "lr-1"})
			close(d.release)

			select {
			case evt := <-d.delivered:
				if evt.LeaveRequestID != "lr-1" {
					t.Errorf("投递事件不符: %+v", evt)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("后台投递未执行")
			}
		})
	}
}

func TestDispatch_QueuedSkipsDirectDelivery(t *testing.T) {
	d := &blockingDeliverer{release: make(chan struct{}), delivered: make(chan NotificationEvent, 1)}
	close(d.release)
	enq := &stubEnqueuer{}

	NewNotificationDispatcher(d, enq, zap.NewNop()).Dispatch(context.Background(), NotificationEvent{Type: model.NotificationSubmitted})
	if enq.calls != 1 {
		t.Errorf("期望入队一次，实际: %d", enq.calls)
	}
	select {
	case evt := <-d.delivered:
		t.Errorf("入队成功后不应直接投递: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
