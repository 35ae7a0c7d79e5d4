package service

import (
	"context"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
)

// ── 测试辅助 ──

func setupTestExportService() (ExportService, *testRepos) {
	repos := newTestRepos()
	repos.seedOrg()
	repos.users.put(&model.User{UserID: "emp2", OrgID: testOrg, Email: "emp2@test.com", FirstName: "Zed", Role: model.RoleEmployee, ManagerID: model.StrPtr("mgr"), IsActive: true})

	ctx := context.Background()
	seed := []model.LeaveRequest{
		{UserID: "emp", LeaveType: model.LeaveTypeAnnual, StartDate: date("2026-03-02"), EndDate: date("2026-03-04"), TotalDays: 3, Status: model.LeaveStatusApproved},
		{UserID: "emp", LeaveType: model.LeaveTypeAnnual, StartDate: date("2026-04-06"), EndDate: date("2026-04-07"), TotalDays: 2, Status: model.LeaveStatusApproved},
		{UserID: "emp", LeaveType: model.LeaveTypeSick, StartDate: date("2026-05-04"), EndDate: date("2026-05-04"), TotalDays: 1, Status: model.LeaveStatusPending},
		{UserID: "emp2", LeaveType: model.LeaveTypeSick, StartDate: date("2026-03-10"), EndDate: date("2026-03-10"), TotalDays: 1, Status: model.LeaveStatusApproved},
		{UserID: "other", LeaveType: model.LeaveTypeAnnual, StartDate: date("2026-03-02"), EndDate: date("2026-03-02"), TotalDays: 1, Status: model.LeaveStatusApproved},
	}
	for i := range seed {
		_ = repos.leaves.Create(ctx, &seed[i])
	}
	return NewExportService(repos.repo, zap.NewNop()), repos
}

// ── ExportLeaveReport ──

func TestExportLeaveReport_Admin(t *testing.T) {
	svc, _ := setupTestExportService()

	buf, filename, err := svc.ExportLeaveReport(context.Background(), &dto.LeaveReportRequest{}, "admin", model.RoleAdmin)
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if filename != "leave-report.xlsx" {
		t.Errorf("期望文件名 leave-report.xlsx，实际: %s", filename)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("无法打开生成的 Excel: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("请假明细")
	if err != nil {
		t.Fatalf("读取明细表失败: %v", err)
	}
	if len(rows) != 6 {
		t.Errorf("期望表头 + 5 行明细，实际: %d 行", len(rows))
	}
	if rows[0][0] != "员工" {
		t.Errorf("表头不符: %v", rows[0])
	}

	summary, err := f.GetRows("汇总")
	if err != nil {
		t.Fatalf("读取汇总表失败: %v", err)
	}
	// Eve Employee/annual=5、Otto/annual=1、Zed/sick=1；待审批不计入
	if len(summary) != 4 {
		t.Fatalf("期望表头 + 3 行汇总，实际: %v", summary)
	}
	if summary[1][0] != "Eve Employee" || summary[1][1] != model.LeaveTypeAnnual || summary[1][2] != "5" {
		t.Errorf("汇总首行不符: %v", summary[1])
	}
}

func TestExportLeaveReport_ManagerScopedToTeam(t *testing.T) {
	svc, _ := setupTestExportService()

	buf, filename, err := svc.ExportLeaveReport(context.Background(), &dto.LeaveReportRequest{
		From:   "2026-03-01",
		To:     "2026-03-31",
		Status: model.LeaveStatusApproved,
	}, "mgr", model.RoleManager)
	if err != nil {
		t.Fatalf("导出失败: %v", err)
	}
	if filename != "leave-report-2026-03-01-2026-03-31-approved.xlsx" {
		t.Errorf("文件名不符: %s", filename)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("无法打开生成的 Excel: %v", err)
	}
	defer f.Close()

	rows, _ := f.GetRows("请假明细")
	if len(rows) != 3 {
		t.Fatalf("经理只能导出直属下属三月已批准记录（2 行），实际: %d", len(rows)-1)
	}
	for _, r := range rows[1:] {
		if r[1] == "other@test.com" {
			t.Error("不应包含非下属的记录")
		}
	}
}

func TestExportLeaveReport_NoData(t *testing.T) {
	svc, _ := setupTestExportService()

	_, _, err := svc.ExportLeaveReport(context.Background(), &dto.LeaveReportRequest{LeaveType: model.LeaveTypeMaternity}, "admin", model.RoleAdmin)
	if !errors.Is(err, ErrExportNoData) {
		t.Errorf("期望 ErrExportNoData，实际: %v", err)
	}
}

func TestExportLeaveReport_InvalidRange(t *testing.T) {
	svc, _ := setupTestExportService()

	_, _, err := svc.ExportLeaveReport(context.Background(), &dto.LeaveReportRequest{From: "2026-04-01", To: "2026-03-01"}, "admin", model.RoleAdmin)
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("期望 ErrInvalidDateRange，实际: %v", err)
	}
}
