package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gosimple/slug"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
)

// ── 导出模块业务错误 ──

const maxExportRows = 10000

var (
	ErrExportNoData       = errors.New("筛选范围内没有请假记录")
	ErrExportTooLarge     = fmt.Errorf("导出记录超过上限 %d 条，请缩小筛选范围", maxExportRows)
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置响应头后写入。
// 工作簿包含两个 Sheet：请假明细、按员工与假期类型汇总。
type ExportService interface {
	// ExportLeaveReport manager 仅导出直属下属，admin 导出全部
	ExportLeaveReport(ctx context.Context, req *dto.LeaveReportRequest, callerID, callerRole string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

var statusNames = map[string]string{
	model.LeaveStatusPending:   "待审批",
	model.LeaveStatusApproved:  "已批准",
	model.LeaveStatusRejected:  "已驳回",
	model.LeaveStatusCancelled: "已撤回",
}

// ────────────────────── ExportLeaveReport ──────────────────────

func (s *exportService) ExportLeaveReport(ctx context.Context, req *dto.LeaveReportRequest, callerID, callerRole string) (*bytes.Buffer, string, error) {
	// 1. 组装筛选条件
	filter := repository.LeaveRequestFilter{Status: req.Status, LeaveType: req.LeaveType}
	if callerRole != model.RoleAdmin {
		filter.ManagerID = callerID
	}
	if req.From != "" {
		from, err := parseDate(req.From)
		if err != nil {
			return nil, "", err
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := parseDate(req.To)
		if err != nil {
			return nil, "", err
		}
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, "", ErrInvalidDateRange
	}

	// 2. 查询
	items, err := s.repo.LeaveRequest.ListAll(ctx, filter)
	if err != nil {
		s.logger.Error("查询请假记录失败", zap.Error(err))
		return nil, "", err
	}
	if len(items) == 0 {
		return nil, "", ErrExportNoData
	}
	if len(items) > maxExportRows {
		return nil, "", ErrExportTooLarge
	}

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	const detailSheet = "请假明细"
	idx, _ := f.NewSheet(detailSheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"员工", "邮箱", "部门", "假期类型", "开始日期", "结束日期", "工作日数", "状态", "事由", "审批意见", "提交时间"}
	writeHeader(f, detailSheet, headers, headerStyle)
	widths := []float64{16, 28, 14, 12, 12, 12, 10, 10, 30, 30, 20}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(detailSheet, col, col, w)
	}

	type summaryKey struct {
		user      string
		leaveType string
	}
	summary := make(map[summaryKey]int)

	for i, lr := range items {
		row := i + 2
		name, email, dept := lr.UserID, "", ""
		if lr.User != nil {
			name, email = lr.User.FullName(), lr.User.Email
			if lr.User.Department != nil {
				dept = *lr.User.Department
			}
		}
		values := []interface{}{
			name, email, dept, lr.LeaveType,
			lr.StartDate.Format(DateLayout), lr.EndDate.Format(DateLayout), lr.TotalDays,
			statusNames[lr.Status], deref(lr.Reason), deref(lr.Comments),
			lr.CreatedAt.Format("2006-01-02 15:04"),
		}
		for c, v := range values {
			f.SetCellValue(detailSheet, cell(colName(c), row), v)
		}
		if lr.Status == model.LeaveStatusApproved {
			summary[summaryKey{user: name, leaveType: lr.LeaveType}] += lr.TotalDays
		}
	}

	// 汇总：仅统计已批准
	const summarySheet = "汇总"
	f.NewSheet(summarySheet)
	writeHeader(f, summarySheet, []string{"员工", "假期类型", "已批准工作日"}, headerStyle)
	f.SetColWidth(summarySheet, "A", "B", 16)
	f.SetColWidth(summarySheet, "C", "C", 14)

	keys := make([]summaryKey, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].user != keys[j].user {
			return keys[i].user < keys[j].user
		}
		return keys[i].leaveType < keys[j].leaveType
	})
	for i, k := range keys {
		row := i + 2
		f.SetCellValue(summarySheet, cell("A", row), k.user)
		f.SetCellValue(summarySheet, cell("B", row), k.leaveType)
		f.SetCellValue(summarySheet, cell("C", row), summary[k])
	}

	// 4. 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	return buf, reportFilename(req), nil
}

// ── 辅助函数 ──

// reportFilename 形如 leave-report-2026-01-01-2026-03-31-approved.xlsx
func reportFilename(req *dto.LeaveReportRequest) string {
	parts := "leave report"
	for _, p := range []string{req.From, req.To, req.Status, req.LeaveType} {
		if p != "" {
			parts += " " + p
		}
	}
	return slug.Make(parts) + ".xlsx"
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		f.SetCellValue(sheet, cell(colName(i), 1), h)
	}
	f.SetCellStyle(sheet, "A1", cell(colName(len(headers)-1), 1), style)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
