package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/service"
	"leavedesk/backend/pkg/response"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportLeaveReport 导出请假报表
// GET /api/v1/export/leave-report?from=2026-03-01&to=2026-03-31&status=approved
func (h *ExportHandler) ExportLeaveReport(c *gin.Context) {
	caller, ok := mustGetCaller(c)
	if !ok {
		return
	}

	var req dto.LeaveReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	buf, filename, err := h.exportSvc.ExportLeaveReport(c.Request.Context(), &req, caller.UserID, caller.Role)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	// 设置下载响应头
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+encodedFilename)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDateFormat):
		response.BadRequest(c, 18001, "日期格式无效，应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 18002, "结束日期不能早于开始日期")
	case errors.Is(err, service.ErrExportNoData):
		response.NotFound(c, 18003, "筛选范围内没有请假记录")
	case errors.Is(err, service.ErrExportTooLarge):
		response.BadRequest(c, 18004, err.Error())
	default:
		response.InternalError(c)
	}
}
