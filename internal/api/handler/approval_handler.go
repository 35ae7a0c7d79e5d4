package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/service"
	pkgerrors "leavedesk/backend/pkg/errors"
	"leavedesk/backend/pkg/response"
)

// ApprovalHandler 审批模块 HTTP 处理器
type ApprovalHandler struct {
	approvalSvc service.ApprovalService
}

// NewApprovalHandler 创建 ApprovalHandler
func NewApprovalHandler(approvalSvc service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvalSvc: approvalSvc}
}

// Decide 审批请假申请（直属经理或管理员）
// POST /api/v1/leave-requests/:id/decision
func (h *ApprovalHandler) Decide(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.approvalSvc.Decide(requestCtx(c), c.Param("id"), userID, req.Decision, req.Comments)
	if err != nil {
		h.handleApprovalError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *ApprovalHandler) handleApprovalError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDecision):
		response.BadRequest(c, 14001, "审批结果只能是 approved 或 rejected")
	case errors.Is(err, service.ErrLeaveRequestNotFound):
		response.NotFound(c, 14002, "请假申请不存在")
	case errors.Is(err, service.ErrApproverNotFound):
		response.NotFound(c, 14003, "审批人不存在")
	case errors.Is(err, service.ErrApprovalForbidden):
		response.Forbidden(c, 14004, "仅申请人的直属经理或管理员可以审批")
	case errors.Is(err, service.ErrLeaveNotPending), errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 14005, "请假申请已处理，不能重复审批")
	default:
		response.InternalError(c)
	}
}
