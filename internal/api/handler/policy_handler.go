package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/service"
	"leavedesk/backend/pkg/response"
)

// PolicyHandler 假期政策 HTTP 处理器
type PolicyHandler struct {
	policySvc service.PolicyService
}

// NewPolicyHandler 创建 PolicyHandler
func NewPolicyHandler(policySvc service.PolicyService) *PolicyHandler {
	return &PolicyHandler{policySvc: policySvc}
}

// List 政策列表
// GET /api/v1/leave-policies
func (h *PolicyHandler) List(c *gin.Context) {
	var req dto.PolicyListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, err := h.policySvc.List(c.Request.Context(), req.ActiveOnly)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// Create 创建政策（管理员）
// POST /api/v1/leave-policies
func (h *PolicyHandler) Create(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	policy, err := h.policySvc.Create(requestCtx(c), &req, userID)
	if err != nil {
		h.handlePolicyError(c, err)
		return
	}

	response.Created(c, policy)
}

// Update 更新政策（管理员）
// PUT /api/v1/leave-policies/:id
func (h *PolicyHandler) Update(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	policy, err := h.policySvc.Update(requestCtx(c), c.Param("id"), &req, userID)
	if err != nil {
		h.handlePolicyError(c, err)
		return
	}

	response.OK(c, policy)
}

func (h *PolicyHandler) handlePolicyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPolicyIDNotFound):
		response.NotFound(c, 15001, "假期政策不存在")
	default:
		response.InternalError(c)
	}
}
