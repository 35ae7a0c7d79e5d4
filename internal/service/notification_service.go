package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
	"leavedesk/backend/pkg/mailer"
	"leavedesk/backend/pkg/queue"
)

var ErrNotificationNotFound = errors.New("通知不存在")

// NotificationEvent 请假事件，由审批 / 提交 / 撤回流程触发
type NotificationEvent struct {
	Type           string `json:"type"`
	LeaveRequestID string `json:"leave_request_id"`
	ActorID        string `json:"actor_id"`
}

// ── 投递 ──

// TaskEnqueuer 异步任务投递（由 pkg/queue.Client 实现）
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload interface{}) error
}

// NotificationDispatcher 尽力而为的通知投递，调用方不感知失败
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, evt NotificationEvent)
}

type notificationDispatcher struct {
	deliverer notificationDeliverer
	enqueuer  TaskEnqueuer
	logger    *zap.Logger
}

type notificationDeliverer interface {
	Deliver(ctx context.Context, evt NotificationEvent) error
}

// NewNotificationDispatcher enqueuer 为 nil（未启用 Redis 队列）时在后台 goroutine 中直接投递
func NewNotificationDispatcher(deliverer notificationDeliverer, enqueuer TaskEnqueuer, logger *zap.Logger) NotificationDispatcher {
	return &notificationDispatcher{deliverer: deliverer, enqueuer: enqueuer, logger: logger}
}

func (d *notificationDispatcher) Dispatch(ctx context.Context, evt NotificationEvent) {
	if d.enqueuer != nil {
		err := d.enqueuer.Enqueue(ctx, queue.TypeLeaveNotification, evt)
		if err == nil {
			return
		}
		d.logger.Warn("通知入队失败，改为后台投递",
			zap.String("type", evt.Type), zap.String("leave_request_id", evt.LeaveRequestID), zap.Error(err))
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(bg, 30*time.Second)
		defer cancel()
		if err := d.deliverer.Deliver(ctx, evt); err != nil {
			d.logger.Error("通知投递失败",
				zap.String("type", evt.Type), zap.String("leave_request_id", evt.LeaveRequestID), zap.Error(err))
		}
	}()
}

// ── 通知服务 ──

// NotificationService 通知落库、邮件发送与站内通知查询
type NotificationService interface {
	Deliver(ctx context.Context, evt NotificationEvent) error
	// HandleTask 队列消费入口
	HandleTask(ctx context.Context, payload []byte) error
	ListMine(ctx context.Context, userID string, req *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type notificationService struct {
	repo   *repository.Repository
	mail   mailer.Sender
	logger *zap.Logger
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(repo *repository.Repository, mail mailer.Sender, logger *zap.Logger) NotificationService {
	return &notificationService{repo: repo, mail: mail, logger: logger}
}

// ────────────────────── Deliver ──────────────────────

// Deliver submitted / cancelled 通知经理，approved / rejected 通知申请人
// 邮件失败只记录日志；仅在读取数据失败时返回错误以便队列重试
func (s *notificationService) Deliver(ctx context.Context, evt NotificationEvent) error {
	req, err := s.repo.LeaveRequest.GetByID(ctx, evt.LeaveRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("通知对应的请假申请不存在", zap.String("leave_request_id", evt.LeaveRequestID))
			return nil
		}
		return err
	}
	requester := req.User
	if requester == nil {
		if requester, err = s.repo.User.GetByID(ctx, req.UserID); err != nil {
			return err
		}
	}

	var recipient *model.User
	switch evt.Type {
	case model.NotificationSubmitted, model.NotificationCancelled:
		if requester.ManagerID == nil {
			s.logger.Info("申请人无直属经理，跳过通知", zap.String("user_id", requester.UserID))
			return nil
		}
		if recipient, err = s.repo.User.GetByID(ctx, *requester.ManagerID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
	case model.NotificationApproved, model.NotificationRejected:
		recipient = requester
	default:
		s.logger.Warn("未知通知类型", zap.String("type", evt.Type))
		return nil
	}

	title, content := notificationText(evt.Type, requester, req)

	// 1. 站内通知
	n := &model.Notification{
		UserID:    recipient.UserID,
		Type:      evt.Type,
		Title:     title,
		Content:   content,
		RelatedID: model.StrPtr(req.LeaveRequestID),
	}
	if err := s.repo.Notification.Create(ctx, n); err != nil {
		s.logger.Error("写入站内通知失败", zap.String("user_id", recipient.UserID), zap.Error(err))
	}

	// 2. 邮件
	sent := true
	body := fmt.Sprintf("<p>%s</p><p>%s</p>", html.EscapeString(title), html.EscapeString(content))
	if err := s.mail.Send(ctx, recipient.Email, title, body); err != nil {
		sent = false
		s.logger.Error("发送通知邮件失败",
			zap.String("type", evt.Type), zap.String("leave_request_id", req.LeaveRequestID), zap.Error(err))
	}

	// 3. 审计
	entry := newAuditLog(ctx, evt.ActorID, "email_notification_"+evt.Type, "leave_requests", req.LeaveRequestID, nil,
		map[string]interface{}{
			"recipient_id": recipient.UserID,
			"recipient":    recipient.Email,
			"sent":         sent,
		})
	if err := s.repo.AuditLog.Create(ctx, entry); err != nil {
		s.logger.Error("写入通知审计日志失败", zap.Error(err))
	}
	return nil
}

func notificationText(eventType string, requester *model.User, req *model.LeaveRequest) (string, string) {
	period := fmt.Sprintf("%s 至 %s（%d 个工作日）",
		req.StartDate.Format(DateLayout), req.EndDate.Format(DateLayout), req.TotalDays)

	switch eventType {
	case model.NotificationSubmitted:
		return "新的请假申请待审批", fmt.Sprintf("%s 提交了 %s 请假申请：%s", requester.FullName(), req.LeaveType, period)
	case model.NotificationCancelled:
		return "请假申请已撤回", fmt.Sprintf("%s 撤回了 %s 请假申请：%s", requester.FullName(), req.LeaveType, period)
	case model.NotificationApproved:
		return "请假申请已批准", fmt.Sprintf("你的 %s 请假申请已批准：%s", req.LeaveType, period)
	default:
		content := fmt.Sprintf("你的 %s 请假申请被驳回：%s", req.LeaveType, period)
		if req.Comments != nil && *req.Comments != "" {
			content += "。审批意见：" + *req.Comments
		}
		return "请假申请被驳回", content
	}
}

// ────────────────────── HandleTask ──────────────────────

func (s *notificationService) HandleTask(ctx context.Context, payload []byte) error {
	var evt NotificationEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		// 负载损坏时重试无意义
		s.logger.Error("通知任务负载无效", zap.Error(err))
		return nil
	}
	return s.Deliver(ctx, evt)
}

// ────────────────────── ListMine / MarkRead ──────────────────────

func (s *notificationService) ListMine(ctx context.Context, userID string, req *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error) {
	items, total, err := s.repo.Notification.ListByUser(ctx, userID, req.UnreadOnly, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询站内通知失败", zap.String("user_id", userID), zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.NotificationResponse, 0, len(items))
	for _, n := range items {
		result = append(result, dto.NotificationResponse{
			ID:        n.NotificationID,
			Type:      n.Type,
			Title:     n.Title,
			Content:   n.Content,
			IsRead:    n.IsRead,
			RelatedID: n.RelatedID,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	return result, total, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.Notification.MarkRead(ctx, id, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		s.logger.Error("标记通知已读失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}
