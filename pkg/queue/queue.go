package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"leavedesk/backend/config"
)

// 任务类型
const (
	TypeLeaveNotification = "leave:notification"
)

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Client 任务投递端
type Client struct {
	client   *asynq.Client
	maxRetry int
	logger   *zap.Logger
}

// NewClient 创建 asynq 投递客户端
func NewClient(redisCfg *config.RedisConfig, queueCfg *config.QueueConfig, logger *zap.Logger) *Client {
	return &Client{
		client:   asynq.NewClient(redisOpt(redisCfg)),
		maxRetry: queueCfg.MaxRetry,
		logger:   logger,
	}
}

// Enqueue 将 payload 序列化为 JSON 并投递
func (c *Client) Enqueue(ctx context.Context, taskType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化任务负载失败: %w", err)
	}

	task := asynq.NewTask(taskType, body,
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(time.Minute),
	)

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("投递任务失败: %w", err)
	}

	c.logger.Debug("任务已投递", zap.String("type", taskType), zap.String("task_id", info.ID))
	return nil
}

// Close 关闭投递客户端
func (c *Client) Close() error {
	return c.client.Close()
}

// HandlerFunc 任务处理函数，入参为原始 JSON 负载
type HandlerFunc func(ctx context.Context, payload []byte) error

// Server 任务消费端
type Server struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewServer 创建 asynq 消费服务器
func NewServer(redisCfg *config.RedisConfig, queueCfg *config.QueueConfig, logger *zap.Logger) *Server {
	concurrency := queueCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(redisOpt(redisCfg), asynq.Config{
		Concurrency: concurrency,
		Logger:      logger.Named("asynq").Sugar(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error("任务执行失败", zap.String("type", task.Type()), zap.Error(err))
		}),
	})

	return &Server{srv: srv, mux: asynq.NewServeMux(), logger: logger}
}

// Handle 注册任务处理函数
func (s *Server) Handle(taskType string, fn HandlerFunc) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return fn(ctx, t.Payload())
	})
}

// Start 启动消费（非阻塞）
func (s *Server) Start() error {
	if err := s.srv.Start(s.mux); err != nil {
		return fmt.Errorf("启动任务消费失败: %w", err)
	}
	s.logger.Info("任务队列消费已启动")
	return nil
}

// Shutdown 等待进行中的任务完成后退出
func (s *Server) Shutdown() {
	s.srv.Shutdown()
	s.logger.Info("任务队列消费已停止")
}
