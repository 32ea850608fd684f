/*
 * @module service/event/event_service
 * @description 事件服务：检测生命周期事件的SSE推送与问题状态变更的数据库监听
 * @architecture 事件驱动架构 - 业务服务层
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 生命周期事件 -> SSE广播 + 外部事件汇
 *            问题状态外部变更(pg_notify) -> 触发计分卡重算（从不触发重新检测）
 * @rules 问题状态变更只引起分数重算；事件队列满时丢弃，不阻塞检测
 * @dependencies github.com/lib/pq, gorm.io/gorm, github.com/google/uuid
 * @refs service/models/event.go, service/scoring/scorecard.go
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"surveyqc-service/service/models"
)

const issueChannel = "surveyqc_issue_changes"

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Sink 生命周期事件外部汇（Kafka/MQTT等）
type Sink interface {
	Publish(ctx context.Context, event *models.LifecycleEvent) error
	Close() error
}

// IssueChangeHandler 问题状态变更回调，入参为变更问题所属运行ID
type IssueChangeHandler func(runID, issueID, newStatus string)

// Service 事件服务
type Service struct {
	db          *gorm.DB
	mu          sync.RWMutex
	clients     map[string]*SSEClient
	sinks       []Sink
	dbListener  *pq.Listener
	issueChange IssueChangeHandler
	ctx         context.Context
	cancel      context.CancelFunc
}

// SSEClient SSE客户端连接
type SSEClient struct {
	ID       string
	UserName string
	Channel  chan *models.SSEEvent
	Done     chan bool
}

// NewService 创建事件服务并启动数据库监听
func NewService(db *gorm.DB, sinks ...Sink) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		db:      db,
		clients: make(map[string]*SSEClient),
		sinks:   sinks,
		ctx:     ctx,
		cancel:  cancel,
	}

	go s.startDBListener()
	return s
}

// OnIssueChange 注册问题状态变更回调（计分卡重算入口）
func (s *Service) OnIssueChange(handler IssueChangeHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueChange = handler
}

// === SSE连接管理 ===

// AddClient 添加SSE连接
func (s *Service) AddClient(userName, connectionID string) *SSEClient {
	s.mu.Lock()
	defer s.mu.Unlock()

	client := &SSEClient{
		ID:       connectionID,
		UserName: userName,
		Channel:  make(chan *models.SSEEvent, 100),
		Done:     make(chan bool),
	}
	s.clients[connectionID] = client
	slog.Info("SSE连接已建立", "user_name", userName, "connection_id", connectionID)
	return client
}

// RemoveClient 移除SSE连接
func (s *Service) RemoveClient(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client, exists := s.clients[connectionID]; exists {
		close(client.Done)
		delete(s.clients, connectionID)
		slog.Info("SSE连接已断开", "connection_id", connectionID)
	}
}

// Emit 发布生命周期事件：SSE广播并写入全部外部事件汇
func (s *Service) Emit(eventType, runID string, payload map[string]interface{}) {
	event := &models.LifecycleEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	sse := &models.SSEEvent{
		ID:        event.ID,
		Type:      eventType,
		Data:      event,
		Timestamp: event.Timestamp,
	}
	s.broadcast(sse)

	s.mu.RLock()
	sinks := s.sinks
	s.mu.RUnlock()
	for _, sink := range sinks {
		if err := sink.Publish(s.ctx, event); err != nil {
			slog.Warn("生命周期事件外发失败", "type", eventType, "error", err)
		}
	}
}

func (s *Service) broadcast(event *models.SSEEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.Channel <- event:
		default:
			slog.Warn("SSE连接事件队列已满，跳过发送", "connection_id", client.ID)
		}
	}
}

// === 数据库监听 ===

// startDBListener 监听 issues 表的外部状态变更
func (s *Service) startDBListener() {
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "things2024")
		dbname := getEnvWithDefault("DB_NAME", "postgres")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}

	s.dbListener = pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("PostgreSQL监听器事件", "event", ev, "error", err)
		}
	})

	if err := s.dbListener.Listen(issueChannel); err != nil {
		slog.Error("监听数据库通知失败", "channel", issueChannel, "error", err)
		return
	}
	if err := s.ensureIssueTrigger(); err != nil {
		slog.Warn("创建问题状态变更触发器失败", "error", err)
	}
	slog.Info("数据库监听器已启动", "channel", issueChannel)

	for {
		select {
		case notification := <-s.dbListener.Notify:
			if notification != nil {
				s.handleIssueNotification(notification)
			}
		case <-s.ctx.Done():
			slog.Info("数据库监听器已停止")
			return
		}
	}
}

// handleIssueNotification 问题状态变更通知：广播并触发计分卡重算
func (s *Service) handleIssueNotification(notification *pq.Notification) {
	var change struct {
		IssueID   string `json:"issue_id"`
		RunID     string `json:"run_id"`
		NewStatus string `json:"new_status"`
	}
	if err := json.Unmarshal([]byte(notification.Extra), &change); err != nil {
		slog.Warn("解析问题变更通知失败", "error", err)
		return
	}

	slog.Info("收到问题状态变更通知", "issue_id", change.IssueID, "run_id", change.RunID, "status", change.NewStatus)

	s.broadcast(&models.SSEEvent{
		ID:        uuid.New().String(),
		Type:      "issue.status_changed",
		Data:      change,
		Timestamp: time.Now(),
	})

	s.mu.RLock()
	handler := s.issueChange
	s.mu.RUnlock()
	if handler != nil {
		handler(change.RunID, change.IssueID, change.NewStatus)
	}
}

// ensureIssueTrigger 为 issues 表创建状态变更通知函数与触发器
func (s *Service) ensureIssueTrigger() error {
	createFunctionSQL := `
CREATE OR REPLACE FUNCTION notify_surveyqc_issue_changes()
RETURNS TRIGGER AS $$
BEGIN
    IF OLD.status IS DISTINCT FROM NEW.status THEN
        PERFORM pg_notify('surveyqc_issue_changes', json_build_object(
            'issue_id', NEW.id,
            'run_id', NEW.run_id,
            'old_status', OLD.status,
            'new_status', NEW.status,
            'timestamp', extract(epoch from now())
        )::text);
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;`
	if err := s.db.Exec(createFunctionSQL).Error; err != nil {
		return err
	}

	createTriggerSQL := `
CREATE OR REPLACE TRIGGER issues_status_notify
AFTER UPDATE ON issues
FOR EACH ROW
EXECUTE FUNCTION notify_surveyqc_issue_changes();`
	return s.db.Exec(createTriggerSQL).Error
}

// Stop 停止事件服务
func (s *Service) Stop() {
	s.cancel()

	if s.dbListener != nil {
		s.dbListener.Close()
	}

	s.mu.Lock()
	for _, client := range s.clients {
		close(client.Done)
	}
	s.clients = make(map[string]*SSEClient)
	sinks := s.sinks
	s.sinks = nil
	s.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			slog.Warn("关闭事件汇失败", "error", err)
		}
	}
	slog.Info("事件服务已停止")
}
