/*
 * @module service/scheduler/detection_scheduler
 * @description 检测调度器服务：定时检测运行与夜间模型适应，分布式锁防重
 * @architecture 基于Cron的调度器模式
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow Cron触发 -> 获取分布式锁 -> 执行检测/适应 -> 释放锁
 * @rules 多实例部署时同一调度任务只在一个实例执行；锁获取失败静默跳过
 * @dependencies github.com/robfig/cron/v3, surveyqc-service/service/distributed_lock
 * @refs service/detection_service.go, service/distributed_lock/redis_lock.go
 */

package scheduler

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/distributed_lock"
)

const (
	detectionLockKey = "scheduled_detection"
	adaptLockKey     = "nightly_adaptation"

	detectionLockTTL = 30 * time.Minute
	adaptLockTTL     = 10 * time.Minute
)

// runnerFunc 适配编排服务的检测入口，抹平返回类型
type runnerFunc func(ctx context.Context, datasetRef, triggeredBy string) error

// adaptFunc 适配编排服务的模型适应入口
type adaptFunc func(author string) error

// DetectionScheduler 检测调度器服务
type DetectionScheduler struct {
	cron     *cron.Cron
	store    *dataset.Store
	executor *distributed_lock.LockExecutor
	runOne   runnerFunc
	adapt    adaptFunc
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewDetectionScheduler 创建检测调度器
// lock 为 nil 时单实例运行，不做分布式防重
func NewDetectionScheduler(store *dataset.Store, lock distributed_lock.DistributedLock,
	runOne func(ctx context.Context, datasetRef, triggeredBy string) error,
	adapt func(author string) error) *DetectionScheduler {

	ctx, cancel := context.WithCancel(context.Background())
	s := &DetectionScheduler{
		cron:   cron.New(),
		store:  store,
		runOne: runOne,
		adapt:  adapt,
		ctx:    ctx,
		cancel: cancel,
	}
	if lock != nil {
		s.executor = distributed_lock.NewLockExecutor(lock)
	}
	return s
}

// Start 注册调度任务并启动
// DETECTION_CRON 控制定时全量检测，ADAPT_CRON 控制夜间模型适应
func (s *DetectionScheduler) Start() error {
	detectionSpec := getEnvWithDefault("DETECTION_CRON", "0 2 * * *")
	adaptSpec := getEnvWithDefault("ADAPT_CRON", "30 3 * * *")

	if _, err := s.cron.AddFunc(detectionSpec, s.runScheduledDetection); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(adaptSpec, s.runNightlyAdaptation); err != nil {
		return err
	}

	s.cron.Start()
	slog.Info("检测调度器已启动", "detection_cron", detectionSpec, "adapt_cron", adaptSpec)
	return nil
}

// runScheduledDetection 定时对全部已登记数据集执行检测
func (s *DetectionScheduler) runScheduledDetection() {
	task := func() error {
		refs := s.store.List()
		slog.Info("定时检测开始", "datasets", len(refs))
		for _, ref := range refs {
			if err := s.runOne(s.ctx, ref, "scheduler"); err != nil {
				slog.Error("定时检测运行失败", "dataset", ref, "error", err)
			}
		}
		return nil
	}

	if s.executor == nil {
		_ = task()
		return
	}
	if err := s.executor.ExecuteWithLockAndRefresh(s.ctx, detectionLockKey,
		detectionLockTTL, detectionLockTTL/3, task); err != nil {
		slog.Error("定时检测执行失败", "error", err)
	}
}

// runNightlyAdaptation 夜间基于审核反馈适应模型
func (s *DetectionScheduler) runNightlyAdaptation() {
	task := func() error {
		if err := s.adapt("scheduler"); err != nil {
			slog.Warn("夜间模型适应未执行", "reason", err)
		}
		return nil
	}

	if s.executor == nil {
		_ = task()
		return
	}
	if err := s.executor.ExecuteWithLock(s.ctx, adaptLockKey, adaptLockTTL, task); err != nil {
		slog.Error("夜间模型适应失败", "error", err)
	}
}

// Stop 停止调度器
func (s *DetectionScheduler) Stop() {
	s.cancel()
	scheduleCtx := s.cron.Stop()
	<-scheduleCtx.Done()
	slog.Info("检测调度器已停止")
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
