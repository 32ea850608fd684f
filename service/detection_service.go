/*
 * @module service/detection_service
 * @description 检测编排服务：数据集登记、检测运行、问题查询与状态变更、计分卡、模型适应
 * @architecture 业务服务层 - 核心编排
 * @documentReference ai_docs/survey_quality_req.md
 * @stateFlow 数据集登记 -> 解析启用检查与激活版本 -> 固定模型版本 -> 调度执行
 *            -> 持久化运行与问题 -> 生命周期事件 -> 审核/计分
 * @rules 运行开始时固定全部规则与模型版本；问题状态变更只触发分数重算，
 *        从不触发重新检测；适应永远发布新模型版本
 * @dependencies gorm.io/gorm
 * @refs service/engine/scheduler.go, service/versioning, service/scoring
 */

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"surveyqc-service/service/dataset"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/event"
	"surveyqc-service/service/mldetect"
	"surveyqc-service/service/models"
	"surveyqc-service/service/nlp"
	"surveyqc-service/service/scoring"
	"surveyqc-service/service/versioning"
)

var (
	// ErrDatasetNotFound 数据集未登记
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrRunNotFound 检测运行不存在
	ErrRunNotFound = errors.New("detection run not found")
	// ErrIssueNotFound 问题不存在
	ErrIssueNotFound = errors.New("issue not found")
	// ErrInvalidStatus 非法的问题状态
	ErrInvalidStatus = errors.New("invalid issue status")
	// ErrNoEnabledChecks 没有可执行的启用检查
	ErrNoEnabledChecks = errors.New("no enabled checks to run")
)

// DetectionService 检测编排服务
type DetectionService struct {
	db        *gorm.DB
	store     *dataset.Store
	checks    *engine.Registry
	versions  *versioning.Service
	modelReg  *mldetect.Registry
	scores    *scoring.Service
	events    *event.Service
	scheduler *engine.Scheduler
}

// NewDetectionService 创建检测编排服务
func NewDetectionService(db *gorm.DB, store *dataset.Store, checks *engine.Registry,
	versions *versioning.Service, modelReg *mldetect.Registry,
	scores *scoring.Service, events *event.Service) *DetectionService {
	s := &DetectionService{
		db:        db,
		store:     store,
		checks:    checks,
		versions:  versions,
		modelReg:  modelReg,
		scores:    scores,
		events:    events,
		scheduler: engine.NewScheduler(),
	}

	// 外部审核系统直接改库时，通过数据库通知触发分数重算
	if events != nil {
		events.OnIssueChange(func(runID, issueID, newStatus string) {
			s.recomputeScore(runID, issueID, newStatus)
		})
	}
	return s
}

// IngestDataset 登记数据集，校验记录字段是模式字段子集
func (s *DetectionService) IngestDataset(ref string, schema *dataset.Schema, rows []map[string]interface{}) (*dataset.Dataset, error) {
	ds, err := dataset.New(ref, schema, rows)
	if err != nil {
		return nil, err
	}
	s.store.Register(ds)
	slog.Info("数据集已登记", "ref", ref, "records", ds.Len())
	return ds, nil
}

// RunDetection 在数据集上执行检测运行
// checkIDs 为空时执行全部启用检查；运行开始时固定全部规则与模型版本
func (s *DetectionService) RunDetection(ctx context.Context, datasetRef, triggeredBy string, checkIDs []string) (*models.DetectionRun, error) {
	ds, err := s.store.Get(datasetRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetRef)
	}

	plan, pinned, err := s.buildPlan(checkIDs)
	if err != nil {
		return nil, err
	}

	// 固定模型版本
	pinnedModels := s.modelReg.ActiveSet()
	for family, version := range pinnedModels {
		pinned["model:"+family] = version.VersionNumber
	}

	run := &models.DetectionRun{
		DatasetRef:     datasetRef,
		Status:         "running",
		StartTime:      time.Now(),
		PinnedVersions: pinned,
		TriggeredBy:    triggeredBy,
	}
	if err := s.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("创建检测运行失败: %w", err)
	}

	s.events.Emit(models.EventDetectionStarted, run.ID, map[string]interface{}{
		"dataset_ref": datasetRef,
		"checks":      len(plan),
	})

	rc := &engine.RunContext{
		Dataset: ds,
		NLP:     nlp.NewEngine(pinnedModels[models.ModelFamilyNLP]),
		Models:  pinnedModels,
	}

	result := s.scheduler.Run(ctx, rc, plan)
	return s.persistRun(run, ds, plan, result)
}

// buildPlan 解析启用检查的激活规则版本，组成检测计划
func (s *DetectionService) buildPlan(checkIDs []string) ([]engine.PlannedCheck, models.JSONB, error) {
	defs, err := s.versions.ListChecks()
	if err != nil {
		return nil, nil, err
	}

	wanted := make(map[string]bool, len(checkIDs))
	for _, id := range checkIDs {
		wanted[id] = true
	}

	var plan []engine.PlannedCheck
	pinned := models.JSONB{}
	for _, def := range defs {
		if !def.IsEnabled {
			continue
		}
		if len(wanted) > 0 && !wanted[def.ID] {
			continue
		}
		check, ok := s.checks.Get(def.ID)
		if !ok {
			slog.Warn("检查定义没有对应的注册实现，跳过", "check", def.ID)
			continue
		}
		version, err := s.versions.GetActive(def.ID)
		if err != nil {
			slog.Warn("检查没有激活的规则版本，跳过", "check", def.ID, "error", err)
			continue
		}
		plan = append(plan, engine.PlannedCheck{
			Check:         check,
			RuleVersionID: version.ID,
			Params:        engine.Params(version.Params),
			Severity:      def.Severity,
		})
		pinned[def.ID] = version.VersionNumber
	}
	if len(plan) == 0 {
		return nil, nil, ErrNoEnabledChecks
	}
	return plan, pinned, nil
}

// persistRun 持久化运行结果与问题，并发出生命周期事件
func (s *DetectionService) persistRun(run *models.DetectionRun, ds *dataset.Dataset,
	plan []engine.PlannedCheck, result *engine.RunResult) (*models.DetectionRun, error) {

	versionByCheck := make(map[string]string, len(plan))
	categoryByCheck := make(map[string]string, len(plan))
	for _, p := range plan {
		versionByCheck[p.Check.ID()] = p.RuleVersionID
		categoryByCheck[p.Check.ID()] = p.Check.Category()
	}

	issues := make([]models.Issue, 0, len(result.Findings))
	for _, f := range result.Findings {
		issues = append(issues, models.Issue{
			RunID:         run.ID,
			DatasetRef:    ds.Ref,
			RecordIndex:   f.RecordIndex,
			CheckID:       f.CheckID,
			Category:      categoryByCheck[f.CheckID],
			RuleVersionID: versionByCheck[f.CheckID],
			Severity:      f.Severity,
			Confidence:    f.Confidence,
			Explanation:   f.Explanation,
			Status:        models.IssueStatusOpen,
		})
	}

	statuses := models.JSONB{}
	for checkID, outcome := range result.Outcomes {
		statuses[checkID] = map[string]interface{}{
			"status":      outcome.Status,
			"findings":    outcome.Findings,
			"duration_ms": outcome.Duration.Milliseconds(),
			"error":       outcome.Error,
		}
		engine.ObserveFindings(checkID, outcome.Findings)
		if outcome.Status == engine.StatusFailed {
			s.events.Emit(models.EventCheckFailed, run.ID, map[string]interface{}{
				"check": checkID,
				"error": outcome.Error,
			})
		}
	}

	endTime := result.EndedAt
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if len(issues) > 0 {
			if err := tx.CreateInBatches(issues, 200).Error; err != nil {
				return err
			}
		}
		return tx.Model(run).Updates(map[string]interface{}{
			"status":         "completed",
			"end_time":       endTime,
			"duration":       endTime.Sub(run.StartTime).Milliseconds(),
			"total_issues":   len(issues),
			"check_statuses": statuses,
		}).Error
	})
	if err != nil {
		s.db.Model(run).Updates(map[string]interface{}{"status": "failed", "error_message": err.Error()})
		return nil, fmt.Errorf("持久化检测运行失败: %w", err)
	}

	run.Status = "completed"
	run.EndTime = &endTime
	run.Duration = endTime.Sub(run.StartTime).Milliseconds()
	run.TotalIssues = len(issues)
	run.CheckStatuses = statuses

	s.events.Emit(models.EventDetectionCompleted, run.ID, map[string]interface{}{
		"dataset_ref":      ds.Ref,
		"total_issues":     len(issues),
		"completed_checks": result.CompletedChecks(),
		"duration_ms":      run.Duration,
	})
	slog.Info("检测运行完成", "run_id", run.ID, "dataset", ds.Ref,
		"issues", len(issues), "duration_ms", run.Duration)
	return run, nil
}

// GetRun 读取检测运行
func (s *DetectionService) GetRun(runID string) (*models.DetectionRun, error) {
	var run models.DetectionRun
	if err := s.db.First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	return &run, nil
}

// RunSummary 检测运行汇总报告
type RunSummary struct {
	RunID          string         `json:"run_id"`
	DatasetRef     string         `json:"dataset_ref"`
	Status         string         `json:"status"`
	DurationMs     int64          `json:"duration_ms"`
	TotalIssues    int            `json:"total_issues"`
	BySeverity     map[string]int `json:"by_severity"`
	ByCategory     map[string]int `json:"by_category"`
	ByCheck        map[string]int `json:"by_check"`
	CheckStatuses  models.JSONB   `json:"check_statuses"`
	PinnedVersions models.JSONB   `json:"pinned_versions"`
}

// GetRunSummary 生成检测运行的汇总报告，严重级别与类别分布按当前问题状态统计
func (s *DetectionService) GetRunSummary(runID string) (*RunSummary, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}

	var issues []models.Issue
	if err := s.db.Where("run_id = ?", runID).Find(&issues).Error; err != nil {
		return nil, err
	}

	summary := &RunSummary{
		RunID:          run.ID,
		DatasetRef:     run.DatasetRef,
		Status:         run.Status,
		DurationMs:     run.Duration,
		TotalIssues:    len(issues),
		BySeverity:     map[string]int{},
		ByCategory:     map[string]int{},
		ByCheck:        map[string]int{},
		CheckStatuses:  run.CheckStatuses,
		PinnedVersions: run.PinnedVersions,
	}
	for _, issue := range issues {
		summary.BySeverity[issue.Severity]++
		summary.ByCategory[issue.Category]++
		summary.ByCheck[issue.CheckID]++
	}
	return summary, nil
}

// ListRuns 分页查询检测运行
func (s *DetectionService) ListRuns(datasetRef string, page, pageSize int) ([]models.DetectionRun, int64, error) {
	var runs []models.DetectionRun
	var total int64

	query := s.db.Model(&models.DetectionRun{})
	if datasetRef != "" {
		query = query.Where("dataset_ref = ?", datasetRef)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&runs).Error
	return runs, total, err
}

// IssueFilter 问题查询过滤条件
type IssueFilter struct {
	RunID      string
	DatasetRef string
	Status     string
	Severity   string
	Category   string
	CheckID    string
}

// ListIssues 按过滤条件分页查询问题
func (s *DetectionService) ListIssues(filter IssueFilter, page, pageSize int) ([]models.Issue, int64, error) {
	var issues []models.Issue
	var total int64

	query := s.db.Model(&models.Issue{})
	if filter.RunID != "" {
		query = query.Where("run_id = ?", filter.RunID)
	}
	if filter.DatasetRef != "" {
		query = query.Where("dataset_ref = ?", filter.DatasetRef)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.CheckID != "" {
		query = query.Where("check_id = ?", filter.CheckID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("run_id, check_id, record_index").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&issues).Error
	return issues, total, err
}

// SetIssueStatus 变更问题状态
// 只触发分数重算，从不触发重新检测
func (s *DetectionService) SetIssueStatus(issueID, status string) (*models.Issue, error) {
	switch status {
	case models.IssueStatusOpen, models.IssueStatusApproved,
		models.IssueStatusRejected, models.IssueStatusResolved:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	var issue models.Issue
	if err := s.db.First(&issue, "id = ?", issueID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIssueNotFound, issueID)
		}
		return nil, err
	}

	if err := s.db.Model(&issue).Update("status", status).Error; err != nil {
		return nil, err
	}
	issue.Status = status

	s.recomputeScore(issue.RunID, issue.ID, status)
	return &issue, nil
}

// recomputeScore 分数重算（幂等投影）
func (s *DetectionService) recomputeScore(runID, issueID, newStatus string) {
	run, err := s.GetRun(runID)
	if err != nil {
		slog.Warn("分数重算失败：运行不存在", "run_id", runID, "error", err)
		return
	}
	total := s.datasetRecords(run.DatasetRef)
	card, err := s.scores.ForRun(runID, total)
	if err != nil {
		slog.Warn("分数重算失败", "run_id", runID, "error", err)
		return
	}
	slog.Info("问题状态变更后已重算分数", "run_id", runID, "issue_id", issueID,
		"status", newStatus, "dataset_score", card.DatasetScore)
}

func (s *DetectionService) datasetRecords(ref string) int {
	if ds, err := s.store.Get(ref); err == nil {
		return ds.Len()
	}
	return 0
}

// GetScorecard 计算指定运行的计分卡
func (s *DetectionService) GetScorecard(runID string) (*scoring.Scorecard, error) {
	run, err := s.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return s.scores.ForRun(runID, s.datasetRecords(run.DatasetRef))
}

// AdaptFromFeedback 基于已审核问题反馈逐模型族适应并发布新版本
// 确认(approved)为正样本，驳回(rejected)为负样本；反馈不足的模型族跳过，
// 全部跳过时返回 ErrInsufficientFeedback
func (s *DetectionService) AdaptFromFeedback(author string) ([]*models.ModelVersion, error) {
	adapter := mldetect.NewAdapter(s.modelReg)

	steps := []struct {
		family string
		run    func() (*models.ModelVersion, error)
	}{
		{models.ModelFamilyBotClassifier, func() (*models.ModelVersion, error) { return s.adaptBotClassifier(adapter, author) }},
		{models.ModelFamilyPattern, func() (*models.ModelVersion, error) { return s.adaptSequenceModel(adapter, author) }},
		{models.ModelFamilyAnomaly, func() (*models.ModelVersion, error) { return s.adaptAnomalyDetector(adapter, author) }},
	}

	var adapted []*models.ModelVersion
	for _, step := range steps {
		version, err := step.run()
		if err != nil {
			if errors.Is(err, mldetect.ErrInsufficientFeedback) {
				slog.Info("反馈不足，跳过模型适应", "family", step.family, "error", err)
				continue
			}
			return nil, err
		}
		adapted = append(adapted, version)
		s.events.Emit(models.EventModelAdapted, "", map[string]interface{}{
			"family":  version.Family,
			"version": version.VersionNumber,
		})
		slog.Info("模型适应完成", "family", version.Family, "version", version.VersionNumber)
	}
	if len(adapted) == 0 {
		return nil, fmt.Errorf("%w: 所有模型族均无足够反馈", mldetect.ErrInsufficientFeedback)
	}
	return adapted, nil
}

// reviewedIssues 指定检查的已审核（确认或驳回）问题
func (s *DetectionService) reviewedIssues(checkID string) ([]models.Issue, error) {
	var issues []models.Issue
	err := s.db.Where("check_id = ? AND status IN ?", checkID,
		[]string{models.IssueStatusApproved, models.IssueStatusRejected}).Find(&issues).Error
	return issues, err
}

// adaptBotClassifier 机器人检测反馈 -> 特征向量标注样本 -> 增量训练
func (s *DetectionService) adaptBotClassifier(adapter *mldetect.Adapter, author string) (*models.ModelVersion, error) {
	issues, err := s.reviewedIssues("bot_detection")
	if err != nil {
		return nil, err
	}

	var samples []mldetect.LabeledVector
	extractors := make(map[string]*mldetect.FeatureExtractor)
	ipCounts := make(map[string]map[string]int)
	for _, issue := range issues {
		ds, err := s.store.Get(issue.DatasetRef)
		if err != nil || issue.RecordIndex < 0 || issue.RecordIndex >= ds.Len() {
			continue
		}
		extractor, ok := extractors[issue.DatasetRef]
		if !ok {
			extractor = mldetect.NewFeatureExtractor(ds.Schema, "")
			extractors[issue.DatasetRef] = extractor
			ipCounts[issue.DatasetRef] = extractor.IPCounts(ds)
		}
		samples = append(samples, mldetect.LabeledVector{
			Features: extractor.Vector(ds, ds.Record(issue.RecordIndex), ipCounts[issue.DatasetRef]),
			Label:    feedbackLabel(issue.Status),
		})
	}
	return adapter.AdaptBotClassifier(samples, author)
}

// adaptSequenceModel 模式检测反馈 -> 量表序列标注样本 -> 转移权重调整
func (s *DetectionService) adaptSequenceModel(adapter *mldetect.Adapter, author string) (*models.ModelVersion, error) {
	issues, err := s.reviewedIssues("pattern_detection")
	if err != nil {
		return nil, err
	}

	var sequences []mldetect.LabeledSequence
	for _, issue := range issues {
		ds, err := s.store.Get(issue.DatasetRef)
		if err != nil || issue.RecordIndex < 0 || issue.RecordIndex >= ds.Len() {
			continue
		}
		sequences = append(sequences, mldetect.LabeledSequence{
			Values: numericSequence(ds, ds.Record(issue.RecordIndex)),
			Label:  feedbackLabel(issue.Status),
		})
	}
	return adapter.AdaptSequenceModel(sequences, author)
}

// adaptAnomalyDetector 有审核过异常问题的数据集作为重拟合语料
func (s *DetectionService) adaptAnomalyDetector(adapter *mldetect.Adapter, author string) (*models.ModelVersion, error) {
	issues, err := s.reviewedIssues("anomaly_detection")
	if err != nil {
		return nil, err
	}

	var matrix [][]float64
	seen := make(map[string]bool)
	for _, issue := range issues {
		if seen[issue.DatasetRef] {
			continue
		}
		seen[issue.DatasetRef] = true
		ds, err := s.store.Get(issue.DatasetRef)
		if err != nil {
			continue
		}
		extractor := mldetect.NewFeatureExtractor(ds.Schema, "")
		counts := extractor.IPCounts(ds)
		for _, rec := range ds.Records {
			matrix = append(matrix, extractor.Vector(ds, rec, counts))
		}
	}
	return adapter.AdaptAnomalyDetector(matrix, author)
}

// numericSequence 记录的量表数值序列，字段按模式排序保证确定性
func numericSequence(ds *dataset.Dataset, rec *dataset.Record) []float64 {
	var values []float64
	for _, f := range ds.Schema.NumericFields() {
		if v, ok := dataset.AsFloat(rec.Value(f)); ok {
			values = append(values, v)
		}
	}
	return values
}

func feedbackLabel(status string) float64 {
	if status == models.IssueStatusApproved {
		return 1.0
	}
	return 0.0
}
