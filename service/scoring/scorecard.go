/*
 * @module service/scoring/scorecard
 * @description 质量计分卡：问题集合到记录/数据集分数的纯投影
 * @architecture 业务服务层 - 评分
 * @documentReference ai_docs/survey_quality_req.md
 * @rules 计分是问题集合的纯幂等投影，无隐藏状态；
 *        仅排除 rejected 状态的问题；同一问题集合重复计算结果一致
 * @dependencies gorm.io/gorm
 * @refs service/models/detection_models.go
 */

package scoring

import (
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"surveyqc-service/service/models"
)

// 默认严重级别权重
var defaultSeverityWeights = map[string]float64{
	models.SeverityLow:      2,
	models.SeverityMedium:   5,
	models.SeverityHigh:     10,
	models.SeverityCritical: 20,
}

// Weights 计分权重配置
type Weights struct {
	Severity map[string]float64 `json:"severity"`
	Category map[string]float64 `json:"category"` // 缺省类别权重 1.0
}

// DefaultWeights 默认权重
func DefaultWeights() Weights {
	severity := make(map[string]float64, len(defaultSeverityWeights))
	for k, v := range defaultSeverityWeights {
		severity[k] = v
	}
	return Weights{Severity: severity, Category: map[string]float64{}}
}

func (w Weights) severityWeight(severity string) float64 {
	if v, ok := w.Severity[severity]; ok {
		return v
	}
	return defaultSeverityWeights[models.SeverityMedium]
}

func (w Weights) categoryWeight(category string) float64 {
	if v, ok := w.Category[category]; ok {
		return v
	}
	return 1.0
}

// RecordScore 单条记录的质量分数
type RecordScore struct {
	RecordIndex int     `json:"record_index"`
	Score       float64 `json:"score"` // [0,100]
	IssueCount  int     `json:"issue_count"`
}

// Scorecard 数据集质量计分卡
type Scorecard struct {
	DatasetRef   string        `json:"dataset_ref"`
	RunID        string        `json:"run_id,omitempty"`
	DatasetScore float64       `json:"dataset_score"`
	P25          float64       `json:"p25"`
	P50          float64       `json:"p50"`
	P75          float64       `json:"p75"`
	RecordScores []RecordScore `json:"record_scores"`
	TotalIssues  int           `json:"total_issues"` // 参与计分的问题数（不含 rejected）
	ComputedAt   time.Time     `json:"computed_at"`
}

// Compute 从问题集合计算计分卡
// 纯函数：同一问题集合与权重的两次计算逐字段一致（ComputedAt 除外）
func Compute(datasetRef string, totalRecords int, issues []models.Issue, weights Weights) *Scorecard {
	penalties := make(map[int]float64)
	counts := make(map[int]int)
	scored := 0

	for _, issue := range issues {
		// 仅 rejected 不参与计分；open/approved/resolved 均计入
		if issue.Status == models.IssueStatusRejected {
			continue
		}
		if issue.RecordIndex < 0 {
			// 数据集级问题不落到单条记录
			scored++
			continue
		}
		penalty := weights.severityWeight(issue.Severity) * weights.categoryWeight(issue.Category) * issue.Confidence
		penalties[issue.RecordIndex] += penalty
		counts[issue.RecordIndex]++
		scored++
	}

	card := &Scorecard{
		DatasetRef:  datasetRef,
		TotalIssues: scored,
		ComputedAt:  time.Now(),
	}

	if totalRecords == 0 {
		card.DatasetScore = 100
		return card
	}

	scores := make([]float64, 0, totalRecords)
	for i := 0; i < totalRecords; i++ {
		score := 100 - penalties[i]
		if score < 0 {
			score = 0
		}
		card.RecordScores = append(card.RecordScores, RecordScore{
			RecordIndex: i,
			Score:       score,
			IssueCount:  counts[i],
		})
		scores = append(scores, score)
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	card.DatasetScore = sum / float64(len(scores))
	card.P25 = percentile(scores, 25)
	card.P50 = percentile(scores, 50)
	card.P75 = percentile(scores, 75)
	return card
}

// Service 计分服务，从数据库装载问题后做纯投影
type Service struct {
	db      *gorm.DB
	weights Weights
}

// NewService 创建计分服务
func NewService(db *gorm.DB, weights Weights) *Service {
	return &Service{db: db, weights: weights}
}

// ForRun 计算指定运行的计分卡
func (s *Service) ForRun(runID string, totalRecords int) (*Scorecard, error) {
	var run models.DetectionRun
	if err := s.db.First(&run, "id = ?", runID).Error; err != nil {
		return nil, err
	}
	var issues []models.Issue
	if err := s.db.Where("run_id = ?", runID).Find(&issues).Error; err != nil {
		return nil, err
	}
	card := Compute(run.DatasetRef, totalRecords, issues, s.weights)
	card.RunID = runID
	return card, nil
}

// ForDataset 计算数据集（全部运行问题）的计分卡
func (s *Service) ForDataset(datasetRef string, totalRecords int) (*Scorecard, error) {
	var issues []models.Issue
	if err := s.db.Where("dataset_ref = ?", datasetRef).Find(&issues).Error; err != nil {
		return nil, err
	}
	return Compute(datasetRef, totalRecords, issues, s.weights), nil
}

// percentile 最近秩百分位数
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
