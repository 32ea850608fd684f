/*
 * @module api/controllers/detection_controller
 * @description 检测运行控制器，处理数据集登记、检测运行触发与查询
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow 数据集登记 -> 触发检测运行 -> 查询运行结果
 * @rules 统一的错误处理和响应格式，参数验证
 * @dependencies surveyqc-service/service, github.com/go-chi/render
 * @refs dev_docs/model.md
 */

package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"surveyqc-service/service"
	"surveyqc-service/service/dataset"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// DetectionController 检测运行控制器
type DetectionController struct {
	service *service.DetectionService
}

// NewDetectionController 创建检测运行控制器实例
func NewDetectionController() *DetectionController {
	return &DetectionController{
		service: service.GlobalDetectionService,
	}
}

// IngestDatasetRequest 数据集登记请求结构
type IngestDatasetRequest struct {
	Ref    string                   `json:"ref" validate:"required" example:"survey-2024q3"`
	Fields map[string]string        `json:"fields" validate:"required"` // 字段名 -> numeric/categorical/text/datetime/identifier
	Rows   []map[string]interface{} `json:"rows" validate:"required"`
}

// IngestDatasetResponse 数据集登记响应结构
type IngestDatasetResponse struct {
	Ref     string `json:"ref" example:"survey-2024q3"`
	Records int    `json:"records" example:"1500"`
	Fields  int    `json:"fields" example:"24"`
}

// RunDetectionRequest 触发检测运行请求结构
type RunDetectionRequest struct {
	DatasetRef  string   `json:"dataset_ref" validate:"required" example:"survey-2024q3"`
	Checks      []string `json:"checks,omitempty"` // 为空时执行全部启用检查
	TriggeredBy string   `json:"triggered_by,omitempty" example:"analyst01"`
}

// IngestDataset 登记数据集
// @Summary 登记数据集
// @Description 登记待检测的问卷数据集，声明字段类型并加载全部记录
// @Tags 检测运行
// @Accept json
// @Produce json
// @Param request body IngestDatasetRequest true "数据集登记请求"
// @Success 200 {object} APIResponse{data=IngestDatasetResponse}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /detection/datasets [post]
func (c *DetectionController) IngestDataset(w http.ResponseWriter, r *http.Request) {
	var req IngestDatasetRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	if req.Ref == "" || len(req.Fields) == 0 {
		render.JSON(w, r, BadRequestResponse("ref和fields不能为空", nil))
		return
	}

	schema := &dataset.Schema{Fields: make(map[string]dataset.FieldType, len(req.Fields))}
	for name, ft := range req.Fields {
		schema.Fields[name] = dataset.FieldType(ft)
	}

	ds, err := c.service.IngestDataset(req.Ref, schema, req.Rows)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("数据集登记失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("数据集登记成功", IngestDatasetResponse{
		Ref:     ds.Ref,
		Records: ds.Len(),
		Fields:  len(schema.Fields),
	}))
}

// ListDatasets 获取已登记数据集列表
// @Summary 获取数据集列表
// @Description 列出当前已登记的全部数据集引用
// @Tags 检测运行
// @Produce json
// @Success 200 {object} APIResponse{data=[]string}
// @Router /detection/datasets [get]
func (c *DetectionController) ListDatasets(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SuccessResponse("获取数据集列表成功", service.GlobalDatasetStore.List()))
}

// RunDetection 触发检测运行
// @Summary 触发检测运行
// @Description 在指定数据集上执行检测运行，运行开始时固定全部规则与模型版本
// @Tags 检测运行
// @Accept json
// @Produce json
// @Param request body RunDetectionRequest true "检测运行请求"
// @Success 200 {object} APIResponse{data=models.DetectionRun}
// @Failure 400 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /detection/runs [post]
func (c *DetectionController) RunDetection(w http.ResponseWriter, r *http.Request) {
	var req RunDetectionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = "api"
	}

	run, err := c.service.RunDetection(r.Context(), req.DatasetRef, req.TriggeredBy, req.Checks)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDatasetNotFound):
			render.JSON(w, r, NotFoundResponse("数据集未登记", err))
		case errors.Is(err, service.ErrNoEnabledChecks):
			render.JSON(w, r, BadRequestResponse("没有可执行的启用检查", err))
		default:
			render.JSON(w, r, InternalErrorResponse("检测运行失败", err))
		}
		return
	}

	render.JSON(w, r, SuccessResponse("检测运行完成", run))
}

// GetRun 获取检测运行详情
// @Summary 获取检测运行详情
// @Description 根据运行ID获取检测运行的详细信息，含各检查执行状态
// @Tags 检测运行
// @Produce json
// @Param id path string true "运行ID"
// @Success 200 {object} APIResponse{data=models.DetectionRun}
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /detection/runs/{id} [get]
func (c *DetectionController) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := c.service.GetRun(runID)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			render.JSON(w, r, NotFoundResponse("检测运行不存在", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("获取检测运行失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取检测运行成功", run))
}

// GetRunSummary 获取检测运行汇总报告
// @Summary 获取检测运行汇总报告
// @Description 获取运行的问题总数、严重级别与类别分布、各检查执行状态与耗时
// @Tags 检测运行
// @Produce json
// @Param id path string true "运行ID"
// @Success 200 {object} APIResponse{data=service.RunSummary}
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /detection/runs/{id}/summary [get]
func (c *DetectionController) GetRunSummary(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	summary, err := c.service.GetRunSummary(runID)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			render.JSON(w, r, NotFoundResponse("检测运行不存在", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("获取运行汇总失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取运行汇总成功", summary))
}

// ListRuns 获取检测运行列表
// @Summary 获取检测运行列表
// @Description 分页获取检测运行列表，支持按数据集引用筛选
// @Tags 检测运行
// @Produce json
// @Param dataset_ref query string false "数据集引用"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(10)
// @Success 200 {object} PaginatedResponse{data=[]models.DetectionRun}
// @Failure 500 {object} APIResponse
// @Router /detection/runs [get]
func (c *DetectionController) ListRuns(w http.ResponseWriter, r *http.Request) {
	page, size := parsePagination(r)
	datasetRef := r.URL.Query().Get("dataset_ref")

	runs, total, err := c.service.ListRuns(datasetRef, page, size)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("获取检测运行列表失败", err))
		return
	}

	render.JSON(w, r, PagedResponse("获取检测运行列表成功", runs, total, page, size))
}

func parsePagination(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = 10
	}
	return page, size
}
