/*
 * @module api/controllers/quality_check_controller
 * @description 质量检查控制器，提供检查目录、规则版本管理与审计查询
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow 提案新版本 -> 激活 -> 回滚，全部变更写入审计事件
 * @rules 规则版本追加不可变，激活与回滚必须校验谱系
 * @dependencies surveyqc-service/service, github.com/go-chi/render
 * @refs dev_docs/model.md
 */

package controllers

import (
	"errors"
	"net/http"
	"surveyqc-service/service"
	"surveyqc-service/service/engine"
	"surveyqc-service/service/models"
	"surveyqc-service/service/versioning"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// QualityCheckController 质量检查控制器
type QualityCheckController struct {
	versions *versioning.Service
	checks   *engine.Registry
}

// NewQualityCheckController 创建质量检查控制器实例
func NewQualityCheckController() *QualityCheckController {
	return &QualityCheckController{
		versions: service.GlobalVersionService,
		checks:   engine.Default,
	}
}

// CheckCatalogItem 检查目录条目
type CheckCatalogItem struct {
	ID              string `json:"id" example:"exact_duplicates"`
	Category        string `json:"category" example:"duplicate"`
	Kind            string `json:"kind" example:"statistical"`
	DefaultSeverity string `json:"default_severity" example:"high"`
	Description     string `json:"description"`
	Partitionable   bool   `json:"partitionable" example:"true"`
	Enabled         bool   `json:"enabled" example:"true"`
	ActiveVersionID string `json:"active_version_id,omitempty"`
}

// ProposeVersionRequest 规则版本提案请求结构
type ProposeVersionRequest struct {
	Params  models.JSONB `json:"params" validate:"required"`
	Author  string       `json:"author" validate:"required" example:"analyst01"`
	Comment string       `json:"comment,omitempty" example:"降低近似重复阈值"`
}

// ActivateVersionRequest 规则版本激活请求结构
type ActivateVersionRequest struct {
	VersionID string `json:"version_id" validate:"required" example:"550e8400-e29b-41d4-a716-446655440000"`
	Author    string `json:"author" validate:"required" example:"analyst01"`
}

// RollbackVersionRequest 规则版本回滚请求结构
type RollbackVersionRequest struct {
	Author string `json:"author" validate:"required" example:"analyst01"`
}

// SetEnabledRequest 检查启用开关请求结构
type SetEnabledRequest struct {
	Enabled bool `json:"enabled" example:"false"`
}

// ListChecks 获取检查目录
// @Summary 获取质量检查目录
// @Description 列出全部已注册检查及其启用状态与当前激活规则版本
// @Tags 质量检查
// @Produce json
// @Success 200 {object} APIResponse{data=[]CheckCatalogItem}
// @Failure 500 {object} APIResponse
// @Router /quality-checks [get]
func (c *QualityCheckController) ListChecks(w http.ResponseWriter, r *http.Request) {
	defs, err := c.versions.ListChecks()
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("获取检查目录失败", err))
		return
	}

	byID := make(map[string]models.CheckDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}

	items := make([]CheckCatalogItem, 0, len(c.checks.All()))
	for _, chk := range c.checks.All() {
		item := CheckCatalogItem{
			ID:              chk.ID(),
			Category:        chk.Category(),
			Kind:            chk.Kind(),
			DefaultSeverity: chk.DefaultSeverity(),
			Description:     chk.Description(),
			Partitionable:   chk.Partitionable(),
		}
		if def, ok := byID[chk.ID()]; ok {
			item.Enabled = def.IsEnabled
			item.ActiveVersionID = def.ActiveVersionID
		}
		items = append(items, item)
	}

	render.JSON(w, r, SuccessResponse("获取检查目录成功", items))
}

// Catalog 获取检查文档目录
// @Summary 获取检查文档目录
// @Description 列出全部已注册检查的静态文档（类别、种类、默认严重级别、说明），不含启用状态
// @Tags 质量检查
// @Produce json
// @Success 200 {object} APIResponse{data=[]CheckCatalogItem}
// @Router /quality-checks/catalog [get]
func (c *QualityCheckController) Catalog(w http.ResponseWriter, r *http.Request) {
	items := make([]CheckCatalogItem, 0, len(c.checks.All()))
	for _, chk := range c.checks.All() {
		items = append(items, CheckCatalogItem{
			ID:              chk.ID(),
			Category:        chk.Category(),
			Kind:            chk.Kind(),
			DefaultSeverity: chk.DefaultSeverity(),
			Description:     chk.Description(),
			Partitionable:   chk.Partitionable(),
		})
	}
	render.JSON(w, r, SuccessResponse("获取检查文档成功", items))
}

// GetActiveVersion 获取当前激活规则版本
// @Summary 获取当前激活规则版本
// @Description 获取指定检查当前激活的规则版本及其参数
// @Tags 质量检查
// @Produce json
// @Param id path string true "检查标识"
// @Success 200 {object} APIResponse{data=models.RuleVersion}
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /quality-checks/{id}/active [get]
func (c *QualityCheckController) GetActiveVersion(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "id")

	version, err := c.versions.GetActive(checkID)
	if err != nil {
		if errors.Is(err, versioning.ErrCheckNotFound) {
			render.JSON(w, r, NotFoundResponse("检查不存在", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("获取激活版本失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取激活版本成功", version))
}

// ProposeVersion 提案新规则版本
// @Summary 提案新规则版本
// @Description 为指定检查追加新的规则版本，提案不改变当前激活版本
// @Tags 质量检查
// @Accept json
// @Produce json
// @Param id path string true "检查标识"
// @Param request body ProposeVersionRequest true "版本提案请求"
// @Success 200 {object} APIResponse{data=models.RuleVersion}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /quality-checks/{id}/versions [post]
func (c *QualityCheckController) ProposeVersion(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "id")

	var req ProposeVersionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	version, err := c.versions.Propose(checkID, req.Params, req.Author, req.Comment)
	if err != nil {
		if errors.Is(err, versioning.ErrCheckNotFound) {
			render.JSON(w, r, NotFoundResponse("检查不存在", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("提案规则版本失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("提案规则版本成功", version))
}

// ActivateVersion 激活规则版本
// @Summary 激活规则版本
// @Description 将指定历史版本切换为激活版本，记录审计事件和参数差异
// @Tags 质量检查
// @Accept json
// @Produce json
// @Param id path string true "检查标识"
// @Param request body ActivateVersionRequest true "版本激活请求"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /quality-checks/{id}/activate [post]
func (c *QualityCheckController) ActivateVersion(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "id")

	var req ActivateVersionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	if err := c.versions.Activate(checkID, req.VersionID, req.Author); err != nil {
		switch {
		case errors.Is(err, versioning.ErrCheckNotFound):
			render.JSON(w, r, NotFoundResponse("检查不存在", err))
		case errors.Is(err, versioning.ErrVersionConflict):
			render.JSON(w, r, ConflictResponse("版本不属于该检查的谱系", err))
		default:
			render.JSON(w, r, InternalErrorResponse("激活规则版本失败", err))
		}
		return
	}

	render.JSON(w, r, SuccessResponse("激活规则版本成功", nil))
}

// RollbackVersion 回滚规则版本
// @Summary 回滚规则版本
// @Description 回滚到上一次激活事件之前的版本，回滚本身也写入审计事件
// @Tags 质量检查
// @Accept json
// @Produce json
// @Param id path string true "检查标识"
// @Param request body RollbackVersionRequest true "版本回滚请求"
// @Success 200 {object} APIResponse{data=models.RuleVersion}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /quality-checks/{id}/rollback [post]
func (c *QualityCheckController) RollbackVersion(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "id")

	var req RollbackVersionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	version, err := c.versions.Rollback(checkID, req.Author)
	if err != nil {
		switch {
		case errors.Is(err, versioning.ErrCheckNotFound):
			render.JSON(w, r, NotFoundResponse("检查不存在", err))
		case errors.Is(err, versioning.ErrNoPriorVersion):
			render.JSON(w, r, BadRequestResponse("没有可回滚的历史版本", err))
		default:
			render.JSON(w, r, InternalErrorResponse("回滚规则版本失败", err))
		}
		return
	}

	render.JSON(w, r, SuccessResponse("回滚规则版本成功", version))
}

// ListVersions 获取规则版本历史
// @Summary 获取规则版本历史
// @Description 按版本号顺序获取指定检查的全部规则版本
// @Tags 质量检查
// @Produce json
// @Param id path string true "检查标识"
// @Success 200 {object} APIResponse{data=[]models.RuleVersion}
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /quality-checks/{id}/versions [get]
func (c *QualityCheckController) ListVersions(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "id")

	versions, err := c.versions.History(checkID)
	if err != nil {
		if errors.Is(err, versioning.ErrCheckNotFound) {
			render.JSON(w, r, NotFoundResponse("检查不存在", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("获取版本历史失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取版本历史成功", versions))
}

// ListAuditEvents 获取规则审计事件
// @Summary 获取规则审计事件
// @Description 按时间顺序获取指定检查的激活与回滚审计事件
// @Tags 质量检查
// @Produce json
// @Param id path string true "检查标识"
// @Success 200 {object} APIResponse{data=[]models.RuleActivationEvent}
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /quality-checks/{id}/audit [get]
func (c *QualityCheckController) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "id")

	events, err := c.versions.Audit(checkID)
	if err != nil {
		if errors.Is(err, versioning.ErrCheckNotFound) {
			render.JSON(w, r, NotFoundResponse("检查不存在", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("获取审计事件失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("获取审计事件成功", events))
}

// SetEnabled 设置检查启用状态
// @Summary 设置检查启用状态
// @Description 启用或停用指定检查，停用的检查不参与后续检测运行
// @Tags 质量检查
// @Accept json
// @Produce json
// @Param id path string true "检查标识"
// @Param request body SetEnabledRequest true "启用开关请求"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /quality-checks/{id}/enabled [put]
func (c *QualityCheckController) SetEnabled(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "id")

	var req SetEnabledRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	if err := c.versions.SetEnabled(checkID, req.Enabled); err != nil {
		if errors.Is(err, versioning.ErrCheckNotFound) {
			render.JSON(w, r, NotFoundResponse("检查不存在", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("设置检查启用状态失败", err))
		return
	}

	render.JSON(w, r, SuccessResponse("设置检查启用状态成功", nil))
}
