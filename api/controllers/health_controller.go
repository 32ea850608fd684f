/*
 * @module api/controllers/health_controller
 * @description 健康检查控制器，提供服务健康与就绪状态检查
 * @architecture MVC架构 - 控制器层
 * @documentReference dev_docs/requirements.md
 * @stateFlow HTTP请求处理流程
 * @rules 健康检查用于容器存活探针；就绪检查验证数据库与模型注册表可用
 * @dependencies net/http
 * @refs dev_docs/model.md
 */

package controllers

import (
	"net/http"
	"time"

	"surveyqc-service/service"
	"surveyqc-service/service/models"

	"github.com/go-chi/render"
)

// HealthController 健康检查控制器
type HealthController struct{}

// NewHealthController 创建健康检查控制器实例
func NewHealthController() *HealthController {
	return &HealthController{}
}

// HealthResponse 健康检查响应结构
type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Timestamp time.Time `json:"timestamp" example:"2024-01-01T00:00:00Z"`
	Version   string    `json:"version" example:"1.0.0"`
	Service   string    `json:"service" example:"surveyqc-service"`
}

// ReadyResponse 就绪检查响应结构
type ReadyResponse struct {
	Status     string          `json:"status" example:"ready"`
	Timestamp  time.Time       `json:"timestamp" example:"2024-01-01T00:00:00Z"`
	Components map[string]bool `json:"components"`
}

// Health 健康检查
// @Summary 健康检查
// @Description 检查服务健康状态
// @Tags 系统
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   "1.0.0",
		Service:   "surveyqc-service",
	}

	render.JSON(w, r, response)
}

// Ready 就绪检查
// @Summary 就绪检查
// @Description 检查数据库连接与模型注册表是否就绪，任一组件不可用返回503
// @Tags 系统
// @Produce json
// @Success 200 {object} ReadyResponse
// @Failure 503 {object} ReadyResponse
// @Router /ready [get]
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{
		"database": false,
		"models":   false,
	}

	if service.DB != nil {
		var count int64
		if err := service.DB.Model(&models.CheckDefinition{}).Count(&count).Error; err == nil {
			components["database"] = true
		}
	}
	if service.GlobalModelRegistry != nil {
		components["models"] = len(service.GlobalModelRegistry.Families()) > 0
	}

	response := ReadyResponse{
		Status:     "ready",
		Timestamp:  time.Now(),
		Components: components,
	}
	for _, ok := range components {
		if !ok {
			response.Status = "not_ready"
			render.Status(r, http.StatusServiceUnavailable)
			break
		}
	}

	render.JSON(w, r, response)
}
