package handler

import (
	"net/http"

	"wanx-studio/app/model"

	"github.com/gin-gonic/gin"
)

// ModelsHandler 模型目录处理器
type ModelsHandler struct{}

// NewModelsHandler 创建模型目录处理器
func NewModelsHandler() *ModelsHandler {
	return &ModelsHandler{}
}

// Text2ImageModels 获取文生图模型
func (h *ModelsHandler) Text2ImageModels(c *gin.Context) {
	success(c, model.Text2ImageModelGroups(), "获取成功")
}

// ImageEditModels 获取图像编辑模型
func (h *ModelsHandler) ImageEditModels(c *gin.Context) {
	success(c, gin.H{
		"models":    model.ImageEditModels(),
		"functions": model.EditFunctions,
	}, "获取成功")
}

// ImageEditModel 获取指定图像编辑模型的详情
func (h *ModelsHandler) ImageEditModel(c *gin.Context) {
	m, ok := model.ImageEditModelByName(c.Param("name"))
	if !ok {
		fail(c, http.StatusNotFound, CodeNotFound, "模型不存在: "+c.Param("name"))
		return
	}
	success(c, m, "获取成功")
}

// ImageEditModelsByCapability 获取支持指定能力的图像编辑模型
func (h *ModelsHandler) ImageEditModelsByCapability(c *gin.Context) {
	capability := c.Param("capability")
	if !model.IsEditFunction(capability) {
		fail(c, http.StatusBadRequest, CodeBadRequest, "不支持的编辑功能: "+capability)
		return
	}
	success(c, model.ImageEditModelsByCapability(capability), "获取成功")
}
