package model

// ModelInfo 文生图模型信息
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Recommended bool   `json:"recommended"`
}

// ModelGroup 按版本分组的模型
type ModelGroup struct {
	Version string      `json:"version"`
	Title   string      `json:"title"`
	Models  []ModelInfo `json:"models"`
}

// ImageEditModel 图像编辑模型信息
type ImageEditModel struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Recommended  bool     `json:"recommended"`
	Capabilities []string `json:"capabilities"`
}

// 图像编辑功能
const (
	EditStylizationAll        = "stylization_all"            // 整体风格化
	EditStylizationLocal      = "stylization_local"          // 局部风格化
	EditDescriptionEdit       = "description_edit"           // 指令编辑
	EditDescriptionEditMask   = "description_edit_with_mask" // 局部重绘
	EditRemoveWatermark       = "remove_watermark"           // 去文字水印
	EditInpainting            = "inpainting"                 // 图像修复
	EditExpand                = "expand"                     // 扩图
	EditSuperResolution       = "super_resolution"           // 图像超分
	EditColorization          = "colorization"               // 图像上色
	EditDoodle                = "doodle"                     // 线稿生图
	EditControlCartoonFeature = "control_cartoon_feature"    // 卡通形象控制
)

// EditFunctions 所有图像编辑功能
var EditFunctions = []string{
	EditStylizationAll,
	EditStylizationLocal,
	EditDescriptionEdit,
	EditDescriptionEditMask,
	EditRemoveWatermark,
	EditInpainting,
	EditExpand,
	EditSuperResolution,
	EditColorization,
	EditDoodle,
	EditControlCartoonFeature,
}

var text2ImageModelGroups = []ModelGroup{
	{
		Version: "2.2",
		Title:   "通义万相文生图2.2 (最新版本)",
		Models: []ModelInfo{
			{ID: "wan2.2-t2i-flash", Name: "wan2.2-t2i-flash", Version: "2.2", Type: "极速版", Description: "万相2.2极速版，当前最新模型。在创意性、稳定性、写实质感上全面升级，生成速度快，性价比高。", Recommended: true},
			{ID: "wan2.2-t2i-plus", Name: "wan2.2-t2i-plus", Version: "2.2", Type: "专业版", Description: "万相2.2专业版，当前最新模型。在创意性、稳定性、写实质感上全面升级，生成细节丰富。", Recommended: true},
		},
	},
	{
		Version: "2.1",
		Title:   "通义万相文生图2.1",
		Models: []ModelInfo{
			{ID: "wanx2.1-t2i-turbo", Name: "wanx2.1-t2i-turbo", Version: "2.1", Type: "极速版", Description: "万相2.1极速版。生成速度快，效果均衡。"},
			{ID: "wanx2.1-t2i-plus", Name: "wanx2.1-t2i-plus", Version: "2.1", Type: "专业版", Description: "万相2.1专业版。生成图像细节更丰富，速度稍慢。"},
		},
	},
	{
		Version: "2.0",
		Title:   "通义万相文生图2.0",
		Models: []ModelInfo{
			{ID: "wanx2.0-t2i-turbo", Name: "wanx2.0-t2i-turbo", Version: "2.0", Type: "极速版", Description: "万相2.0极速版。擅长质感人像与创意设计，性价比高。"},
		},
	},
}

var imageEditModels = []ImageEditModel{
	{
		Name:         "wanx2.1-imageedit",
		Description:  "通义万相通用图像编辑2.1，支持风格化、指令编辑、局部重绘、扩图、超分等多种编辑功能。",
		Recommended:  true,
		Capabilities: EditFunctions,
	},
}

// Text2ImageModelGroups 返回文生图模型分组
func Text2ImageModelGroups() []ModelGroup {
	return text2ImageModelGroups
}

// Text2ImageModels 返回所有文生图模型
func Text2ImageModels() []ModelInfo {
	var out []ModelInfo
	for _, g := range text2ImageModelGroups {
		out = append(out, g.Models...)
	}
	return out
}

// ImageEditModels 返回所有图像编辑模型
func ImageEditModels() []ImageEditModel {
	return imageEditModels
}

// ImageEditModelByName 按名称查找图像编辑模型
func ImageEditModelByName(name string) (ImageEditModel, bool) {
	for _, m := range imageEditModels {
		if m.Name == name {
			return m, true
		}
	}
	return ImageEditModel{}, false
}

// ImageEditModelsByCapability 返回支持指定功能的模型
func ImageEditModelsByCapability(capability string) []ImageEditModel {
	out := []ImageEditModel{}
	for _, m := range imageEditModels {
		for _, c := range m.Capabilities {
			if c == capability {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// IsEditFunction 是否为支持的图像编辑功能
func IsEditFunction(fn string) bool {
	for _, f := range EditFunctions {
		if f == fn {
			return true
		}
	}
	return false
}
