package handler

import (
	"errors"
	"net/http"
	"os"

	"github.com/Harikrishna-AL/MedX/canvas"
	"github.com/Harikrishna-AL/MedX/config"
	"github.com/Harikrishna-AL/MedX/middleware"
	"github.com/Harikrishna-AL/MedX/model"
	"github.com/Harikrishna-AL/MedX/service"
	"github.com/Harikrishna-AL/MedX/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type EditorHandler struct {
	cfg      *config.Config
	editor   *service.Editor
	uploader uploader
}

func NewEditorHandler(cfg *config.Config, editor *service.Editor) *EditorHandler {
	return &EditorHandler{
		cfg:      cfg,
		editor:   editor,
		uploader: uploader{cfg: &cfg.Upload},
	}
}

// Register 注册编辑器路由
func (h *EditorHandler) Register(api *gin.RouterGroup) {
	api.POST("/sessions", h.CreateSession)
	api.GET("/sessions/:id", h.GetSession)
	api.DELETE("/sessions/:id", h.DeleteSession)
	api.PUT("/sessions/:id/viewport", h.Refit)
	api.GET("/sessions/:id/canvas", h.Canvas)
	api.POST("/sessions/:id/points", h.AddPoint)
	api.DELETE("/sessions/:id/points/last", h.UndoPoint)
	api.POST("/sessions/:id/overlay", h.PlaceOverlay)
	api.POST("/sessions/:id/pointer", h.Pointer)
	api.POST("/sessions/:id/detect", h.Detect)
	api.POST("/sessions/:id/generate", h.Generate)
	api.GET("/sessions/:id/mask", h.MaskPreview)
	api.POST("/sessions/:id/blend", h.Blend)
	api.GET("/sessions/:id/result", h.Result)
	api.GET("/result/:md5", h.GetByMD5)
	api.GET("/history", h.History)
}

type createSessionForm struct {
	Workflow        string  `form:"workflow" binding:"required,oneof=segment composite"`
	ContainerWidth  float64 `form:"container_width" binding:"gte=0"`
	ContainerHeight float64 `form:"container_height" binding:"gte=0"`
}

// CreateSession 上传图片并创建编辑会话
func (h *EditorHandler) CreateSession(c *gin.Context) {
	var form createSessionForm
	if err := c.ShouldBind(&form); err != nil {
		badRequest(c, "参数错误", err)
		return
	}

	up, received := h.uploader.receive(c, "image", true)
	if !received {
		return
	}

	kind, _ := service.ParseWorkflowKind(form.Workflow)
	container := canvas.Size{Width: form.ContainerWidth, Height: form.ContainerHeight}
	snap, err := h.editor.CreateSession(kind, up.Filename, up.Path, up.Data, container)
	if err != nil {
		if h.cfg.Upload.Cleanup {
			removeFile(up.Path)
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.Response{
		Success: true,
		Message: "会话已创建",
		Data:    snap,
	})
}

func (h *EditorHandler) GetSession(c *gin.Context) {
	snap, err := h.editor.Snapshot(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, "查询成功", snap)
}

// DeleteSession 重新开始：丢弃会话的全部状态
func (h *EditorHandler) DeleteSession(c *gin.Context) {
	if err := h.editor.Close(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	ok(c, "会话已关闭", nil)
}

func (h *EditorHandler) Refit(c *gin.Context) {
	var req model.ViewportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误", err)
		return
	}

	snap, err := h.editor.Refit(c.Param("id"), canvas.Size{Width: req.ContainerWidth, Height: req.ContainerHeight})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, "已重新适配", snap)
}

// Canvas 返回当前显示尺寸的画布 PNG
func (h *EditorHandler) Canvas(c *gin.Context) {
	png, err := h.editor.Canvas(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *EditorHandler) AddPoint(c *gin.Context) {
	var req model.PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误", err)
		return
	}

	p, err := h.editor.AddPoint(c.Param("id"), canvas.Point{X: req.X, Y: req.Y})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, "已添加", p)
}

func (h *EditorHandler) UndoPoint(c *gin.Context) {
	p, removed, err := h.editor.UndoPoint(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !removed {
		ok(c, "没有可撤销的点", nil)
		return
	}
	ok(c, "已撤销", p)
}

// PlaceOverlay 上传对象图片，去背景后放到画布上
func (h *EditorHandler) PlaceOverlay(c *gin.Context) {
	up, received := h.uploader.receive(c, "object", false)
	if !received {
		return
	}

	snap, err := h.editor.PlaceOverlay(c.Request.Context(), c.Param("id"), up.Filename, up.Data)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, "对象已放置", snap)
}

func (h *EditorHandler) Pointer(c *gin.Context) {
	var req model.PointerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "参数错误", err)
		return
	}

	ov, err := h.editor.Pointer(c.Param("id"), req.Type, canvas.Point{X: req.X, Y: req.Y})
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, "ok", ov)
}

func (h *EditorHandler) Detect(c *gin.Context) {
	var params model.DetectParams
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			badRequest(c, "参数错误", err)
			return
		}
	}

	ref, err := h.editor.Detect(c.Request.Context(), c.Param("id"), params.Threshold)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, "检测完成", ref)
}

func (h *EditorHandler) Generate(c *gin.Context) {
	res, err := h.editor.Generate(c.Request.Context(), c.Param("id"), middleware.BearerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, "生成完成", resultView(res))
}

func (h *EditorHandler) Blend(c *gin.Context) {
	res, err := h.editor.Blend(c.Request.Context(), c.Param("id"), middleware.BearerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, "融合完成", resultView(res))
}

func (h *EditorHandler) MaskPreview(c *gin.Context) {
	keepLargest := c.DefaultQuery("largest", "false") == "true"
	png, err := h.editor.MaskPreview(c.Request.Context(), c.Param("id"), keepLargest)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Result 返回最近一次提交的结果图像，format 可选 png/webp
func (h *EditorHandler) Result(c *gin.Context) {
	data, contentType, err := h.editor.ExportResult(c.Param("id"), c.DefaultQuery("format", "png"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

// GetByMD5 从缓存读取结果图像
func (h *EditorHandler) GetByMD5(c *gin.Context) {
	md5 := c.Param("md5")

	rec, err := h.editor.CachedResult(c.Request.Context(), md5)
	if err != nil {
		utils.Logger.Error("failed to get result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "查询失败",
			Error:   err.Error(),
		})
		return
	}

	if rec == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Success: false,
			Message: "未找到该结果",
		})
		return
	}

	c.Data(http.StatusOK, http.DetectContentType(rec.Image), rec.Image)
}

// History 代理图库列表，type 可按 add/remove 过滤
func (h *EditorHandler) History(c *gin.Context) {
	category := c.Query("type")
	if category != "" && category != service.CategoryAdd && category != service.CategoryRemove {
		badRequest(c, "未知的分类", nil)
		return
	}

	records, err := h.editor.History(c.Request.Context(), middleware.BearerFrom(c), category)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, "查询成功", records)
}

type resultResponse struct {
	URL      string `json:"url"`
	MD5      string `json:"md5"`
	Category string `json:"category"`
}

func resultView(res *service.Result) resultResponse {
	return resultResponse{URL: res.URL, MD5: res.MD5, Category: res.Category}
}

func ok(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func badRequest(c *gin.Context, message string, err error) {
	resp := model.ErrorResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// respondError 将编辑器错误映射为 HTTP 状态码
func respondError(c *gin.Context, err error) {
	status, message := classifyError(err)
	if status >= http.StatusInternalServerError {
		utils.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, model.ErrorResponse{
		Success: false,
		Message: message,
		Error:   err.Error(),
	})
}

func classifyError(err error) (int, string) {
	var stepErr *service.StepError
	var statusErr *service.StatusError
	var transportErr *service.TransportError

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, "会话不存在"
	case errors.Is(err, service.ErrNoResult):
		return http.StatusNotFound, "尚无结果"
	case errors.Is(err, service.ErrInFlight):
		return http.StatusConflict, "提交进行中，请稍候"
	case errors.As(err, &stepErr):
		return http.StatusBadGateway, "远程服务调用失败"
	case errors.As(err, &statusErr), errors.As(err, &transportErr), errors.Is(err, service.ErrRejected):
		return http.StatusBadGateway, "远程服务调用失败"
	case errors.Is(err, service.ErrMaskUnavailable):
		return http.StatusServiceUnavailable, "掩码预览不可用"
	case errors.Is(err, canvas.ErrNotReady),
		errors.Is(err, service.ErrWrongWorkflow),
		errors.Is(err, service.ErrInvalidImage),
		errors.Is(err, service.ErrInvalidThreshold),
		errors.Is(err, service.ErrOutsideCanvas),
		errors.Is(err, service.ErrNoPoints),
		errors.Is(err, service.ErrNoMaskReference),
		errors.Is(err, service.ErrNoOverlay),
		errors.Is(err, service.ErrUnknownPointer),
		errors.Is(err, service.ErrUnknownFormat),
		errors.Is(err, service.ErrContainerTooBig):
		return http.StatusBadRequest, "请求无法执行"
	default:
		return http.StatusInternalServerError, "内部错误"
	}
}

func removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil {
		utils.Logger.Warn("failed to delete temp file",
			zap.String("file", path),
			zap.Error(err))
	}
}
