package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"os"
	"time"

	"github.com/Harikrishna-AL/MedX/canvas"
	"github.com/Harikrishna-AL/MedX/model"
	"github.com/Harikrishna-AL/MedX/utils"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	_ "golang.org/x/image/webp"
)

var (
	ErrInvalidImage     = errors.New("invalid image")
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
	ErrOutsideCanvas    = errors.New("point outside canvas")
	ErrNoPoints         = errors.New("no points selected")
	ErrNoMaskReference  = errors.New("no mask reference, run detect first")
	ErrNoOverlay        = errors.New("no overlay placed")
	ErrNoResult         = errors.New("no result yet")
	ErrMaskUnavailable  = errors.New("mask preview not available")
	ErrUnknownFormat    = errors.New("unsupported export format")
	ErrUnknownPointer   = errors.New("unknown pointer event")
	ErrContainerTooBig  = errors.New("container exceeds maximum display size")
)

// Segmenter 分割服务
type Segmenter interface {
	UploadSource(ctx context.Context, name string, data []byte) (string, error)
	Detect(ctx context.Context, req model.DetectRequest) (*model.MaskReference, error)
	Generate(ctx context.Context, wf *Workflow, imagePath string) ([]byte, error)
	FetchMask(ctx context.Context, filename string) ([]byte, error)
}

// BackgroundRemover 去背景服务
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, name string, data []byte) ([]byte, error)
}

// Blender 融合服务
type Blender interface {
	UploadForeground(ctx context.Context, png []byte) error
	Blend(ctx context.Context, png []byte) ([]byte, error)
}

// ResultSaver 结果保存服务
type ResultSaver interface {
	Save(ctx context.Context, bearer, category, filename string, data []byte) (*model.ImageRecord, error)
}

// ResultLister 图库列表服务
type ResultLister interface {
	List(ctx context.Context, bearer, category string) ([]model.ImageRecord, error)
}

// ResultCache 按 MD5 缓存结果图像
type ResultCache interface {
	GetResult(ctx context.Context, md5 string) (*model.ResultRecord, error)
	SetResult(ctx context.Context, md5 string, rec *model.ResultRecord) error
}

// MaskPreviewer 根据原图与掩码生成预览图
type MaskPreviewer interface {
	Preview(original, mask []byte, keepLargest bool) ([]byte, error)
}

// EditorDeps 编辑器依赖的远程服务。Cache 与 Masks 可以为空。
type EditorDeps struct {
	Segmentation Segmenter
	Preprocess   BackgroundRemover
	Blend        Blender
	Persistence  ResultSaver
	Gallery      ResultLister
	Cache        ResultCache
	Masks        MaskPreviewer
	Workflow     *Workflow
}

type EditorOptions struct {
	Threshold float64
	Overlay   canvas.OverlayOptions
	Render    canvas.RenderOptions
	// Cleanup 关闭会话时删除上传的源文件
	Cleanup bool
	// MaxDisplay 容器宽高上限，0 表示不限制
	MaxDisplay float64
	// SessionTTL 空闲会话的回收时间，0 表示不回收
	SessionTTL time.Duration
}

// Editor 会话级编辑操作与提交流水线
type Editor struct {
	deps     EditorDeps
	opts     EditorOptions
	sessions *SessionManager
}

func NewEditor(deps EditorDeps, opts EditorOptions) *Editor {
	return &Editor{
		deps:     deps,
		opts:     opts,
		sessions: NewSessionManager(),
	}
}

func (e *Editor) Sessions() *SessionManager { return e.sessions }

// CreateSession 解码上传图像并按容器尺寸适配
func (e *Editor) CreateSession(kind WorkflowKind, name, path string, data []byte, container canvas.Size) (model.SessionSnapshot, error) {
	if err := e.checkContainer(container); err != nil {
		return model.SessionSnapshot{}, err
	}
	img, err := decodeImage(data)
	if err != nil {
		return model.SessionSnapshot{}, err
	}

	s := newSession(kind, canvas.NewState(img, name, container), data, path, e.opts.Overlay)
	e.sessions.Add(s)

	utils.Logger.Info("session created",
		zap.String("session", s.ID),
		zap.String("workflow", string(kind)),
		zap.String("image", name),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (e *Editor) Snapshot(id string) (model.SessionSnapshot, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return model.SessionSnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Refit 容器尺寸变化，已记录的点保持图像空间坐标不变
func (e *Editor) Refit(id string, container canvas.Size) (model.SessionSnapshot, error) {
	if err := e.checkContainer(container); err != nil {
		return model.SessionSnapshot{}, err
	}
	s, err := e.sessions.Get(id)
	if err != nil {
		return model.SessionSnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas.Refit(container)
	return s.snapshot(), nil
}

// Canvas 按当前显示尺寸完整重绘画布并编码为 PNG
func (e *Editor) Canvas(id string) ([]byte, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	var img *image.NRGBA
	if s.Workflow == WorkflowSegment {
		img = canvas.RenderPoints(s.canvas.Image, s.canvas.Display, s.points.Points(), e.opts.Render)
	} else {
		img = canvas.RenderComposite(s.canvas.Image, s.canvas.Display, s.overlay, e.opts.Render)
	}
	s.mu.Unlock()

	if img.Bounds().Empty() {
		return nil, canvas.ErrNotReady
	}
	return encodePNG(img)
}

// AddPoint 将显示空间的点击换算为图像坐标并记录
func (e *Editor) AddPoint(id string, p canvas.Point) (canvas.Point, error) {
	s, err := e.segmentSession(id)
	if err != nil {
		return canvas.Point{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.canvas.Mapper()
	if err != nil {
		return canvas.Point{}, err
	}
	d := s.canvas.Display
	if p.X < 0 || p.Y < 0 || p.X > d.Width || p.Y > d.Height {
		return canvas.Point{}, ErrOutsideCanvas
	}

	ip := m.ToImage(p)
	s.points.Append(ip)
	return ip, nil
}

// UndoPoint 仅在本地撤销最后一个点
func (e *Editor) UndoPoint(id string) (canvas.Point, bool, error) {
	s, err := e.segmentSession(id)
	if err != nil {
		return canvas.Point{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points.RemoveLast()
	return p, ok, nil
}

// Pointer 将指针事件交给叠加对象状态机
func (e *Editor) Pointer(id, kind string, p canvas.Point) (canvas.OverlaySnapshot, error) {
	s, err := e.compositeSession(id)
	if err != nil {
		return canvas.OverlaySnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case "down":
		s.overlay.PointerDown(p)
	case "move":
		s.overlay.PointerMove(p)
	case "up":
		s.overlay.PointerUp()
	default:
		return canvas.OverlaySnapshot{}, fmt.Errorf("%w: %q", ErrUnknownPointer, kind)
	}
	return s.overlay.Snapshot(), nil
}

// PlaceOverlay 远程去背景后把对象放到画布上
func (e *Editor) PlaceOverlay(ctx context.Context, id, name string, data []byte) (model.SessionSnapshot, error) {
	s, err := e.compositeSession(id)
	if err != nil {
		return model.SessionSnapshot{}, err
	}
	ctx = context.WithoutCancel(ctx)

	var cutout []byte
	err = s.preprocess.Run(ctx, s.ID,
		Step{Name: "remove-background", Run: func(ctx context.Context) error {
			out, err := e.deps.Preprocess.RemoveBackground(ctx, name, data)
			cutout = out
			return err
		}},
		Step{Name: "place", Run: func(ctx context.Context) error {
			img, err := decodeImage(cutout)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.overlay.Place(img)
			s.mu.Unlock()
			return nil
		}},
	)
	if err != nil {
		return model.SessionSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Detect 上传原图（如尚未上传）并提交点击点，成功后保存掩码引用
func (e *Editor) Detect(ctx context.Context, id string, threshold *float64) (*model.MaskReference, error) {
	s, err := e.segmentSession(id)
	if err != nil {
		return nil, err
	}

	t := e.opts.Threshold
	if threshold != nil {
		t = *threshold
	}
	if t < 0 || t > 1 {
		return nil, ErrInvalidThreshold
	}

	s.mu.Lock()
	if !s.canvas.Loaded() {
		s.mu.Unlock()
		return nil, canvas.ErrNotReady
	}
	if s.points.Len() == 0 {
		s.mu.Unlock()
		return nil, ErrNoPoints
	}
	req := model.DetectRequest{
		ImagePath:      s.uploaded,
		PositivePoints: s.points.Pairs(),
		NegativePoints: [][]float64{},
		Threshold:      t,
	}
	name, source := s.canvas.Name, s.source
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	var ref *model.MaskReference

	var steps []Step
	if req.ImagePath == "" {
		steps = append(steps, Step{Name: "upload-source", Run: func(ctx context.Context) error {
			uploaded, err := e.deps.Segmentation.UploadSource(ctx, name, source)
			if err != nil {
				return err
			}
			req.ImagePath = uploaded
			s.mu.Lock()
			s.uploaded = uploaded
			s.mu.Unlock()
			return nil
		}})
	}
	steps = append(steps,
		Step{Name: "detect", Run: func(ctx context.Context) error {
			r, err := e.deps.Segmentation.Detect(ctx, req)
			ref = r
			return err
		}},
		Step{Name: "store-mask", Run: func(ctx context.Context) error {
			s.mu.Lock()
			s.mask = ref
			s.mu.Unlock()
			return nil
		}},
	)

	if err := s.submit.Run(ctx, s.ID, steps...); err != nil {
		return nil, err
	}

	utils.Logger.Info("mask detected",
		zap.String("session", s.ID),
		zap.String("mask", ref.Name),
		zap.Int("points", len(req.PositivePoints)),
		zap.Float64("threshold", t))

	out := *ref
	return &out, nil
}

// Generate 以保存的掩码引用执行去除工作流
func (e *Editor) Generate(ctx context.Context, id, bearer string) (*Result, error) {
	s, err := e.segmentSession(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	ref := s.mask
	s.mu.Unlock()
	if ref == nil {
		return nil, ErrNoMaskReference
	}

	ctx = context.WithoutCancel(ctx)
	var output []byte
	var result *Result

	steps := []Step{
		{Name: "generate", Run: func(ctx context.Context) error {
			out, err := e.deps.Segmentation.Generate(ctx, e.deps.Workflow, ref.Name)
			output = out
			return err
		}},
		{Name: "display", Run: func(ctx context.Context) error {
			r, err := e.commitResult(ctx, s, CategoryRemove, output, nil)
			result = r
			return err
		}},
	}
	steps = append(steps, e.persistStep(s, bearer, CategoryRemove, &output)...)

	if err := s.submit.Run(ctx, s.ID, steps...); err != nil {
		return nil, err
	}
	return result, nil
}

// Blend 先上传前景层，确认后提交背景画布，成功后重置叠加对象
func (e *Editor) Blend(ctx context.Context, id, bearer string) (*Result, error) {
	s, err := e.compositeSession(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !s.overlay.Placed() {
		s.mu.Unlock()
		return nil, ErrNoOverlay
	}
	if !s.canvas.Loaded() || s.canvas.Display.Empty() {
		s.mu.Unlock()
		return nil, canvas.ErrNotReady
	}
	fgLayer := canvas.RenderOverlayLayer(s.canvas.Display, s.overlay)
	bgLayer := canvas.RenderBackground(s.canvas.Image, s.canvas.Display)
	submitted := s.overlay.Image()
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	var output []byte
	var result *Result

	steps := []Step{
		{Name: "upload-foreground", Run: func(ctx context.Context) error {
			png, err := encodePNG(fgLayer)
			if err != nil {
				return err
			}
			return e.deps.Blend.UploadForeground(ctx, png)
		}},
		{Name: "blend", Run: func(ctx context.Context) error {
			png, err := encodePNG(bgLayer)
			if err != nil {
				return err
			}
			out, err := e.deps.Blend.Blend(ctx, png)
			output = out
			return err
		}},
		{Name: "display", Run: func(ctx context.Context) error {
			// 融合期间放置了新对象时保留新对象
			r, err := e.commitResult(ctx, s, CategoryAdd, output, func() {
				if s.overlay.Image() == submitted {
					s.overlay.Reset()
				}
			})
			result = r
			return err
		}},
	}
	steps = append(steps, e.persistStep(s, bearer, CategoryAdd, &output)...)

	if err := s.submit.Run(ctx, s.ID, steps...); err != nil {
		return nil, err
	}
	return result, nil
}

// commitResult 结果必须能解码为图像才会替换当前结果。onCommit 在持有会话锁时执行。
func (e *Editor) commitResult(ctx context.Context, s *Session, category string, data []byte, onCommit func()) (*Result, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	md5 := utils.BytesMD5(data)
	res := &Result{
		Image:     data,
		MD5:       md5,
		Category:  category,
		URL:       fmt.Sprintf("/api/v1/sessions/%s/result?v=%s", s.ID, md5),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.result = res
	if onCommit != nil {
		onCommit()
	}
	s.mu.Unlock()

	if e.deps.Cache != nil {
		rec := &model.ResultRecord{MD5: md5, Category: category, Image: data, Timestamp: res.CreatedAt.Unix()}
		if err := e.deps.Cache.SetResult(ctx, md5, rec); err != nil {
			utils.Logger.Warn("failed to set cache", zap.String("md5", md5), zap.Error(err))
		}
	}
	return res, nil
}

// persistStep 没有凭证时不保存
func (e *Editor) persistStep(s *Session, bearer, category string, output *[]byte) []Step {
	if bearer == "" || e.deps.Persistence == nil {
		utils.Logger.Info("persistence skipped, no credential",
			zap.String("session", s.ID),
			zap.String("category", category))
		return nil
	}
	return []Step{{Name: "persist", Run: func(ctx context.Context) error {
		filename := fmt.Sprintf("%s_%s.png", category, utils.BytesMD5(*output))
		rec, err := e.deps.Persistence.Save(ctx, bearer, category, filename, *output)
		if err != nil {
			return err
		}
		fields := []zap.Field{zap.String("session", s.ID), zap.String("category", category)}
		if rec != nil {
			fields = append(fields, zap.String("id", rec.ID))
		}
		utils.Logger.Info("result persisted", fields...)
		return nil
	}}}
}

// MaskPreview 取回当前掩码并生成预览
func (e *Editor) MaskPreview(ctx context.Context, id string, keepLargest bool) ([]byte, error) {
	s, err := e.segmentSession(id)
	if err != nil {
		return nil, err
	}
	if e.deps.Masks == nil {
		return nil, ErrMaskUnavailable
	}

	s.mu.Lock()
	ref, source := s.mask, s.source
	s.mu.Unlock()
	if ref == nil {
		return nil, ErrNoMaskReference
	}

	filename := ref.MaskFilename
	if filename == "" {
		filename = ref.Name
	}
	mask, err := e.deps.Segmentation.FetchMask(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mask: %w", err)
	}
	return e.deps.Masks.Preview(source, mask, keepLargest)
}

func (e *Editor) Result(id string) (*Result, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, ErrNoResult
	}
	return s.result, nil
}

// ExportResult 以 png 或 webp 输出当前结果
func (e *Editor) ExportResult(id, format string) ([]byte, string, error) {
	res, err := e.Result(id)
	if err != nil {
		return nil, "", err
	}

	switch format {
	case "", "png":
		if http.DetectContentType(res.Image) == "image/png" {
			return res.Image, "image/png", nil
		}
		img, err := decodeImage(res.Image)
		if err != nil {
			return nil, "", err
		}
		data, err := encodePNG(img)
		if err != nil {
			return nil, "", err
		}
		return data, "image/png", nil
	case "webp":
		img, err := decodeImage(res.Image)
		if err != nil {
			return nil, "", err
		}
		var buf bytes.Buffer
		if err := webp.Encode(&buf, img, &webp.Options{Lossless: true}); err != nil {
			return nil, "", fmt.Errorf("failed to encode webp: %w", err)
		}
		return buf.Bytes(), "image/webp", nil
	default:
		return nil, "", ErrUnknownFormat
	}
}

// CachedResult 缓存不可用或未命中时返回 nil
func (e *Editor) CachedResult(ctx context.Context, md5 string) (*model.ResultRecord, error) {
	if e.deps.Cache == nil {
		return nil, nil
	}
	return e.deps.Cache.GetResult(ctx, md5)
}

func (e *Editor) History(ctx context.Context, bearer, category string) ([]model.ImageRecord, error) {
	return e.deps.Gallery.List(ctx, bearer, category)
}

// Close 丢弃会话的全部状态（重新开始）
func (e *Editor) Close(id string) error {
	s, err := e.sessions.Remove(id)
	if err != nil {
		return err
	}

	if e.opts.Cleanup && s.sourcePath != "" {
		if err := os.Remove(s.sourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			utils.Logger.Warn("failed to delete temp file",
				zap.String("file", s.sourcePath),
				zap.Error(err))
		} else {
			utils.Logger.Debug("temp file deleted", zap.String("file", s.sourcePath))
		}
	}

	utils.Logger.Info("session closed", zap.String("session", id))
	return nil
}

// checkContainer 显示尺寸不超过容器，限制容器即限制每次重绘的内存
func (e *Editor) checkContainer(c canvas.Size) error {
	if e.opts.MaxDisplay > 0 && (c.Width > e.opts.MaxDisplay || c.Height > e.opts.MaxDisplay) {
		return fmt.Errorf("%w: %.0fx%.0f > %.0f", ErrContainerTooBig, c.Width, c.Height, e.opts.MaxDisplay)
	}
	return nil
}

// SweepIdle 关闭超过 SessionTTL 未访问的会话，返回关闭的数量
func (e *Editor) SweepIdle() int {
	if e.opts.SessionTTL <= 0 {
		return 0
	}

	closed := 0
	for _, id := range e.sessions.Idle(e.opts.SessionTTL) {
		if err := e.Close(id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		utils.Logger.Info("idle sessions closed",
			zap.Int("count", closed),
			zap.Duration("ttl", e.opts.SessionTTL))
	}
	return closed
}

// RunJanitor 定期回收空闲会话，ctx 结束时返回
func (e *Editor) RunJanitor(ctx context.Context) {
	if e.opts.SessionTTL <= 0 {
		return
	}

	interval := max(e.opts.SessionTTL/4, time.Second)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.SweepIdle()
		}
	}
}

func (e *Editor) segmentSession(id string) (*Session, error) {
	return e.sessionOf(id, WorkflowSegment)
}

func (e *Editor) compositeSession(id string) (*Session, error) {
	return e.sessionOf(id, WorkflowComposite)
}

func (e *Editor) sessionOf(id string, kind WorkflowKind) (*Session, error) {
	s, err := e.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Workflow != kind {
		return nil, ErrWrongWorkflow
	}
	return s, nil
}

func decodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
