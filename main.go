package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/Harikrishna-AL/MedX/canvas"
	"github.com/Harikrishna-AL/MedX/config"
	"github.com/Harikrishna-AL/MedX/handler"
	"github.com/Harikrishna-AL/MedX/middleware"
	"github.com/Harikrishna-AL/MedX/service"
	"github.com/Harikrishna-AL/MedX/service/mask"
	"github.com/Harikrishna-AL/MedX/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	BuildID   = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

func main() {
	// 加载配置
	cfg := config.New()

	// 初始化日志
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer utils.Sync()

	utils.Logger.Info("starting MedX editor server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("git_branch", GitBranch))

	// 确保上传目录存在
	if err := os.MkdirAll(cfg.Upload.UploadDir, 0755); err != nil {
		utils.Logger.Fatal("failed to create upload directory", zap.Error(err))
	}

	workflow, err := service.LoadWorkflow(cfg.Services.WorkflowPath)
	if err != nil {
		utils.Logger.Fatal("failed to load workflow", zap.String("path", cfg.Services.WorkflowPath), zap.Error(err))
	}

	// 初始化Redis，不可用时不缓存结果
	redisService := service.NewRedisService(&cfg.Redis)
	deps := service.EditorDeps{
		Segmentation: service.NewSegmentationClient(cfg.Services.Segmentation, cfg.Services.Timeout),
		Preprocess:   service.NewPreprocessClient(cfg.Services.Preprocess, cfg.Services.Timeout),
		Blend:        service.NewBlendClient(cfg.Services.Blend, cfg.Services.Timeout),
		Persistence:  service.NewPersistenceClient(cfg.Services.Persistence, cfg.Services.Timeout),
		Gallery:      service.NewGalleryClient(cfg.Services.Gallery, cfg.Services.Timeout),
		Masks:        mask.NewProcessor(),
		Workflow:     workflow,
	}
	if err := redisService.Ping(context.Background()); err != nil {
		utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
	} else {
		utils.Logger.Info("redis connected successfully")
		deps.Cache = redisService
	}
	defer redisService.Close()

	editor := service.NewEditor(deps, service.EditorOptions{
		Threshold: cfg.Editor.Threshold,
		Overlay: canvas.OverlayOptions{
			Origin:     canvas.Point{X: cfg.Editor.OverlayX, Y: cfg.Editor.OverlayY},
			Scale:      cfg.Editor.OverlayScale,
			HandleSize: cfg.Editor.HandleHitSize,
		},
		Render: canvas.RenderOptions{
			HandleMarkerSize:  cfg.Editor.HandleMarkerSize,
			PointMarkerRadius: cfg.Editor.PointMarkerRadius,
		},
		Cleanup:    cfg.Upload.Cleanup,
		MaxDisplay: cfg.Editor.MaxDisplay,
		SessionTTL: cfg.Editor.SessionTTL,
	})

	// 回收空闲会话
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go editor.RunJanitor(janitorCtx)

	// 初始化Handler
	editorHandler := handler.NewEditorHandler(cfg, editor)

	// 设置Gin模式
	gin.SetMode(cfg.Server.Mode)

	// 创建路由
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.Bearer())
	r.MaxMultipartMemory = cfg.Upload.MaxSize

	// 健康检查和版本信息
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "ok",
			"version":  Version,
			"sessions": editor.Sessions().Len(),
		})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"build_id":   BuildID,
			"git_commit": GitCommit,
			"git_branch": GitBranch,
		})
	})

	// API路由
	editorHandler.Register(r.Group("/api/v1"))

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		utils.Logger.Fatal("failed to start server", zap.Error(err))
	}
}
