package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Services ServicesConfig `mapstructure:"services"`
	Editor   EditorConfig   `mapstructure:"editor"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	UploadDir    string   `mapstructure:"upload_dir"`
	AllowedTypes []string `mapstructure:"allowed_types"`
	Cleanup      bool     `mapstructure:"cleanup"`
}

// ServicesConfig 远程服务地址
type ServicesConfig struct {
	Segmentation string `mapstructure:"segmentation"`
	Preprocess   string `mapstructure:"preprocess"`
	Blend        string `mapstructure:"blend"`
	Persistence  string `mapstructure:"persistence"`
	Gallery      string `mapstructure:"gallery"`
	// 0 表示不设超时
	Timeout      time.Duration `mapstructure:"timeout"`
	WorkflowPath string        `mapstructure:"workflow_path"`
}

// EditorConfig 画布交互参数，单位为显示像素
type EditorConfig struct {
	Threshold         float64 `mapstructure:"threshold"`
	OverlayScale      float64 `mapstructure:"overlay_scale"`
	OverlayX          float64 `mapstructure:"overlay_x"`
	OverlayY          float64 `mapstructure:"overlay_y"`
	HandleHitSize     float64 `mapstructure:"handle_hit_size"`
	HandleMarkerSize  int     `mapstructure:"handle_marker_size"`
	PointMarkerRadius int     `mapstructure:"point_marker_radius"`
	// MaxDisplay 容器宽高上限，显示画布不会超过该尺寸
	MaxDisplay float64 `mapstructure:"max_display"`
	// SessionTTL 会话空闲多久后被回收，0 表示不回收
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MEDX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate 检查配置取值范围
func (c *Config) Validate() error {
	if c.Editor.Threshold < 0 || c.Editor.Threshold > 1 {
		return fmt.Errorf("editor.threshold must be between 0 and 1")
	}
	if c.Editor.OverlayScale <= 0 {
		return fmt.Errorf("editor.overlay_scale must be positive")
	}
	if c.Editor.HandleHitSize <= 0 {
		return fmt.Errorf("editor.handle_hit_size must be positive")
	}
	if c.Editor.MaxDisplay <= 0 {
		return fmt.Errorf("editor.max_display must be positive")
	}
	if c.Editor.SessionTTL < 0 {
		return fmt.Errorf("editor.session_ttl must not be negative")
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive")
	}
	if c.Services.Timeout < 0 {
		return fmt.Errorf("services.timeout must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttl", d.Redis.TTL)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.upload_dir", d.Upload.UploadDir)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)
	v.SetDefault("upload.cleanup", d.Upload.Cleanup)

	v.SetDefault("services.segmentation", d.Services.Segmentation)
	v.SetDefault("services.preprocess", d.Services.Preprocess)
	v.SetDefault("services.blend", d.Services.Blend)
	v.SetDefault("services.persistence", d.Services.Persistence)
	v.SetDefault("services.gallery", d.Services.Gallery)
	v.SetDefault("services.timeout", d.Services.Timeout)
	v.SetDefault("services.workflow_path", d.Services.WorkflowPath)

	v.SetDefault("editor.threshold", d.Editor.Threshold)
	v.SetDefault("editor.overlay_scale", d.Editor.OverlayScale)
	v.SetDefault("editor.overlay_x", d.Editor.OverlayX)
	v.SetDefault("editor.overlay_y", d.Editor.OverlayY)
	v.SetDefault("editor.handle_hit_size", d.Editor.HandleHitSize)
	v.SetDefault("editor.handle_marker_size", d.Editor.HandleMarkerSize)
	v.SetDefault("editor.point_marker_radius", d.Editor.PointMarkerRadius)
	v.SetDefault("editor.max_display", d.Editor.MaxDisplay)
	v.SetDefault("editor.session_ttl", d.Editor.SessionTTL)
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			// 提交请求等待远程服务，不限制写超时
			WriteTimeout: 0,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			UploadDir:    "./uploads",
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg", "image/webp"},
			Cleanup:      true,
		},
		Services: ServicesConfig{
			Segmentation: "http://127.0.0.1:8000",
			Preprocess:   "http://127.0.0.1:8000",
			Blend:        "http://127.0.0.1:8000",
			Persistence:  "http://127.0.0.1:8000",
			Gallery:      "http://127.0.0.1:8000",
			Timeout:      0,
			WorkflowPath: "./workflow.json",
		},
		Editor: EditorConfig{
			Threshold:         0.92,
			OverlayScale:      0.5,
			OverlayX:          10,
			OverlayY:          10,
			HandleHitSize:     10,
			HandleMarkerSize:  8,
			PointMarkerRadius: 4,
			MaxDisplay:        4096,
			SessionTTL:        2 * time.Hour,
		},
	}
}
