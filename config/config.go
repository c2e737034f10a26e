package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MiniMax struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"` // 默认 https://api.minimax.io/v1
	} `yaml:"minimax"`
	Plan struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"plan"`
	MinIO struct {
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"minio"`
	Storage struct {
		Uploads string `yaml:"uploads"`
		Output  string `yaml:"output"`
		Temp    string `yaml:"temp"`
	} `yaml:"storage"`
	FFmpeg struct {
		FFmpegPath  string `yaml:"ffmpeg_path"`
		FFprobePath string `yaml:"ffprobe_path"`
	} `yaml:"ffmpeg"`
}

// Load 读取 yaml 配置并填充默认值。配置实例由 main 显式传给各组件，
// 不使用包级全局，生成客户端等同样统一构造注入。
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("配置文件读取失败: %w", err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("配置文件解析失败: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.MiniMax.BaseURL == "" {
		c.MiniMax.BaseURL = "https://api.minimax.io/v1"
	}
	if c.Storage.Uploads == "" {
		c.Storage.Uploads = "storage/uploads"
	}
	if c.Storage.Output == "" {
		c.Storage.Output = "storage/output"
	}
	if c.Storage.Temp == "" {
		c.Storage.Temp = "storage/temp"
	}
	if c.FFmpeg.FFmpegPath == "" {
		c.FFmpeg.FFmpegPath = "ffmpeg"
	}
	if c.FFmpeg.FFprobePath == "" {
		c.FFmpeg.FFprobePath = "ffprobe"
	}
}

// EnsureStorageDirs 创建本地存储目录（uploads/output/temp）
func (c *Config) EnsureStorageDirs() error {
	for _, dir := range []string{c.Storage.Uploads, c.Storage.Output, c.Storage.Temp} {
		if err := os.MkdirAll(filepath.Clean(dir), 0o755); err != nil {
			return fmt.Errorf("创建存储目录 %s 失败: %w", dir, err)
		}
	}
	return nil
}
