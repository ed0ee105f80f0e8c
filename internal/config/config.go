package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CRASHANALYTIX"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Models   ModelsConfig   `mapstructure:"models"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Plate    PlateConfig    `mapstructure:"plate"`
	Collage  CollageConfig  `mapstructure:"collage"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	Mode           string        `mapstructure:"mode"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type ModelsConfig struct {
	Accident  string `mapstructure:"accident"`
	Severity  string `mapstructure:"severity"`
	Object    string `mapstructure:"object"`
	InputSize int    `mapstructure:"input_size"`
	// MinConfidence applies to detectors called without an explicit threshold.
	MinConfidence float64 `mapstructure:"min_confidence"`
	NMSThreshold  float64 `mapstructure:"nms_threshold"`
}

type PipelineConfig struct {
	AccidentStride      int           `mapstructure:"accident_stride"`
	CropSize            int           `mapstructure:"crop_size"`
	SnapshotCount       int           `mapstructure:"snapshot_count"`
	Workers             int           `mapstructure:"workers"`
	ObjectMinConfidence float64       `mapstructure:"object_min_confidence"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

type PlateConfig struct {
	Stride           int     `mapstructure:"stride"`
	MinOCRConfidence float64 `mapstructure:"min_ocr_confidence"`
	MinCropSide      int     `mapstructure:"min_crop_side"`
	Language         string  `mapstructure:"language"`
}

type CollageConfig struct {
	OutputDir  string `mapstructure:"output_dir"`
	CellWidth  int    `mapstructure:"cell_width"`
	CellHeight int    `mapstructure:"cell_height"`
	Padding    int    `mapstructure:"padding"`
}

type StorageConfig struct {
	WorkDir string `mapstructure:"work_dir"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_upload_mb", 512)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.connect_timeout", 5*time.Second)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("models.accident", "models/accident.onnx")
	v.SetDefault("models.severity", "models/severity.onnx")
	v.SetDefault("models.object", "models/yolov8n.onnx")
	v.SetDefault("models.input_size", 640)
	v.SetDefault("models.min_confidence", 0.25)
	v.SetDefault("models.nms_threshold", 0.45)

	v.SetDefault("pipeline.accident_stride", 1)
	v.SetDefault("pipeline.crop_size", 224)
	v.SetDefault("pipeline.snapshot_count", 8)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.object_min_confidence", 0.4)
	v.SetDefault("pipeline.request_timeout", 5*time.Minute)

	v.SetDefault("plate.stride", 15)
	v.SetDefault("plate.min_ocr_confidence", 0.4)
	v.SetDefault("plate.min_crop_side", 100)
	v.SetDefault("plate.language", "eng")

	v.SetDefault("collage.output_dir", "collages")
	v.SetDefault("collage.cell_width", 320)
	v.SetDefault("collage.cell_height", 240)
	v.SetDefault("collage.padding", 10)

	v.SetDefault("storage.work_dir", "")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads an optional .env file, an optional config file and
// CRASHANALYTIX_* environment variables, in increasing priority. An empty
// path searches for config.yaml in the working directory and ./config.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Pipeline.AccidentStride < 1:
		return fmt.Errorf("pipeline.accident_stride must be positive, got %d", c.Pipeline.AccidentStride)
	case c.Plate.Stride < 1:
		return fmt.Errorf("plate.stride must be positive, got %d", c.Plate.Stride)
	case c.Pipeline.Workers < 1:
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	case c.Pipeline.CropSize < 1:
		return fmt.Errorf("pipeline.crop_size must be positive, got %d", c.Pipeline.CropSize)
	case c.Collage.CellWidth < 1 || c.Collage.CellHeight < 1:
		return fmt.Errorf("collage cell size must be positive, got %dx%d", c.Collage.CellWidth, c.Collage.CellHeight)
	case c.Collage.Padding < 0:
		return fmt.Errorf("collage.padding must not be negative, got %d", c.Collage.Padding)
	}
	return nil
}
