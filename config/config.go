package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const DefaultModelPath = "models/brain_tumor_yolov8s.onnx"

// Config holds the service configuration.
type Config struct {
	Host string
	Port string

	ModelPath  string
	ORTLibPath string

	// LabelsPath points at the class label table. LabelsRequired is set when
	// the path came from the environment rather than the default.
	LabelsPath     string
	LabelsRequired bool

	InputSize      int
	ConfThreshold  float32
	IoUThreshold   float32
	MaxDetections  int
	PoolSize       int
	AcquireTimeout time.Duration

	MaxUploadBytes int64
	MaxImagePixels int64
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CORSOrigin     string

	RequireModel bool
	Debug        bool
}

// LoadEnvFiles loads variables from the given .env files into the process
// environment. Missing files are reported but not fatal.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var missing []string
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("env files not loaded: %v", missing)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Host:           getEnvOrDefault("HOST", "0.0.0.0"),
		Port:           getEnvOrDefault("PORT", "8000"),
		ModelPath:      getEnvOrDefault("MODEL_PATH", DefaultModelPath),
		ORTLibPath:     getEnvOrDefault("ORT_LIB_PATH", defaultLibPath()),
		LabelsPath:     getEnvOrDefault("LABELS_PATH", "labels.yaml"),
		LabelsRequired: os.Getenv("LABELS_PATH") != "",
		InputSize:      getEnvAsIntOrDefault("INPUT_SIZE", 640),
		ConfThreshold:  getEnvAsFloatOrDefault("CONF_THRESHOLD", 0.25),
		IoUThreshold:   getEnvAsFloatOrDefault("IOU_THRESHOLD", 0.7),
		MaxDetections:  getEnvAsIntOrDefault("MAX_DETECTIONS", 300),
		PoolSize:       getEnvAsIntOrDefault("POOL_SIZE", 4),
		AcquireTimeout: getEnvAsDurationOrDefault("ACQUIRE_TIMEOUT", 5*time.Second),
		MaxUploadBytes: getEnvAsInt64OrDefault("MAX_UPLOAD_BYTES", 32<<20),
		MaxImagePixels: getEnvAsInt64OrDefault("MAX_IMAGE_PIXELS", 40_000_000),
		ReadTimeout:    getEnvAsDurationOrDefault("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:   getEnvAsDurationOrDefault("WRITE_TIMEOUT", 60*time.Second),
		CORSOrigin:     getEnvOrDefault("CORS_ORIGIN", "*"),
		RequireModel:   getEnvAsBoolOrDefault("REQUIRE_MODEL", true),
		Debug:          getEnvAsBoolOrDefault("DEBUG", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if c.InputSize < 32 || c.InputSize%32 != 0 {
		return fmt.Errorf("INPUT_SIZE must be a positive multiple of 32, got %d", c.InputSize)
	}
	if c.ConfThreshold <= 0 || c.ConfThreshold > 1 {
		return fmt.Errorf("CONF_THRESHOLD must be within (0,1], got %v", c.ConfThreshold)
	}
	if c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("IOU_THRESHOLD must be within (0,1], got %v", c.IoUThreshold)
	}
	if c.MaxDetections < 1 {
		return fmt.Errorf("MAX_DETECTIONS must be positive, got %d", c.MaxDetections)
	}
	if c.PoolSize < 1 || c.PoolSize > 64 {
		return fmt.Errorf("POOL_SIZE must be between 1 and 64, got %d", c.PoolSize)
	}
	if c.MaxUploadBytes < 1024 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be at least 1KB, got %d", c.MaxUploadBytes)
	}
	if c.MaxImagePixels < 1 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.MaxImagePixels)
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// AbsModelPath resolves the weights path against the working directory.
func (c *Config) AbsModelPath() (string, error) {
	return filepath.Abs(filepath.Clean(c.ModelPath))
}

func defaultLibPath() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join("lib", "libonnxruntime.dylib")
	case "windows":
		return filepath.Join("lib", "onnxruntime.dll")
	default:
		return filepath.Join("lib", "libonnxruntime.so")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	value, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float32) float32 {
	value, err := strconv.ParseFloat(os.Getenv(key), 32)
	if err != nil {
		return defaultValue
	}
	return float32(value)
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("5s") or plain milliseconds.
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
