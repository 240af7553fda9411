package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// サービス全般
	AppName    string
	APIPrefix  string
	ListenAddr string
	LogLevel   string
	LogFormat  string

	// Database設定
	Database DatabaseConfig

	// Redis / Task Queue設定
	Redis RedisConfig
	Queue QueueConfig

	// 認証バックエンド
	MainBackendURL string

	// 音声取得設定
	Download DownloadConfig

	// ASRエンジン設定
	Engine EngineConfig

	// Azure Blob Storage設定
	Azure AzureConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig はRedis接続設定（Task Queueのブローカ兼結果ストア）
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// QueueConfig はTask Queueの挙動設定
type QueueConfig struct {
	Name        string
	Concurrency int
	MaxRetry    int
	// TaskTimeout は1タスクの実行上限
	TaskTimeout time.Duration
	// ResultRetention はキュー側結果ストアの保持期間。失効後のステータス照会は
	// Job Storeが引き受ける
	ResultRetention time.Duration
	// PhaseTTL はサブフェーズタグの保持期間
	PhaseTTL time.Duration
}

// DownloadConfig は音声ダウンロードの設定
type DownloadConfig struct {
	// AllowedHosts は許可ホストの集合。完全一致に加えて "*.example.com" 形式の
	// サフィックスパターンを受け付ける。空集合は全拒否（デフォルト拒否）
	AllowedHosts []string
	Timeout      time.Duration
	TmpDir       string
}

// EngineConfig はASRエンジンと任意エンハンスメントの設定
type EngineConfig struct {
	// Backend は "whisperx"（ローカル実行）または "openai"（API）
	Backend           string
	Python            string
	ModelName         string
	Device            string
	ComputeType       string // "float16" on cuda, "int8"/"float32" on cpu
	EnableAlignment   bool
	EnableDiarization bool
	HuggingFaceToken  string
	OpenAIAPIKey      string
	OpenAIModel       string
}

// AzureConfig はユーザ投稿ファイル用のBlob Storage設定
type AzureConfig struct {
	ConnectionString string
	Container        string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		AppName:    getEnv("APP_NAME", "whisperd"),
		APIPrefix:  getEnv("API_PREFIX", "/v1"),
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "whisperd"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "whisperd"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Name:            getEnv("QUEUE_NAME", "transcriptions"),
			Concurrency:     getEnvAsInt("QUEUE_CONCURRENCY", 1),
			MaxRetry:        getEnvAsInt("QUEUE_MAX_RETRY", 0),
			TaskTimeout:     getEnvAsDuration("QUEUE_TASK_TIMEOUT", 30*time.Minute),
			ResultRetention: getEnvAsDuration("QUEUE_RESULT_RETENTION", time.Hour),
			PhaseTTL:        getEnvAsDuration("QUEUE_PHASE_TTL", time.Hour),
		},
		MainBackendURL: getEnv("MAIN_BACKEND_URL", ""),
		Download: DownloadConfig{
			AllowedHosts: getEnvAsList("DOWNLOAD_ALLOWED_HOSTS", nil),
			Timeout:      getEnvAsDuration("DOWNLOAD_TIMEOUT", 60*time.Second),
			TmpDir:       getEnv("DOWNLOAD_TMP_DIR", "data/tmp"),
		},
		Engine: EngineConfig{
			Backend:           getEnv("ASR_BACKEND", "whisperx"),
			Python:            getEnv("WHISPERX_PYTHON", "python3"),
			ModelName:         getEnv("WHISPERX_MODEL_NAME", "large-v2"),
			Device:            getEnv("WHISPERX_DEVICE", "cpu"),
			ComputeType:       getEnv("WHISPERX_COMPUTE_TYPE", "int8"),
			EnableAlignment:   getEnvAsBool("WHISPERX_ENABLE_ALIGNMENT", true),
			EnableDiarization: getEnvAsBool("WHISPERX_ENABLE_DIARIZATION", false),
			HuggingFaceToken:  getEnv("HUGGINGFACE_TOKEN", ""),
			OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:       getEnv("OPENAI_ASR_MODEL", "whisper-1"),
		},
		Azure: AzureConfig{
			ConnectionString: getEnv("AZURE_STORAGE_CONNECTION_STRING", ""),
			Container:        getEnv("AZURE_CONTAINER_NAME", ""),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数をtime.Duration形式（例: "60s", "30m"）で取得します
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList は環境変数をカンマ区切りのリストとして取得します
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			values = append(values, v)
		}
	}
	return values
}
