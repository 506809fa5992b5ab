package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Notion   NotionConfig
	Qdrant   QdrantConfig
	Provider ProviderConfig
	Query    QueryConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPAddr string
	MCPAddr  string
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Path string
}

// RedisConfig 任务队列使用的 Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NotionConfig Notion API 客户端配置
type NotionConfig struct {
	BaseURL           string
	Version           string
	RequestsPerSecond float64
	MaxRetries        int
}

// QdrantConfig 向量库配置
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string
}

// ProviderConfig 生成式模型提供方配置
type ProviderConfig struct {
	// Name 提供方名称：gemini 或 mock
	Name           string
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	GenerateModel  string
}

// QueryConfig 查询配置
type QueryConfig struct {
	TopK int
}

// Load 加载配置，.env 文件存在时优先读取
func Load() *Config {
	// 部署环境通常没有 .env，忽略加载失败
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
			MCPAddr:  getEnv("MCP_ADDR", ":8081"),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "data/notionwiki.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Notion: NotionConfig{
			BaseURL:           getEnv("NOTION_BASE_URL", "https://api.notion.com/v1"),
			Version:           getEnv("NOTION_VERSION", "2025-09-03"),
			RequestsPerSecond: getEnvFloat("NOTION_RPS", 3),
			MaxRetries:        getEnvInt("NOTION_MAX_RETRIES", 3),
		},
		Qdrant: QdrantConfig{
			Host:       getEnv("QDRANT_HOST", "127.0.0.1"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: getEnv("QDRANT_COLLECTION", "notion_chunks"),
		},
		Provider: ProviderConfig{
			Name:           getEnv("PROVIDER", "gemini"),
			APIKey:         getEnv("GEMINI_API_KEY", ""),
			BaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			EmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),
			GenerateModel:  getEnv("GEMINI_GENERATE_MODEL", "gemini-2.0-flash"),
		},
		Query: QueryConfig{
			TopK: getEnvInt("QUERY_TOP_K", 8),
		},
	}
}

// NewDatabaseConfig 创建数据库配置
func NewDatabaseConfig(cfg *Config) *DatabaseConfig {
	return &cfg.Database
}

// NewServerConfig 创建服务器配置
func NewServerConfig(cfg *Config) *ServerConfig {
	return &cfg.Server
}

// getEnv 获取环境变量，带默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvFloat 获取浮点型环境变量
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
