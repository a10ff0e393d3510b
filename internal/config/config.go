package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	DataPlanePort   string
	DataPlaneURL    string
	DataPlaneAPIKey string
	ManagerPort     string

	FaceitClientID     string
	FaceitClientSecret string
	OAuthTokenURL      string

	WorkerBinary string

	ChatWebsocketURL string
	ChatAuthURL      string
	ChatAdminURL     string
	ChatDomain       string
	MucDomain        string
	SupergroupDomain string

	AccessTokenTTL      time.Duration
	ChatTokenTTL        time.Duration
	RefreshMinAge       time.Duration
	ForcedRefreshMinAge time.Duration

	Verbose bool
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "chatbot"),

		DataPlanePort:   getEnv("DATA_PLANE_PORT", "3008"),
		DataPlaneURL:    getEnv("DATA_PLANE_URL", "http://127.0.0.1:3008"),
		DataPlaneAPIKey: getEnv("DATA_PLANE_API_KEY", ""),
		ManagerPort:     getEnv("MANAGER_PORT", "3009"),

		FaceitClientID:     getEnv("FACEIT_CLIENT_ID", ""),
		FaceitClientSecret: getEnv("FACEIT_CLIENT_SECRET", ""),
		OAuthTokenURL:      getEnv("FACEIT_OAUTH_TOKEN_URL", "https://api.faceit.com/auth/v1/oauth/token"),

		WorkerBinary: getEnv("WORKER_BINARY", "./worker"),

		ChatWebsocketURL: getEnv("CHAT_WEBSOCKET_URL", "wss://chat-server.faceit.com/ws-xmpp"),
		ChatAuthURL:      getEnv("CHAT_AUTH_URL", "https://api.faceit.com/auth/v1/sessions/chat"),
		ChatAdminURL:     getEnv("CHAT_ADMIN_URL", "https://chat-server.faceit.com/admin"),
		ChatDomain:       getEnv("CHAT_DOMAIN", "faceit.com"),
		MucDomain:        getEnv("MUC_DOMAIN", "conference.faceit.com"),
		SupergroupDomain: getEnv("SUPERGROUP_DOMAIN", "supergroup.faceit.com"),

		AccessTokenTTL:      getEnvDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		ChatTokenTTL:        getEnvDuration("CHAT_TOKEN_TTL", time.Hour),
		RefreshMinAge:       getEnvDuration("REFRESH_MIN_AGE", 30*time.Minute),
		ForcedRefreshMinAge: getEnvDuration("FORCED_REFRESH_MIN_AGE", time.Minute),

		Verbose: getEnvBool("VERBOSE_LOGGING", false),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
