package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendDynamoDB = "dynamodb"
	StoreBackendMemory   = "memory"

	MessageLogModeSync  = "sync"
	MessageLogModeAsync = "async"

	maxHistoryLimit = 6
)

type Config struct {
	LogLevel    string
	Debug       bool
	ServiceName string
	Environment string
	Hostname    string
	ServerPort  string

	// WhatsApp Cloud API
	VerifyToken     string
	WhatsAppToken   string
	PhoneNumberID   string
	WhatsAppAPIBase string
	AppSecret       string

	// Storage
	StoreBackend          string
	DatabaseURL           string
	DBMaxConns            int
	AutoMigrate           bool
	DynamoContactsTable   string
	DynamoMessagesTable   string
	AWSRegion             string
	ProfileCacheTTL       time.Duration
	MessageLogMode        string
	HistoryLimit          int
	SSMParameterPrefix    string
	MessageSaverBatchSize int

	// Business hours gate
	BusinessHoursStart int
	BusinessHoursEnd   int
	BusinessTimezone   string
	BusinessDays       string
	OutOfHoursTemplate string
	HandoffKeywords    []string

	// Reply / language services
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	AgentID       string
	GeminiAPIKeys []string
	GeminiModel   string
}

func LoadConfig() (*Config, error) {
	serverPort := getEnv("SERVER_PORT", getEnv("PORT", "8080"))

	databaseURL := os.Getenv("DATABASE_URL")
	// An empty backend is resolved once DATABASE_URL is final, see resolveStoreBackend.
	storeBackend := strings.ToLower(os.Getenv("STORE_BACKEND"))
	switch storeBackend {
	case "", StoreBackendPostgres, StoreBackendDynamoDB, StoreBackendMemory:
	default:
		return nil, errors.New("STORE_BACKEND must be one of postgres, dynamodb, memory")
	}

	messageLogMode := strings.ToLower(getEnv("MESSAGE_LOG_MODE", MessageLogModeSync))
	if messageLogMode != MessageLogModeSync && messageLogMode != MessageLogModeAsync {
		return nil, errors.New("MESSAGE_LOG_MODE must be sync or async")
	}

	historyLimit := getEnvInt("HISTORY_LIMIT", maxHistoryLimit)
	if historyLimit < 1 || historyLimit > maxHistoryLimit {
		historyLimit = maxHistoryLimit
	}

	cacheTTL := 24 * time.Hour
	if v := os.Getenv("PROFILE_CACHE_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			cacheTTL = parsed
		}
	}

	start := getEnvInt("BUSINESS_HOURS_START", 8)
	end := getEnvInt("BUSINESS_HOURS_END", 18)
	if start < 0 || start > 24 || end < 0 || end > 24 {
		return nil, errors.New("BUSINESS_HOURS_START and BUSINESS_HOURS_END must be between 0 and 24")
	}
	timezone := getEnv("BUSINESS_TIMEZONE", "America/Sao_Paulo")
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, errors.New("BUSINESS_TIMEZONE is not a valid IANA timezone")
	}

	handoffKeywords := splitCSV(os.Getenv("HANDOFF_KEYWORDS"))
	if len(handoffKeywords) == 0 {
		handoffKeywords = []string{"human", "atendente", "humano"}
	}

	cfg := &Config{
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Debug:       getEnv("DEBUG", "false") == "true",
		ServiceName: getEnv("SERVICE_NAME", "whatsapp-concierge"),
		Environment: getEnv("ENVIRONMENT", "development"),
		Hostname:    getEnv("HOSTNAME", "whatsapp-concierge"),
		ServerPort:  serverPort,

		VerifyToken:     os.Getenv("VERIFY_TOKEN"),
		WhatsAppToken:   os.Getenv("WHATSAPP_TOKEN"),
		PhoneNumberID:   os.Getenv("PHONE_NUMBER_ID"),
		WhatsAppAPIBase: strings.TrimRight(getEnv("WHATSAPP_API_BASE", "https://graph.facebook.com/v20.0"), "/"),
		AppSecret:       os.Getenv("WHATSAPP_APP_SECRET"),

		StoreBackend:          storeBackend,
		DatabaseURL:           databaseURL,
		DBMaxConns:            getEnvInt("DB_MAX_CONNS", 10),
		AutoMigrate:           getEnv("AUTO_MIGRATE", "true") == "true",
		DynamoContactsTable:   getEnv("DYNAMODB_CONTACTS_TABLE", "wa_contacts"),
		DynamoMessagesTable:   getEnv("DYNAMODB_MESSAGES_TABLE", "wa_messages"),
		AWSRegion:             os.Getenv("AWS_REGION"),
		ProfileCacheTTL:       cacheTTL,
		MessageLogMode:        messageLogMode,
		HistoryLimit:          historyLimit,
		SSMParameterPrefix:    strings.TrimRight(os.Getenv("SSM_PARAMETER_PREFIX"), "/"),
		MessageSaverBatchSize: getEnvInt("MESSAGE_SAVER_BATCH_SIZE", 100),

		BusinessHoursStart: start,
		BusinessHoursEnd:   end,
		BusinessTimezone:   timezone,
		BusinessDays:       os.Getenv("BUSINESS_DAYS"),
		OutOfHoursTemplate: os.Getenv("OUT_OF_HOURS_TEMPLATE"),
		HandoffKeywords:    handoffKeywords,

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		AgentID:       os.Getenv("AGENT_ID"),
		GeminiAPIKeys: splitCSV(os.Getenv("GEMINI_API_KEYS")),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.0-flash-lite"),
	}

	// Secrets may still arrive from SSM; the caller validates after the overlay.
	if cfg.SSMParameterPrefix != "" {
		return cfg, nil
	}
	cfg.resolveStoreBackend()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the keys without which no webhook can be served.
func (c *Config) Validate() error {
	if c.VerifyToken == "" {
		return errors.New("VERIFY_TOKEN is required")
	}
	if c.WhatsAppToken == "" {
		return errors.New("WHATSAPP_TOKEN is required")
	}
	if c.PhoneNumberID == "" {
		return errors.New("PHONE_NUMBER_ID is required")
	}
	if c.StoreBackend == StoreBackendPostgres && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for the postgres store backend")
	}
	return nil
}

// resolveStoreBackend picks postgres when a database URL is known and memory
// otherwise, unless STORE_BACKEND chose explicitly.
func (c *Config) resolveStoreBackend() {
	if c.StoreBackend != "" {
		return
	}
	c.StoreBackend = StoreBackendMemory
	if c.DatabaseURL != "" {
		c.StoreBackend = StoreBackendPostgres
	}
}

func getEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return def
}

// splitCSV splits a comma-separated list, trimming whitespace and dropping empties.
func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
