// Package config loads settings from the environment and an optional .env
// file, and builds the process logger.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"fantaco-agents/internal/integrations/paramstore"
)

const (
	LlamaStackTokenParam = "llama-stack-token"
	LangfuseKeysParam    = "langfuse"
)

type Settings struct {
	LlamaStackBaseURL string
	LlamaStackAPIKey  string
	InferenceModel    string

	CustomerAPIBaseURL   string
	FinanceAPIBaseURL    string
	CustomerMCPServerURL string
	FinanceMCPServerURL  string

	CustomerMCPAddr   string
	FinanceMCPAddr    string
	FinanceAgentAddr  string
	CustomerAgentAddr string
	APIAddr           string

	LangfusePublicKey string
	LangfuseSecretKey string
	LangfuseBaseURL   string

	LangflowURL    string
	LangflowAPIKey string
	LangflowFlowID string

	ShieldID         string
	StateTable       string
	ParamPrefix      string
	CORSOrigin       string
	LogLevel         string
	ServiceURL       string
	MaxMessageLength int
	MaxSessionTurns  int
	MaxHistory       int
	// ChatTemperature is nil unless CHAT_TEMPERATURE is set to a number.
	ChatTemperature *float64
}

// New returns a viper instance reading the process environment. When envFile
// exists it is read as a dotenv file; real environment variables win.
func New(envFile string) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()

	defaults := map[string]any{
		"LLAMA_STACK_BASE_URL":  "http://localhost:8321",
		"INFERENCE_MODEL":       "ollama/llama3.2:3b",
		"CUSTOMER_API_BASE_URL": "http://localhost:8081",
		"FINANCE_API_BASE_URL":  "http://localhost:8082",
		"HOST_FOR_CUSTOMER_MCP": "0.0.0.0",
		"PORT_FOR_CUSTOMER_MCP": 9001,
		"HOST_FOR_FINANCE_MCP":  "0.0.0.0",
		"PORT_FOR_FINANCE_MCP":  9002,
		"FINANCE_AGENT_HOST":    "0.0.0.0",
		"FINANCE_AGENT_PORT":    9003,
		"CUSTOMER_AGENT_HOST":   "0.0.0.0",
		"CUSTOMER_AGENT_PORT":   9004,
		"FASTAPI_HOST":          "0.0.0.0",
		"FASTAPI_PORT":          8000,
		"LANGFUSE_BASE_URL":     "https://cloud.langfuse.com",
		"LANGFLOW_URL":          "http://localhost:7860",
		"CORS_ORIGIN":           "http://localhost:3002",
		"LOG_LEVEL":             "info",
		"SERVICE_URL":           "langgraph-fastapi",
		"MAX_MESSAGE_LENGTH":    2000,
		"MAX_SESSION_TURNS":     20,
		"MAX_HISTORY":           20,
	}
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	if envFile == "" {
		return v, nil
	}
	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("config: stat %s: %w", envFile, err)
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", envFile, err)
	}
	return v, nil
}

// Load reads Settings from v.
func Load(v *viper.Viper) Settings {
	apiKey := v.GetString("LLAMA_STACK_API_KEY")
	if apiKey == "" {
		apiKey = v.GetString("API_KEY")
	}
	s := Settings{
		LlamaStackBaseURL:    v.GetString("LLAMA_STACK_BASE_URL"),
		LlamaStackAPIKey:     apiKey,
		InferenceModel:       v.GetString("INFERENCE_MODEL"),
		CustomerAPIBaseURL:   v.GetString("CUSTOMER_API_BASE_URL"),
		FinanceAPIBaseURL:    v.GetString("FINANCE_API_BASE_URL"),
		CustomerMCPServerURL: v.GetString("CUSTOMER_MCP_SERVER_URL"),
		FinanceMCPServerURL:  v.GetString("FINANCE_MCP_SERVER_URL"),
		CustomerMCPAddr:      hostPort(v, "HOST_FOR_CUSTOMER_MCP", "PORT_FOR_CUSTOMER_MCP"),
		FinanceMCPAddr:       hostPort(v, "HOST_FOR_FINANCE_MCP", "PORT_FOR_FINANCE_MCP"),
		FinanceAgentAddr:     hostPort(v, "FINANCE_AGENT_HOST", "FINANCE_AGENT_PORT"),
		CustomerAgentAddr:    hostPort(v, "CUSTOMER_AGENT_HOST", "CUSTOMER_AGENT_PORT"),
		APIAddr:              hostPort(v, "FASTAPI_HOST", "FASTAPI_PORT"),
		LangfusePublicKey:    v.GetString("LANGFUSE_PUBLIC_KEY"),
		LangfuseSecretKey:    v.GetString("LANGFUSE_SECRET_KEY"),
		LangfuseBaseURL:      v.GetString("LANGFUSE_BASE_URL"),
		LangflowURL:          v.GetString("LANGFLOW_URL"),
		LangflowAPIKey:       v.GetString("LANGFLOW_API_KEY"),
		LangflowFlowID:       v.GetString("LANGFLOW_FLOW_ID"),
		ShieldID:             v.GetString("SHIELD_ID"),
		StateTable:           v.GetString("STATE_TABLE"),
		ParamPrefix:          v.GetString("PARAM_PREFIX"),
		CORSOrigin:           v.GetString("CORS_ORIGIN"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		ServiceURL:           v.GetString("SERVICE_URL"),
		MaxMessageLength:     v.GetInt("MAX_MESSAGE_LENGTH"),
		MaxSessionTurns:      v.GetInt("MAX_SESSION_TURNS"),
		MaxHistory:           v.GetInt("MAX_HISTORY"),
	}
	if s.CustomerMCPServerURL == "" {
		s.CustomerMCPServerURL = v.GetString("MCP_CUSTOMER_SERVER_URL")
	}
	if raw := strings.TrimSpace(v.GetString("CHAT_TEMPERATURE")); raw != "" {
		if t, err := strconv.ParseFloat(raw, 64); err == nil {
			s.ChatTemperature = &t
		}
	}
	return s
}

func hostPort(v *viper.Viper, hostKey, portKey string) string {
	return net.JoinHostPort(v.GetString(hostKey), strconv.Itoa(v.GetInt(portKey)))
}

// LlamaStackTokenName is the SSM parameter holding the Llama Stack key, or ""
// when no prefix is configured or a key is already set.
func (s Settings) LlamaStackTokenName() string {
	if s.LlamaStackAPIKey != "" || s.ParamPrefix == "" {
		return ""
	}
	return paramstore.Name(s.ParamPrefix, LlamaStackTokenParam)
}

type jsonGetter interface {
	GetJSON(ctx context.Context, name string, v any) error
}

type langfuseKeys struct {
	PublicKey string `json:"public_key"`
	SecretKey string `json:"secret_key"`
}

// ResolveLangfuseKeys fills missing Langfuse keys from the SSM parameter
// <PARAM_PREFIX>/langfuse. Keys already present in the environment win.
func (s *Settings) ResolveLangfuseKeys(ctx context.Context, params jsonGetter) error {
	if s.LangfusePublicKey != "" && s.LangfuseSecretKey != "" {
		return nil
	}
	if s.ParamPrefix == "" || params == nil {
		return nil
	}
	var keys langfuseKeys
	if err := params.GetJSON(ctx, paramstore.Name(s.ParamPrefix, LangfuseKeysParam), &keys); err != nil {
		return fmt.Errorf("config: resolve langfuse keys: %w", err)
	}
	if s.LangfusePublicKey == "" {
		s.LangfusePublicKey = keys.PublicKey
	}
	if s.LangfuseSecretKey == "" {
		s.LangfuseSecretKey = keys.SecretKey
	}
	return nil
}

// LangfuseEnabled reports whether both Langfuse keys are known.
func (s Settings) LangfuseEnabled() bool {
	return s.LangfusePublicKey != "" && s.LangfuseSecretKey != ""
}

// ParseLevel maps LOG_LEVEL values onto slog levels, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a JSON logger for services or a text logger for the CLI.
func NewLogger(w io.Writer, level string, text bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if text {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
