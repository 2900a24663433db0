// Package app wires integration clients from Settings for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"fantaco-agents/internal/config"
	"fantaco-agents/internal/integrations/langfuse"
	"fantaco-agents/internal/integrations/llamastack"
	"fantaco-agents/internal/integrations/paramstore"
	"fantaco-agents/internal/repository"
	"fantaco-agents/internal/usecase"
)

// Deps lazily loads the AWS config so that local runs without PARAM_PREFIX or
// STATE_TABLE never touch AWS.
type Deps struct {
	Settings config.Settings
	Logger   *slog.Logger

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error

	LoadAWS func(ctx context.Context) (aws.Config, error)
}

func New(s config.Settings, logger *slog.Logger) *Deps {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deps{
		Settings: s,
		Logger:   logger,
		LoadAWS: func(ctx context.Context) (aws.Config, error) {
			return awsconfig.LoadDefaultConfig(ctx)
		},
	}
}

func (d *Deps) aws(ctx context.Context) (aws.Config, error) {
	d.awsOnce.Do(func() {
		d.awsCfg, d.awsErr = d.LoadAWS(ctx)
		if d.awsErr != nil {
			d.awsErr = fmt.Errorf("app: load AWS config: %w", d.awsErr)
		}
	})
	return d.awsCfg, d.awsErr
}

// ParamStore returns nil when PARAM_PREFIX is unset.
func (d *Deps) ParamStore(ctx context.Context) (*paramstore.Client, error) {
	if d.Settings.ParamPrefix == "" {
		return nil, nil
	}
	cfg, err := d.aws(ctx)
	if err != nil {
		return nil, err
	}
	return paramstore.New(awsssm.NewFromConfig(cfg))
}

func (d *Deps) LlamaStack(ctx context.Context) (*llamastack.Client, error) {
	var opts []llamastack.Option
	switch name := d.Settings.LlamaStackTokenName(); {
	case d.Settings.LlamaStackAPIKey != "":
		opts = append(opts, llamastack.WithAPIKey(d.Settings.LlamaStackAPIKey))
	case name != "":
		ps, err := d.ParamStore(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, llamastack.WithParamStore(ps, name))
	}
	return llamastack.NewClient(d.Settings.LlamaStackBaseURL, opts...)
}

// StateStore returns the DynamoDB store when STATE_TABLE is set and an
// in-memory store otherwise.
func (d *Deps) StateStore(ctx context.Context) (usecase.StateReadWriter, error) {
	if d.Settings.StateTable == "" {
		d.Logger.Info("STATE_TABLE not set, using in-memory session store")
		return repository.NewMemory(), nil
	}
	cfg, err := d.aws(ctx)
	if err != nil {
		return nil, err
	}
	return repository.New(awsdynamodb.NewFromConfig(cfg), d.Settings.StateTable)
}

// Langfuse returns nil when no keys are available, which disables tracing.
func (d *Deps) Langfuse(ctx context.Context) (*langfuse.Client, error) {
	s := &d.Settings
	if !s.LangfuseEnabled() && s.ParamPrefix != "" {
		ps, err := d.ParamStore(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.ResolveLangfuseKeys(ctx, ps); err != nil {
			return nil, err
		}
	}
	if !s.LangfuseEnabled() {
		d.Logger.Info("langfuse keys not set, tracing disabled")
		return nil, nil
	}
	return langfuse.NewClient(s.LangfuseBaseURL, s.LangfusePublicKey, s.LangfuseSecretKey)
}

// ChatService assembles the traced chatbot.
func (d *Deps) ChatService(ctx context.Context) (*usecase.ChatService, error) {
	llm, err := d.LlamaStack(ctx)
	if err != nil {
		return nil, err
	}
	state, err := d.StateStore(ctx)
	if err != nil {
		return nil, err
	}
	opts := []usecase.ChatOption{usecase.WithLogger(d.Logger)}
	if d.Settings.ShieldID != "" {
		opts = append(opts, usecase.WithModerator(llm))
	}
	tracer, err := d.Langfuse(ctx)
	if err != nil {
		return nil, err
	}
	if tracer != nil {
		opts = append(opts, usecase.WithTracer(tracer))
	}
	if s := d.Settings; s.CustomerMCPServerURL != "" && s.FinanceMCPServerURL != "" {
		opts = append(opts, usecase.WithMCPTools(llm, usecase.FantacoMCPTools(s.CustomerMCPServerURL, s.FinanceMCPServerURL)...))
	}
	return usecase.NewChatService(llm, state, usecase.ChatConfig{
		Model:            d.Settings.InferenceModel,
		ShieldID:         d.Settings.ShieldID,
		MaxMessageLength: d.Settings.MaxMessageLength,
		MaxSessionTurns:  d.Settings.MaxSessionTurns,
		MaxHistory:       d.Settings.MaxHistory,
		Temperature:      d.Settings.ChatTemperature,
	}, opts...)
}
