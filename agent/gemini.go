package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/skolmuirgheasa/resquared-automation/config"
	"github.com/skolmuirgheasa/resquared-automation/executor"
	"github.com/skolmuirgheasa/resquared-automation/pkg/logger"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiDecider 用 Gemini 做决策,每轮一次结构化补全
type GeminiDecider struct {
	client      *genai.Client
	model       string
	temperature float32
	limiter     *rate.Limiter
	prompts     *PromptBuilder
	maxElapsed  time.Duration
}

// NewGeminiDecider 创建 Gemini 决策器,缺少 API key 时返回错误
func NewGeminiDecider(ctx context.Context, cfg *config.LLMConfig) (*GeminiDecider, error) {
	if cfg == nil {
		cfg = config.DefaultLLM()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: LLM API key is required (set llm.api_key or LLM_API_KEY)", executor.ErrUpstreamUnavailable)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &GeminiDecider{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		prompts:     NewPromptBuilder(cfg.MaxPageChars),
		maxElapsed:  time.Minute,
	}, nil
}

// Decide 生成下一步动作。网络错误按指数退避重试,解析失败不重试。
func (g *GeminiDecider) Decide(ctx context.Context, in DecisionInput) (Decision, error) {
	prompt := g.prompts.Build(in)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = g.maxElapsed
	b.MaxInterval = 15 * time.Second

	var text string
	operation := func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		start := time.Now()
		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
			Temperature:       genai.Ptr(g.temperature),
			ResponseMIMEType:  "application/json",
			SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
		})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			logger.Warn(ctx, "[Decide] generation failed, retrying: %v", err)
			return err
		}
		text = resp.Text()
		if text == "" {
			return errors.New("model returned empty content")
		}
		logger.Debug(ctx, "[Decide] generation complete in %v", time.Since(start))
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		return Decision{}, fmt.Errorf("%w: decision model: %v", executor.ErrUpstreamUnavailable, err)
	}

	d, err := ParseDecision(text)
	if err != nil {
		return d, err
	}
	logger.Info(ctx, "[Decide] done=%v %s", d.Done, actionFields(d.Action))
	return d, nil
}
