package inference

import (
	"fmt"
	"os"
	"strings"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindOpenRouter Kind = "openrouter"
	KindGemini     Kind = "gemini"
)

// TierConfig is one entry of the advisory routing file. The first entry is
// the primary tier; the rest are fallbacks in order.
type TierConfig struct {
	Label       string        `yaml:"label" validate:"required,max=64"`
	Kind        Kind          `yaml:"kind" validate:"required,oneof=openrouter gemini"`
	Model       string        `yaml:"model" validate:"required"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
	MaxTokens   int           `yaml:"max_tokens" validate:"gte=0,lte=8192"`
	Temperature float64       `yaml:"temperature" validate:"gte=0,lte=2"`
}

type tierFile struct {
	Tiers []TierConfig `yaml:"tiers" validate:"required,min=1,max=4,dive"`
}

// Keys carries the API keys per provider kind.
type Keys struct {
	OpenRouter string
	Gemini     string
}

var validate = validator.New()

// LoadTiers reads and validates the routing file at path.
func LoadTiers(path string) ([]TierConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, crerr.Wrapf(err, "read advisory tiers file %s", path)
	}
	return ParseTiers(raw)
}

func ParseTiers(raw []byte) ([]TierConfig, error) {
	var file tierFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, crerr.Wrap(err, "decode advisory tiers")
	}
	for i := range file.Tiers {
		file.Tiers[i].Label = strings.TrimSpace(file.Tiers[i].Label)
		file.Tiers[i].Kind = Kind(strings.ToLower(strings.TrimSpace(string(file.Tiers[i].Kind))))
		file.Tiers[i].Model = strings.TrimSpace(file.Tiers[i].Model)
	}
	if err := validate.Struct(file); err != nil {
		return nil, fmt.Errorf("%w: advisory tiers: %v", usecase.ErrInvalidInput, err)
	}

	seen := make(map[string]struct{}, len(file.Tiers))
	for _, tier := range file.Tiers {
		if _, ok := seen[tier.Label]; ok {
			return nil, fmt.Errorf("%w: duplicate advisory tier label %q", usecase.ErrInvalidInput, tier.Label)
		}
		seen[tier.Label] = struct{}{}
	}
	return file.Tiers, nil
}

// NewProvider builds the client for one tier by its declared kind.
func NewProvider(tier TierConfig, keys Keys, logger *logging.Logger) (usecase.InferenceProvider, error) {
	switch tier.Kind {
	case KindOpenRouter:
		if strings.TrimSpace(keys.OpenRouter) == "" {
			return nil, fmt.Errorf("%w: tier %s needs OPENROUTER_API_KEY", usecase.ErrInvalidInput, tier.Label)
		}
		return NewOpenRouterClient(OpenRouterConfig{
			Label:       tier.Label,
			BaseURL:     tier.BaseURL,
			APIKey:      keys.OpenRouter,
			Model:       tier.Model,
			Timeout:     tier.Timeout,
			MaxTokens:   tier.MaxTokens,
			Temperature: tier.Temperature,
			Logger:      logger,
		}), nil
	case KindGemini:
		if strings.TrimSpace(keys.Gemini) == "" {
			return nil, fmt.Errorf("%w: tier %s needs GEMINI_API_KEY", usecase.ErrInvalidInput, tier.Label)
		}
		return NewGeminiClient(GeminiConfig{
			Label:       tier.Label,
			BaseURL:     tier.BaseURL,
			APIKey:      keys.Gemini,
			Model:       tier.Model,
			Timeout:     tier.Timeout,
			MaxTokens:   tier.MaxTokens,
			Temperature: tier.Temperature,
			Logger:      logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown inference kind %q", usecase.ErrInvalidInput, tier.Kind)
	}
}

// BuildTiers turns validated tier configs into the ordered advisory chain.
func BuildTiers(configs []TierConfig, keys Keys, logger *logging.Logger) ([]usecase.AdvisoryTier, error) {
	out := make([]usecase.AdvisoryTier, 0, len(configs))
	for _, cfg := range configs {
		provider, err := NewProvider(cfg, keys, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, usecase.AdvisoryTier{Label: cfg.Label, Provider: provider})
	}
	return out, nil
}
