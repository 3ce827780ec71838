package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
	openrouterx "github.com/tanpawarit/theo-ai/pkg/openrouter"
)

type Config struct {
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
}

func (c Config) Validate() error {
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion tokens must be positive", contractx.ErrValidation)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within [0, 2]", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor returns the endpoint settings for an OpenAI-compatible
// resolution.
func (c Config) OpenRouterFor(res credential.Resolution) openrouterx.Config {
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(res.BaseURL),
		APIKey:             strings.TrimSpace(res.APIKey),
		Model:              strings.TrimSpace(res.Model),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
