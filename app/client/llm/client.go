package llm

import (
	"net/http"
	"receiptagent/app/config"

	"github.com/samber/do"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// New builds the OpenAI-compatible chat model shared by all runs.
func New(di *do.Injector) (llms.Model, error) {
	cfg := do.MustInvoke[*config.Config](di)

	model, err := openai.New(
		openai.WithToken(cfg.LLM.Token),
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithModel(cfg.LLM.Model),
		openai.WithCallback(LogCallbackHandler{}),
		openai.WithHTTPClient(&http.Client{
			Timeout: cfg.LLM.Timeout,
		}),
	)
	if err != nil {
		return nil, oops.In("llm").Wrapf(err, "failed to create model client")
	}

	return model, nil
}
