package reactagent

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GAIR-NLP/agentcore/internal/actionreg"
	"github.com/GAIR-NLP/agentcore/internal/logging"
	"github.com/GAIR-NLP/agentcore/internal/provider"
	"github.com/GAIR-NLP/agentcore/pkg/types"
)

// retryInitialInterval/retryMaxInterval are the 3s starting and 30s
// maximum backoff intervals spec.md section 7 names for LLM retries,
// grounded on the teacher's internal/session/loop.go newRetryBackoff.
// chatWithRetry randomizes each interval by +/-50%, so actual waits range
// from 1.5s to 45s.
const (
	retryInitialInterval = 3 * time.Second
	retryMaxInterval     = 30 * time.Second
)

func toToolDefs(tools []actionreg.ToolDef) []provider.ToolDef {
	out := make([]provider.ToolDef, 0, len(tools))
	for _, t := range tools {
		out = append(out, provider.ToolDef{
			Name:        string(t.Name),
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}

// chatWithRetry makes one chat(messages, tools) call, retrying up to
// MaxRetries times with exponential 3s-30s backoff intervals, each
// randomized by +/-50% (spec.md section 7).
// The randomization factor adds jitter on top of backoff/v4's exponential
// curve so concurrent agents in the same run don't retry in lockstep.
func chatWithRetry(ctx context.Context, p provider.Provider, agentCfg *types.AgentConfig, messages []types.LLMMessage, tools []actionreg.ToolDef) (*types.LLMResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries(agentCfg))), ctx)

	var resp *types.LLMResponse
	op := func() error {
		var err error
		resp, err = provider.Chat(ctx, p, messages, toToolDefs(tools))
		if err != nil {
			logging.Warn().Err(err).Str("provider", p.ID()).Msg("reactagent: chat call failed, retrying")
		}
		return err
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func maxRetries(agentCfg *types.AgentConfig) int {
	if agentCfg == nil || agentCfg.MaxRetries <= 0 {
		return 3
	}
	return agentCfg.MaxRetries
}
