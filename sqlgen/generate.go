package sqlgen

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/pkg/llms"
	"github.com/effective-security/dataagents/pkg/metricskey"
	"github.com/effective-security/dataagents/pkg/prompts"
	"github.com/effective-security/xlog"
)

// generate calls the model and returns the text of the first choice
func generate(ctx context.Context, model llms.Model, task string, msgs prompts.ChatPromptValue, opts ...llms.CallOption) (string, error) {
	started := time.Now()
	name := model.GetName()

	resp, err := model.GenerateContent(ctx, msgs.Messages(), opts...)
	if err == nil {
		var text string
		text, err = resp.Text()
		if err == nil {
			metricskey.StatsLLMCallsSucceeded.IncrCounter(1, task, name)
			metricskey.PerfLLMCall.MeasureSince(started, task, name)

			usage := resp.Usage()
			logger.ContextKV(ctx, xlog.DEBUG,
				"task", task,
				"model", name,
				"input_tokens", usage.Input,
				"output_tokens", usage.Output,
				"elapsed", time.Since(started).String(),
			)
			return text, nil
		}
	}

	metricskey.StatsLLMCallsFailed.IncrCounter(1, task, name)
	logger.ContextKV(ctx, xlog.ERROR,
		"reason", "GenerateContent",
		"task", task,
		"model", name,
		"err", err.Error(),
	)
	return "", errors.Wrapf(err, "%s: model %s failed", task, name)
}
