package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	// StatsToolCallsSucceeded is base for counter metric for tool calls that returned a payload
	StatsToolCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_succeeded",
		Help:         "stats_tool_calls_succeeded provides total tool calls succeeded",
		RequiredTags: []string{"server", "tool"},
	}

	StatsToolCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_failed",
		Help:         "stats_tool_calls_failed provides total tool calls failed",
		RequiredTags: []string{"server", "tool"},
	}

	StatsToolCallsNotFound = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_not_found",
		Help:         "stats_tool_calls_not_found provides total calls of unknown tools",
		RequiredTags: []string{"server", "tool"},
	}

	StatsToolCallsInvalidArguments = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_calls_invalid_arguments",
		Help:         "stats_tool_calls_invalid_arguments provides total tool calls rejected on argument validation",
		RequiredTags: []string{"server", "tool"},
	}

	StatsLLMCallsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_calls_succeeded",
		Help:         "stats_llm_calls_succeeded provides total LLM generation calls succeeded",
		RequiredTags: []string{"task", "model"},
	}

	StatsLLMCallsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_calls_failed",
		Help:         "stats_llm_calls_failed provides total LLM generation calls failed",
		RequiredTags: []string{"task", "model"},
	}

	StatsSQLCacheHits = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_sql_cache_hits",
		Help:         "stats_sql_cache_hits provides total SQL conversions served from cache",
		RequiredTags: []string{"task"},
	}

	StatsWarehouseRows = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_warehouse_rows",
		Help:         "stats_warehouse_rows provides total rows returned by warehouse queries",
		RequiredTags: []string{"project"},
	}

	StatsBlobsDownloaded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_blobs_downloaded",
		Help:         "stats_blobs_downloaded provides total objects downloaded from buckets",
		RequiredTags: []string{"bucket"},
	}
)

// Perf
var (
	PerfToolCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_call",
		Help:         "perf_tool_call provides duration of tool call",
		RequiredTags: []string{"server", "tool"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides duration of LLM generation call",
		RequiredTags: []string{"task", "model"},
	}

	PerfWarehouseQuery = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_warehouse_query",
		Help:         "perf_warehouse_query provides duration of warehouse query",
		RequiredTags: []string{"project"},
	}
)

// Metrics returns slice of metrics from this repo
// keep sorted by name
var Metrics = []*metrics.Describe{
	&PerfLLMCall,
	&PerfToolCall,
	&PerfWarehouseQuery,
	&StatsBlobsDownloaded,
	&StatsLLMCallsFailed,
	&StatsLLMCallsSucceeded,
	&StatsSQLCacheHits,
	&StatsToolCallsFailed,
	&StatsToolCallsInvalidArguments,
	&StatsToolCallsNotFound,
	&StatsToolCallsSucceeded,
	&StatsWarehouseRows,
}
