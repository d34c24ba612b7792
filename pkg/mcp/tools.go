package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pario-ai/medcache/pkg/models"
	"github.com/pario-ai/medcache/pkg/sink/sqlite"
)

type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

var toolHandlers = map[string]toolHandler{
	"medcache_snapshots": handleSnapshots,
	"medcache_removals":  handleRemovals,
	"medcache_classify":  handleClassify,
}

var allTools = []ToolDefinition{
	{
		Name:        "medcache_snapshots",
		Description: "Show recent cache statistics snapshots: size, hit rate, evictions and estimated cost saved.",
		InputSchema: objectSchema(map[string]Property{
			"limit": {Type: "integer", Description: "Number of snapshots to return (default 10)"},
		}),
	},
	{
		Name:        "medcache_removals",
		Description: "List recent cache removals with their reason, category and priority score.",
		InputSchema: objectSchema(map[string]Property{
			"reason": {
				Type:        "string",
				Description: "Filter by removal reason (optional)",
				Enum: []string{
					string(models.RemovalExpired),
					string(models.RemovalEvicted),
					string(models.RemovalInvalidated),
					string(models.RemovalDependency),
				},
			},
			"limit": {Type: "integer", Description: "Number of events to return (default 50)"},
		}),
	},
	{
		Name:        "medcache_classify",
		Description: "Show the category, TTL, tags and initial priority the cache would assign to a query.",
		InputSchema: objectSchema(map[string]Property{
			"query":      {Type: "string", Description: "Query text"},
			"subject_id": {Type: "string", Description: "Patient identifier (optional)"},
			"emr":        {Type: "boolean", Description: "Scope the query to a medical record"},
			"max_tokens": {Type: "integer", Description: "Requested max tokens (optional)"},
		}, "query"),
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

type limitArgs struct {
	Limit int `json:"limit"`
}

func handleSnapshots(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.history == nil {
		return textResult("The stats sink is not configured.")
	}
	var args limitArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Limit <= 0 {
		args.Limit = 10
	}
	snaps, err := s.history.Snapshots(ctx, args.Limit)
	if err != nil {
		return errorResult("Error fetching snapshots: " + err.Error())
	}
	return textResult(formatSnapshots(snaps))
}

type removalArgs struct {
	Reason string `json:"reason"`
	Limit  int    `json:"limit"`
}

func handleRemovals(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.history == nil {
		return textResult("The stats sink is not configured.")
	}
	var args removalArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Limit <= 0 {
		args.Limit = 50
	}
	events, err := s.history.Removals(ctx, sqlite.QueryOpts{
		Reason: models.RemovalReason(args.Reason),
		Limit:  args.Limit,
	})
	if err != nil {
		return errorResult("Error fetching removals: " + err.Error())
	}
	counts, err := s.history.RemovalCounts(ctx)
	if err != nil {
		return errorResult("Error fetching removal counts: " + err.Error())
	}
	return textResult(formatRemovals(events, counts))
}

type classifyArgs struct {
	Query     string `json:"query"`
	SubjectID string `json:"subject_id"`
	EMR       bool   `json:"emr"`
	MaxTokens int    `json:"max_tokens"`
}

func handleClassify(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args classifyArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("query is required")
	}
	q := models.Query{
		Text:      args.Query,
		SubjectID: args.SubjectID,
		Options:   models.Options{MaxTokens: args.MaxTokens},
	}
	if args.EMR {
		q.Context = &models.QueryContext{Type: models.ContextEMR}
	}
	return textResult(formatClassification(s.classifier, q))
}
