package pipelines

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/drmaniak/discovery-dojo/pkg/flow"
	"github.com/drmaniak/discovery-dojo/pkg/nodes"
	"github.com/drmaniak/discovery-dojo/pkg/schema"
)

var planSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"summary": {"type": "string"},
		"phases": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"duration": {"type": "string"},
					"description": {"type": "string"},
					"tasks": {"type": "array", "items": {"type": "string"}},
					"deliverables": {"type": "array", "items": {"type": "string"}}
				},
				"required": ["title", "duration", "description", "tasks", "deliverables"],
				"additionalProperties": false
			}
		},
		"resources": {"type": "array", "items": {"type": "string"}},
		"challenges": {"type": "array", "items": {"type": "string"}},
		"success_metrics": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["title", "summary", "phases", "resources", "challenges", "success_metrics"],
	"additionalProperties": false
}`)

// Planning guidance keyed by project type and timeline, folded into the
// generation prompt.
var (
	planProjectTypes = map[string]string{
		"academic_paper":       "literature review, methodology, experiments, and publication timeline",
		"general_research":     "exploration, hypothesis formation, and knowledge discovery",
		"presentation":         "compelling storytelling, visual design, and audience engagement",
		"educational_deepdive": "learning progression, knowledge building, and comprehension checks",
		"technical_report":     "practical implementation, testing, and deliverable documentation",
		"blog_post":            "accessible writing, audience engagement, and content distribution",
	}

	planTimelines = map[string]string{
		"1_week":   "an intensive plan with daily milestones",
		"2_weeks":  "3-4 major phases with weekly checkpoints",
		"1_month":  "4-5 phases with weekly milestones and buffer time",
		"3_months": "comprehensive phases with monthly major milestones",
		"6_months": "extensive phases with bi-monthly reviews",
		"1_year":   "quarterly phases with seasonal planning cycles",
	}

	planAudiences = map[string]bool{
		"academic":    true,
		"industry":    true,
		"general":     true,
		"educational": true,
	}
)

// NewPlanFlow builds the research planning graph:
//
//	plan-config >> plan-prompt >> plan-gen >> parse-plan
//	  >> plan-review-prompt >> plan-review >> parse-plan-review
//	  >> plan-validation >> plan-finalize >> plan-report >> write-plan
//
// plan-validation loops back to plan-prompt on "refine", bounded by
// MaxRefineCycles. The flow plans for the research idea at shared key
// "idea" (seeded directly, or left behind by a research-assistant run).
func NewPlanFlow(deps Deps) (*flow.Flow, error) {
	if deps.Completer == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "plan flow needs a completer")
	}
	if deps.JQ == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "plan flow needs a jq engine")
	}
	wait := deps.retryWait()

	config, err := planConfigNode()
	if err != nil {
		return nil, err
	}
	planPrompt, err := promptTask("plan-prompt", "plan_prompt", renderPlanPrompt)
	if err != nil {
		return nil, err
	}
	planGen, err := nodes.Completion(nodes.CompletionConfig{
		Name:       "plan-gen",
		Client:     deps.Completer,
		PromptKey:  "plan_prompt",
		OutputKey:  "plan_json",
		Schema:     planSchema,
		MaxRetries: 2,
		Wait:       wait,
	})
	if err != nil {
		return nil, err
	}
	parsePlan, err := nodes.Transform(nodes.TransformConfig{
		Name:       "parse-plan",
		Engine:     deps.JQ,
		Expression: ".data | fromjson",
		SourceKey:  "plan_json",
		TargetKey:  "plan",
	})
	if err != nil {
		return nil, err
	}
	reviewPrompt, err := promptTask("plan-review-prompt", "plan_review_prompt", renderPlanReviewPrompt)
	if err != nil {
		return nil, err
	}
	review, err := nodes.Completion(nodes.CompletionConfig{
		Name:       "plan-review",
		Client:     deps.Completer,
		PromptKey:  "plan_review_prompt",
		OutputKey:  "plan_review_json",
		Schema:     critiqueSchema,
		MaxRetries: 2,
		Wait:       wait,
	})
	if err != nil {
		return nil, err
	}
	parseReview, err := nodes.Transform(nodes.TransformConfig{
		Name:       "parse-plan-review",
		Engine:     deps.JQ,
		Expression: ".data | fromjson",
		SourceKey:  "plan_review_json",
		TargetKey:  "plan_review",
	})
	if err != nil {
		return nil, err
	}
	gate, err := reviewGate("plan-validation", "plan_review", "plan_refine_cycles", "plan_feedback", deps.refineCycles())
	if err != nil {
		return nil, err
	}
	finalize, err := planFinalizeNode()
	if err != nil {
		return nil, err
	}
	report, err := planReportNode()
	if err != nil {
		return nil, err
	}
	write, err := nodes.WriteFile(nodes.WriteFileConfig{
		Name:       "write-plan",
		Path:       deps.planOutputPath(),
		PathParam:  "plan_output_path",
		ContentKey: "plan_report",
	})
	if err != nil {
		return nil, err
	}

	chain(config, planPrompt, planGen, parsePlan,
		reviewPrompt, review, parseReview, gate)

	gate.On("refine", planPrompt)
	gate.On("approve", finalize)
	gate.On("max_cycles", finalize)
	finalize.Then(report)
	report.Then(write)

	return flow.NewFlow(flow.FlowConfig{
		Name:   "research-plan",
		Start:  config,
		Tracer: deps.Tracer,
		Logger: deps.Logger,
	})
}

// planConfigNode validates the planning preferences and stores them
// under "plan_config". Each preference is read from params first, then
// the shared store, then its default.
func planConfigNode() (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name: "plan-config",
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			if shared.GetString("idea") == "" {
				return nil, schema.NewError(schema.ErrCodeValidation, "shared key \"idea\" holds no research idea to plan for")
			}

			projectType := planSetting(shared, params, "project_type", "general_research")
			if _, ok := planProjectTypes[projectType]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"unknown project type %q, want one of %s", projectType, sortedKeys(planProjectTypes))
			}
			timeline := planSetting(shared, params, "timeline", "1_month")
			if _, ok := planTimelines[timeline]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"unknown timeline %q, want one of %s", timeline, sortedKeys(planTimelines))
			}
			audience := planSetting(shared, params, "target_audience", "academic")
			if !planAudiences[audience] {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"unknown target audience %q, want one of %s", audience, sortedKeys(planAudiences))
			}

			return map[string]any{
				"project_type":    projectType,
				"timeline":        timeline,
				"target_audience": audience,
				"requirements":    planSetting(shared, params, "requirements", ""),
				"resources":       planSetting(shared, params, "resources", ""),
			}, nil
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set("plan_config", prep)
			return flow.DefaultAction, nil
		},
	})
}

func planSetting(shared *schema.Shared, params schema.Params, key, fallback string) string {
	if v := params.String(key); v != "" {
		return v
	}
	if v := shared.GetString(key); v != "" {
		return v
	}
	return fallback
}

func sortedKeys[V any](m map[string]V) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// planFinalizeNode stamps the plan with the outcome of the validation
// loop before rendering.
func planFinalizeNode() (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name: "plan-finalize",
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			plan, err := planFromShared(shared)
			if err != nil {
				return nil, err
			}
			cycles := shared.GetInt("plan_refine_cycles")
			verdict := ""
			if v, ok := shared.Get("plan_review"); ok {
				if review, ok := v.(map[string]any); ok {
					verdict, _ = review["verdict"].(string)
				}
			}
			if verdict == "approve" {
				plan["note"] = fmt.Sprintf("Plan approved after %d refinement cycle(s).", cycles)
			} else {
				plan["note"] = fmt.Sprintf("Plan completed after reaching the refinement bound (%d cycle(s)).", cycles)
			}
			return plan, nil
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set("plan", prep)
			return flow.DefaultAction, nil
		},
	})
}

// planReportNode renders the finalized plan as markdown.
func planReportNode() (*flow.Task, error) {
	return flow.NewTask(flow.TaskConfig{
		Name: "plan-report",
		Prep: func(ctx context.Context, shared *schema.Shared, params schema.Params) (any, error) {
			plan, err := planFromShared(shared)
			if err != nil {
				return nil, err
			}
			config, _ := shared.Get("plan_config")
			cfg, _ := config.(map[string]any)

			var b strings.Builder
			title, _ := plan["title"].(string)
			fmt.Fprintf(&b, "# Research Plan: %s\n\n", title)
			if summary, _ := plan["summary"].(string); summary != "" {
				fmt.Fprintf(&b, "## Executive Summary\n\n%s\n\n", summary)
			}

			b.WriteString("## Project Overview\n\n")
			for _, key := range []string{"project_type", "timeline", "target_audience"} {
				if v, _ := cfg[key].(string); v != "" {
					fmt.Fprintf(&b, "- **%s**: %s\n", strings.ReplaceAll(key, "_", " "), strings.ReplaceAll(v, "_", " "))
				}
			}
			b.WriteString("\n")

			if idea := shared.GetString("idea"); idea != "" {
				fmt.Fprintf(&b, "## Research Idea\n\n%s\n\n", idea)
			}
			if novelty := shared.GetString("novelty_assessment"); novelty != "" {
				fmt.Fprintf(&b, "## Novelty Assessment\n\n%s\n\n", novelty)
			}

			if phases, _ := plan["phases"].([]any); len(phases) > 0 {
				b.WriteString("## Phases\n\n")
				for i, p := range phases {
					phase, _ := p.(map[string]any)
					name, _ := phase["title"].(string)
					duration, _ := phase["duration"].(string)
					fmt.Fprintf(&b, "### Phase %d: %s\n\n**Duration**: %s\n\n", i+1, name, duration)
					if desc, _ := phase["description"].(string); desc != "" {
						fmt.Fprintf(&b, "%s\n\n", desc)
					}
					writePlanList(&b, "####", "Tasks", phase["tasks"])
					writePlanList(&b, "####", "Deliverables", phase["deliverables"])
				}
			}

			writePlanList(&b, "##", "Required Resources", plan["resources"])
			writePlanList(&b, "##", "Potential Challenges", plan["challenges"])
			writePlanList(&b, "##", "Success Metrics", plan["success_metrics"])

			if note, _ := plan["note"].(string); note != "" {
				fmt.Fprintf(&b, "---\n\n_%s_\n", note)
			}
			return b.String(), nil
		},
		Post: func(ctx context.Context, shared *schema.Shared, prep, exec any) (flow.Action, error) {
			shared.Set("plan_report", prep)
			return flow.DefaultAction, nil
		},
	})
}

func planFromShared(shared *schema.Shared) (map[string]any, error) {
	v, ok := shared.Get("plan")
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "shared key \"plan\" holds no plan")
	}
	plan, ok := v.(map[string]any)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "plan is %T, want object", v)
	}
	return plan, nil
}

func writePlanList(b *strings.Builder, marker, heading string, v any) {
	items, _ := v.([]any)
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s %s\n\n", marker, heading)
	for _, item := range items {
		if s, _ := item.(string); s != "" {
			fmt.Fprintf(b, "- %s\n", s)
		}
	}
	b.WriteString("\n")
}

func renderPlanPrompt(shared *schema.Shared, params schema.Params) (string, error) {
	idea := shared.GetString("idea")
	if idea == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "shared key \"idea\" holds no research idea")
	}
	config, _ := shared.Get("plan_config")
	cfg, ok := config.(map[string]any)
	if !ok {
		return "", schema.NewError(schema.ErrCodeValidation, "shared key \"plan_config\" holds no planning configuration")
	}
	projectType, _ := cfg["project_type"].(string)
	timeline, _ := cfg["timeline"].(string)

	var b strings.Builder
	b.WriteString("You are a research planning consultant. Generate an actionable research plan for the idea below.\n\n")
	fmt.Fprintf(&b, "Research idea:\n%s\n\n", idea)
	fmt.Fprintf(&b, "Project type: %s (focus on %s)\n", projectType, planProjectTypes[projectType])
	fmt.Fprintf(&b, "Timeline: %s (structure as %s)\n", timeline, planTimelines[timeline])
	if audience, _ := cfg["target_audience"].(string); audience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", audience)
	}
	if req, _ := cfg["requirements"].(string); req != "" {
		fmt.Fprintf(&b, "Additional requirements: %s\n", req)
	}
	if res, _ := cfg["resources"].(string); res != "" {
		fmt.Fprintf(&b, "Available resources: %s\n", res)
	}
	if novelty := shared.GetString("novelty_assessment"); novelty != "" {
		fmt.Fprintf(&b, "\nNovelty assessment of the idea:\n%s\n", novelty)
	}
	if feedback := shared.GetString("plan_feedback"); feedback != "" {
		fmt.Fprintf(&b, "\nA previous plan was rejected with this feedback, address it:\n%s\n", feedback)
	}
	b.WriteString("\nInclude specific, measurable deliverables per phase and realistic durations. ")
	b.WriteString("Respond with a JSON object matching the requested schema.")
	return b.String(), nil
}

func renderPlanReviewPrompt(shared *schema.Shared, params schema.Params) (string, error) {
	planJSON := shared.GetString("plan_json")
	if planJSON == "" {
		return "", schema.NewError(schema.ErrCodeValidation, "shared key \"plan_json\" holds no plan")
	}
	var b strings.Builder
	b.WriteString("Review the research plan below for completeness, realistic timing, and actionable deliverables. ")
	b.WriteString("Respond with JSON {\"verdict\": \"approve\"|\"refine\", \"feedback\": \"...\"}.\n\n")
	b.WriteString(planJSON)
	return b.String(), nil
}
