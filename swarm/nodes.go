package swarm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/craftwell/swarmkit/extract"
	"github.com/craftwell/swarmkit/log"
	"github.com/craftwell/swarmkit/provider"
)

// Injector augments a system prompt with caller-supplied context for
// the given query. Injectors are treated as pure; a nil injector is the
// identity and a panicking injector falls back to the base prompt.
type Injector func(base, query string) string

// TemplateInput is the typed view of state a specialist template reads.
// It carries only fields the node's declared upstream set produced,
// which is what makes concurrent fan-out safe.
type TemplateInput struct {
	// Query is the caller's initial payload.
	Query string
	// Results maps upstream specialist ID to its raw output. Entry
	// specialists see an empty map.
	Results map[string]string
	// Iteration is the number of completed passes; 0 on the first.
	Iteration int
}

// PromptTemplate declares a specialist's fixed prompt text plus the
// typed function that renders its user message from upstream data.
type PromptTemplate struct {
	// System is the specialist's fixed instruction text.
	System string
	// User renders the user message. When nil, the query is sent as-is.
	User func(in TemplateInput) string
}

// SupervisorTemplate declares the supervisor's prompt. The default user
// renderer concatenates every reviewed specialist's output under a
// heading, followed by the original query.
type SupervisorTemplate struct {
	System string
	User   func(in TemplateInput) string
}

// ReportInput is everything the assembler folds into the final report.
type ReportInput struct {
	Query     string
	Results   map[string]string
	Messages  []Message
	Verdict   *Verdict
	Iteration int
}

// ReportFunc folds accumulated state into the domain-shaped report. It
// must apply safe defaults for any section whose extraction failed and
// must not call external services.
type ReportFunc func(in ReportInput) map[string]any

func newSpecialistFunc(id string, tmpl PromptTemplate, retry RetryPolicy) NodeFunc {
	return func(ctx context.Context, state State) (State, error) {
		gen, err := providerFromState(state)
		if err != nil {
			return nil, err
		}
		in := templateInput(state)
		system := applyInjector(injectorFromState(state), tmpl.System, in.Query)
		user := in.Query
		if tmpl.User != nil {
			user = tmpl.User(in)
		}

		opts := generateOptionsFromState(state)
		raw, err := CallWithRetry(ctx, id, retry, func(ctx context.Context) (string, error) {
			return gen.Generate(ctx, system, user, opts)
		})
		if err != nil {
			return nil, err
		}

		res := extract.Extract(raw)
		if !res.OK {
			log.Debugf("specialist %s produced unstructured output, keeping raw capture", id)
		}
		return State{
			StateKeyMessages:          []Message{newMessage(id, raw, res)},
			StateKeySpecialistResults: map[string]string{id: raw},
		}, nil
	}
}

func newSupervisorFunc(id string, tmpl SupervisorTemplate, reviews []string, retry RetryPolicy) NodeFunc {
	return func(ctx context.Context, state State) (State, error) {
		gen, err := providerFromState(state)
		if err != nil {
			return nil, err
		}
		in := templateInput(state)
		// Restrict the review to the declared upstream set.
		reviewed := make(map[string]string, len(reviews))
		for _, specialist := range reviews {
			if text, ok := in.Results[specialist]; ok {
				reviewed[specialist] = text
			}
		}
		in.Results = reviewed

		user := defaultReviewPrompt(in)
		if tmpl.User != nil {
			user = tmpl.User(in)
		}

		opts := generateOptionsFromState(state)
		raw, err := CallWithRetry(ctx, id, retry, func(ctx context.Context) (string, error) {
			return gen.Generate(ctx, tmpl.System, user, opts)
		})
		if err != nil {
			return nil, err
		}

		res := extract.Extract(raw)
		verdict := verdictFromPayload(res.Payload)
		if !res.OK {
			log.Warnf("supervisor %s verdict did not parse, defaulting to finalize", id)
		}
		return State{
			StateKeyVerdict:  verdict,
			StateKeyMessages: []Message{newMessage(id, raw, res)},
		}, nil
	}
}

func newAssemblerFunc(id string, fold ReportFunc) NodeFunc {
	if fold == nil {
		fold = DefaultReportFunc
	}
	return func(ctx context.Context, state State) (State, error) {
		in := ReportInput{
			Query:     stringFromState(state, StateKeyUserInput),
			Results:   resultsFromState(state),
			Verdict:   verdictFromState(state),
			Iteration: intFromState(state, StateKeyIteration),
		}
		if msgs, ok := state[StateKeyMessages].([]Message); ok {
			in.Messages = msgs
		}

		iteration := in.Iteration + 1
		maxIterations := intFromState(state, StateKeyMaxIterations)
		status := StatusComplete
		if in.Verdict != nil && in.Verdict.NeedsIteration && iteration < maxIterations {
			status = StatusRunning
		}
		return State{
			StateKeyReport:    fold(in),
			StateKeyIteration: iteration,
			StateKeyStatus:    status,
		}, nil
	}
}

// DefaultReportFunc is the fold used when a swarm declares none: the
// query, every specialist section keyed by node ID, and the
// supervisor's summary and open issues.
func DefaultReportFunc(in ReportInput) map[string]any {
	report := map[string]any{
		"query":      in.Query,
		"sections":   in.Results,
		"iterations": in.Iteration + 1,
	}
	if in.Verdict != nil {
		report["summary"] = in.Verdict.Summary
		if len(in.Verdict.Issues) > 0 {
			report["issues"] = in.Verdict.Issues
		}
	}
	return report
}

// defaultReviewPrompt concatenates the reviewed specialists' output in
// deterministic (sorted) order.
func defaultReviewPrompt(in TemplateInput) string {
	ids := make([]string, 0, len(in.Results))
	for id := range in.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Original request:\n%s\n", in.Query)
	for _, id := range ids {
		fmt.Fprintf(&sb, "\n## %s\n%s\n", id, in.Results[id])
	}
	return sb.String()
}

// applyInjector runs the injector, treating nil as identity and a
// panic as "return the base prompt unchanged".
func applyInjector(inject Injector, base, query string) (result string) {
	if inject == nil {
		return base
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("context injector panicked, using base prompt: %v", r)
			result = base
		}
	}()
	return inject(base, query)
}

func templateInput(state State) TemplateInput {
	return TemplateInput{
		Query:     stringFromState(state, StateKeyUserInput),
		Results:   resultsFromState(state),
		Iteration: intFromState(state, StateKeyIteration),
	}
}

func providerFromState(state State) (provider.Provider, error) {
	gen, ok := state[stateKeyProvider].(provider.Provider)
	if !ok || gen == nil {
		return nil, fmt.Errorf("no provider pinned in state")
	}
	return gen, nil
}

func injectorFromState(state State) Injector {
	inject, _ := state[stateKeyInjector].(Injector)
	return inject
}

func generateOptionsFromState(state State) provider.GenerateOptions {
	opts, _ := state[stateKeyGenerateOptions].(provider.GenerateOptions)
	return opts
}

func resultsFromState(state State) map[string]string {
	results, _ := state[StateKeySpecialistResults].(map[string]string)
	return results
}

func verdictFromState(state State) *Verdict {
	verdict, _ := state[StateKeyVerdict].(*Verdict)
	return verdict
}

func stringFromState(state State, key string) string {
	v, _ := state[key].(string)
	return v
}

func intFromState(state State, key string) int {
	v, _ := state[key].(int)
	return v
}
