package swarm

// State map keys for the fixed swarm schema.
const (
	// StateKeyUserInput is the caller's initial payload. It survives
	// iteration resets so every pass sees the original request.
	StateKeyUserInput = "user_input"
	// StateKeySpecialistResults maps specialist node ID to raw output.
	StateKeySpecialistResults = "specialist_results"
	// StateKeyMessages is the ordered log of agent messages.
	StateKeyMessages = "messages"
	// StateKeyVerdict is the supervisor's synthesized verdict.
	StateKeyVerdict = "verdict"
	// StateKeyReport is the assembler's final structured result.
	StateKeyReport = "report"
	// StateKeyIteration is the current pass number, starting at 1 once
	// the first pass completes.
	StateKeyIteration = "iteration"
	// StateKeyMaxIterations is the pass ceiling, fixed at run start.
	StateKeyMaxIterations = "max_iterations"
	// StateKeyStatus is the run status.
	StateKeyStatus = "status"
)

// Internal state keys carrying per-run wiring. They are stripped from
// the state surfaced to callers and never survive into reports.
const (
	stateKeyProvider        = "__provider__"
	stateKeyInjector        = "__injector__"
	stateKeyGenerateOptions = "__generate_options__"
)

func isInternalStateKey(key string) bool {
	switch key {
	case stateKeyProvider, stateKeyInjector, stateKeyGenerateOptions:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a run.
type Status string

// Run statuses.
const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
)

// SwarmStateSchema builds the fixed schema shared by every swarm: each
// field's merge policy is declared here, once, and never changes at
// runtime.
func SwarmStateSchema() *StateSchema {
	schema := NewStateSchema()
	schema.AddField(StateKeyUserInput, StateField{
		Reducer: ReplaceReducer,
	})
	schema.AddField(StateKeySpecialistResults, StateField{
		Reducer: MapUnionReducer,
		Default: func() any { return map[string]string{} },
	})
	schema.AddField(StateKeyMessages, StateField{
		Reducer: MessageReducer,
		Default: func() any { return []Message{} },
	})
	schema.AddField(StateKeyVerdict, StateField{
		Reducer: ReplaceReducer,
	})
	schema.AddField(StateKeyReport, StateField{
		Reducer: ReplaceReducer,
	})
	schema.AddField(StateKeyIteration, StateField{
		Reducer: ReplaceReducer,
		Default: func() any { return 0 },
	})
	schema.AddField(StateKeyMaxIterations, StateField{
		Reducer: ReplaceReducer,
		Default: func() any { return 1 },
	})
	schema.AddField(StateKeyStatus, StateField{
		Reducer: ReplaceReducer,
		Default: func() any { return StatusRunning },
	})
	return schema
}
