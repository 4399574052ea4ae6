package swarm

// State is the shared data structure that flows through a swarm graph.
// Nodes never mutate it directly; they return partial updates which the
// executor merges through the schema's reducers at a single
// serialization point.
type State map[string]any

// Clone creates a shallow copy of the state. Values are shared, which
// is safe because node updates replace or append rather than mutate.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// Reducer determines how a field's update merges into the existing
// value. Reducers must be pure: the executor relies on being able to
// serialize concurrent updates in completion order.
type Reducer func(existing, update any) any

// StateField declares a field in the state schema together with its
// merge policy and optional default.
type StateField struct {
	Reducer Reducer
	Default func() any
}

// StateSchema declares every state field and its merge policy once, at
// graph definition time. It is immutable after construction.
type StateSchema struct {
	fields map[string]StateField
}

// NewStateSchema creates an empty state schema.
func NewStateSchema() *StateSchema {
	return &StateSchema{fields: make(map[string]StateField)}
}

// AddField registers a field. A nil reducer defaults to ReplaceReducer.
func (s *StateSchema) AddField(name string, field StateField) *StateSchema {
	if field.Reducer == nil {
		field.Reducer = ReplaceReducer
	}
	s.fields[name] = field
	return s
}

// Defaults returns a fresh state populated with every field's default.
func (s *StateSchema) Defaults() State {
	state := make(State, len(s.fields))
	for name, field := range s.fields {
		if field.Default != nil {
			state[name] = field.Default()
		}
	}
	return state
}

// ApplyUpdate merges a partial update into the current state using the
// declared reducers and returns the merged state. It is pure: neither
// argument is mutated, so callers only need a single serialization
// point to make concurrent merges safe.
func (s *StateSchema) ApplyUpdate(current, update State) State {
	result := current.Clone()
	for key, updateValue := range update {
		field, exists := s.fields[key]
		if !exists {
			result[key] = updateValue
			continue
		}
		currentValue, hasCurrent := result[key]
		if !hasCurrent && field.Default != nil {
			currentValue = field.Default()
		}
		result[key] = field.Reducer(currentValue, updateValue)
	}
	return result
}

// ReplaceReducer overwrites the existing value with the update.
func ReplaceReducer(existing, update any) any {
	return update
}

// MessageReducer appends message updates to the existing log. Entries
// land in completion order across concurrent writers.
func MessageReducer(existing, update any) any {
	if existing == nil {
		existing = []Message{}
	}
	existingMsgs, ok1 := existing.([]Message)
	updateMsgs, ok2 := update.([]Message)
	if !ok1 || !ok2 {
		return update
	}
	return append(existingMsgs, updateMsgs...)
}

// MapUnionReducer merges a string map update into the existing map,
// right-hand side winning on duplicate keys. Specialist writers use
// disjoint keys, so in practice no conflict occurs.
func MapUnionReducer(existing, update any) any {
	if existing == nil {
		existing = map[string]string{}
	}
	existingMap, ok1 := existing.(map[string]string)
	updateMap, ok2 := update.(map[string]string)
	if !ok1 || !ok2 {
		return update
	}
	result := make(map[string]string, len(existingMap)+len(updateMap))
	for k, v := range existingMap {
		result[k] = v
	}
	for k, v := range updateMap {
		result[k] = v
	}
	return result
}
