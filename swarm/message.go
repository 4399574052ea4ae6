package swarm

import (
	"time"

	"github.com/google/uuid"

	"github.com/craftwell/swarmkit/extract"
)

// Message is one entry in the agent message log. Messages are immutable
// once created; concurrent writers interleave by completion order.
type Message struct {
	// ID uniquely identifies the message within a run.
	ID string
	// Agent is the node ID that produced the message.
	Agent string
	// Content is the raw text returned by the generation service.
	Content string
	// Timestamp records when the node finished producing the message.
	Timestamp time.Time
	// Parsed holds the structured payload when extraction succeeded,
	// or the raw capture fallback when it did not.
	Parsed map[string]any
	// ParseOK reports whether Parsed holds real structured data.
	ParseOK bool
}

// newMessage wraps raw generation output and its extraction result.
func newMessage(agent, content string, res extract.Result) Message {
	return Message{
		ID:        uuid.NewString(),
		Agent:     agent,
		Content:   content,
		Timestamp: time.Now(),
		Parsed:    res.Payload,
		ParseOK:   res.OK,
	}
}

// Verdict is the supervisor's synthesized judgement over the
// specialists' combined output.
type Verdict struct {
	// NeedsIteration requests another refinement pass. The scheduler
	// honors it only while the iteration ceiling permits.
	NeedsIteration bool
	// Summary is the supervisor's overall assessment.
	Summary string
	// Issues lists concrete problems the next pass should address.
	Issues []string
}

// verdictFromPayload maps an extraction payload to a Verdict. A failed
// or partial extraction yields safe defaults: no iteration request and
// whatever fields did parse.
func verdictFromPayload(payload map[string]any) *Verdict {
	v := &Verdict{}
	if needs, ok := extract.Bool(payload, "needs_iteration"); ok {
		v.NeedsIteration = needs
	}
	if summary, ok := extract.String(payload, "summary"); ok {
		v.Summary = summary
	}
	if raw, ok := payload["issues"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				v.Issues = append(v.Issues, s)
			}
		}
	}
	return v
}
