package preset

import (
	"fmt"

	"github.com/craftwell/swarmkit/swarm"
)

// GameDesign returns the game-design swarm: a mechanics specialist and
// a narrative specialist fan out in parallel, a supervisor reviews both
// drafts for coherence, and the assembler folds them into a design
// document.
func GameDesign() Config {
	return Config{
		Name: "game-design",
		Specialists: []SpecialistConfig{
			{
				ID: "mechanics",
				Template: swarm.PromptTemplate{
					System: "You are a game mechanics designer. Produce a JSON object " +
						"with keys \"core_loop\", \"rules\", and \"win_condition\" " +
						"describing the mechanical design for the requested game.",
				},
			},
			{
				ID: "narrative",
				Template: swarm.PromptTemplate{
					System: "You are a game narrative designer. Produce a JSON object " +
						"with keys \"setting\", \"tone\", and \"player_fantasy\" " +
						"describing the narrative framing for the requested game.",
				},
			},
		},
		Supervisor: swarm.SupervisorTemplate{
			System: "You are a lead game designer reviewing your team's drafts. " +
				"Check that mechanics and narrative reinforce each other. Respond " +
				"with a JSON object: {\"needs_iteration\": bool, \"summary\": string, " +
				"\"issues\": [string]}.",
		},
		Assemble: gameDesignReport,
	}
}

func gameDesignReport(in swarm.ReportInput) map[string]any {
	report := map[string]any{
		"query":     in.Query,
		"mechanics": sectionOrPlaceholder(in, "mechanics"),
		"narrative": sectionOrPlaceholder(in, "narrative"),
	}
	if in.Verdict != nil {
		report["review"] = in.Verdict.Summary
		report["open_issues"] = in.Verdict.Issues
	}
	return report
}

// sectionOrPlaceholder prefers the parsed payload of the specialist's
// message and falls back to raw text so a failed extraction still
// yields a readable section.
func sectionOrPlaceholder(in swarm.ReportInput, id string) any {
	for _, msg := range in.Messages {
		if msg.Agent == id && msg.ParseOK {
			return msg.Parsed
		}
	}
	if raw, ok := in.Results[id]; ok {
		return raw
	}
	return fmt.Sprintf("section %s unavailable", id)
}
