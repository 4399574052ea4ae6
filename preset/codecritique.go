package preset

import (
	"fmt"

	"github.com/craftwell/swarmkit/swarm"
)

// CodeCritique returns the code-critique swarm. Correctness and style
// specialists run in parallel; a refactoring specialist waits for both
// and proposes changes grounded in their findings; the supervisor
// checks the critique holds together.
func CodeCritique() Config {
	return Config{
		Name: "code-critique",
		Specialists: []SpecialistConfig{
			{
				ID: "correctness",
				Template: swarm.PromptTemplate{
					System: "You are a reviewer focused on correctness. Identify bugs, " +
						"races, and unhandled edge cases in the submitted code. Respond " +
						"with a JSON object: {\"findings\": [{\"line\": string, " +
						"\"problem\": string, \"severity\": string}]}.",
				},
			},
			{
				ID: "style",
				Template: swarm.PromptTemplate{
					System: "You are a reviewer focused on readability and idiom. " +
						"Respond with a JSON object: {\"findings\": [{\"line\": string, " +
						"\"problem\": string}]}.",
				},
			},
			{
				ID:    "refactor",
				After: []string{"correctness", "style"},
				Template: swarm.PromptTemplate{
					System: "You are a senior engineer. Using the findings below, " +
						"propose concrete refactorings. Respond with a JSON object: " +
						"{\"proposals\": [{\"title\": string, \"rationale\": string}]}.",
					User: refactorPrompt,
				},
			},
		},
		Supervisor: swarm.SupervisorTemplate{
			System: "You are the review lead. Judge whether the critique is " +
				"consistent and actionable. Respond with a JSON object: " +
				"{\"needs_iteration\": bool, \"summary\": string, \"issues\": [string]}.",
		},
	}
}

// refactorPrompt renders the refactoring specialist's user message from
// its two declared dependencies.
func refactorPrompt(in swarm.TemplateInput) string {
	return fmt.Sprintf(
		"Code under review:\n%s\n\nCorrectness findings:\n%s\n\nStyle findings:\n%s",
		in.Query, in.Results["correctness"], in.Results["style"],
	)
}
