package taskgen

import (
	"fmt"
	"sort"
)

// FallbackTeam is the category used when a team name is not recognized.
const FallbackTeam = "General"

// User story templates, one per persona. %s is replaced with the task title.
var userStoryTemplates = [...]string{
	"As a user, I want %s so that I can get my everyday work done faster.",
	"As a developer, I want %s so that the codebase stays easy to extend and maintain.",
	"As a project manager, I want %s so that I can see how the team is progressing.",
	"As a test engineer, I want %s so that I can verify the product behaves reliably.",
	"As an operations engineer, I want %s so that releases stay stable in production.",
}

var acceptanceCriteriaTemplates = [...]string{
	"%s is available to every user with the required permissions.",
	"%s works in the current versions of all supported browsers.",
	"Edge cases of %s are covered by automated tests.",
	"%s responds within 200 ms under normal load.",
	"Failures in %s are reported to the user with a clear message.",
	"Documentation for %s is updated and reviewed.",
	"%s has passed code review and is merged into the main branch.",
}

// Every category holds exactly six entries.
var subtaskTemplates = map[string][]string{
	"Frontend": {
		"Build the page layout from the approved mockups",
		"Implement the UI components and their states",
		"Wire the components to the backend API",
		"Add client-side form validation",
		"Make the screens responsive for mobile devices",
		"Write component tests",
	},
	"Backend": {
		"Design the database schema changes",
		"Implement the API endpoints",
		"Add request validation and error handling",
		"Cover the business logic with unit tests",
		"Optimize the slow database queries",
		"Document the API contract",
	},
	"QA": {
		"Write the test plan",
		"Prepare test data",
		"Run the functional test suite",
		"Run regression tests on the staging environment",
		"Automate the critical test scenarios",
		"File and triage the bugs that were found",
	},
	"DevOps": {
		"Update the CI pipeline configuration",
		"Provision the infrastructure for the new service",
		"Set up monitoring and alerting",
		"Configure automated deployments",
		"Write the rollback procedure",
		"Review access rights and secrets",
	},
	"Design": {
		"Collect requirements from stakeholders",
		"Sketch the user flow",
		"Prepare wireframes",
		"Create high-fidelity mockups",
		"Run a usability review with users",
		"Hand off the assets to developers",
	},
	FallbackTeam: {
		"Clarify the requirements with the product owner",
		"Break the work into smaller steps",
		"Estimate the effort",
		"Implement the main functionality",
		"Test the result",
		"Demo the result to the team",
	},
}

func userStory(index int, title string) string {
	return fmt.Sprintf(userStoryTemplates[index], title)
}

func acceptanceCriteria(title string) []string {
	out := make([]string, len(acceptanceCriteriaTemplates))
	for i, tmpl := range acceptanceCriteriaTemplates {
		out[i] = fmt.Sprintf(tmpl, title)
	}
	return out
}

// ResolveTeam returns team when it names a known category and FallbackTeam
// otherwise. Matching is exact and case-sensitive.
func ResolveTeam(team string) string {
	if _, ok := subtaskTemplates[team]; ok {
		return team
	}
	return FallbackTeam
}

// Teams lists the known categories in alphabetical order.
func Teams() []string {
	names := make([]string, 0, len(subtaskTemplates))
	for name := range subtaskTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SubtaskPool returns a copy of the templates the team resolves to.
func SubtaskPool(team string) []string {
	return append([]string(nil), subtaskTemplates[ResolveTeam(team)]...)
}
