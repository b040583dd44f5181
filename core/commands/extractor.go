// Package commands extracts tool invocations from generated text and
// executes them against the local system.
package commands

import (
	"regexp"
	"strings"
)

// Invocation is a request to perform a local action, recovered either from a
// structured tool call or from a text-embedded marker.
type Invocation struct {
	Name      string
	Arguments map[string]string
}

const (
	ActionOpenURL  = "open_url"
	ActionOpenPath = "open_path"
	ActionRunApp   = "run_app"
)

// Some backends cannot issue structured tool calls and fall back to writing
// the command inline. The removal patterns tolerate a missing argument so a
// bare marker never reaches speech even when nothing is extracted from it.
var (
	openURLPattern = regexp.MustCompile(`CMD_OPEN_URL:\s*(\S+)`)
	runAppPattern  = regexp.MustCompile(`CMD_RUN_APP:\s*(.+?)(\.|$)`)

	openURLRemovalPattern = regexp.MustCompile(`CMD_OPEN_URL:\s*(\S+)?`)
	runAppRemovalPattern  = regexp.MustCompile(`CMD_RUN_APP:(\s*(.+?)(\.|$))?`)

	// Decorative traces some models leave around tool calls. Stripped from
	// spoken text, never executed.
	functionTagPattern = regexp.MustCompile(`(?s)<function.*?>.*?</function>`)
	toolNoticePattern  = regexp.MustCompile(`\[🛠️.*?\]`)
)

// Extract pulls text-embedded command markers out of a sentence and returns
// the invocations alongside the cleaned text safe to send for speech.
func Extract(text string) ([]Invocation, string) {
	var invocations []Invocation

	for _, match := range openURLPattern.FindAllStringSubmatch(text, -1) {
		url := strings.TrimRight(match[1], `"',.`)
		if url == "" {
			continue
		}
		invocations = append(invocations, Invocation{
			Name:      ActionOpenURL,
			Arguments: map[string]string{"url": url},
		})
	}

	for _, match := range runAppPattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(match[1])
		if name == "" {
			continue
		}
		invocations = append(invocations, Invocation{
			Name:      ActionRunApp,
			Arguments: map[string]string{"app_name": name},
		})
	}

	cleaned := openURLRemovalPattern.ReplaceAllString(text, "")
	cleaned = runAppRemovalPattern.ReplaceAllString(cleaned, "")
	cleaned = functionTagPattern.ReplaceAllString(cleaned, "")
	cleaned = toolNoticePattern.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	return invocations, cleaned
}
