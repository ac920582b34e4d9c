// Package security implements the optional SecurityAnalyzer hook of
// spec.md §4.5: the controller calls Analyzer.Risk on every Action
// before appending it, and the result may force a confirmation gate.
// Grounded on the teacher's agent.Callbacks before/after-hook idiom
// (agent/callbacks.go): an ordered list of independent checks run in
// sequence, the most severe verdict wins, and a panicking check is
// never allowed to escape — failing closed to RiskHigh, per spec.md's
// explicit "if the analyzer raises, fail closed: treat as high risk."
package security

import (
	"context"
	"fmt"

	"github.com/agentrt/agentrt/event"
	"github.com/agentrt/agentrt/log"
)

// Rule inspects one Action and reports a risk verdict, or RiskUnknown if
// it has no opinion. Rules never need to know about other rules; the
// Analyzer combines verdicts by taking the most severe.
type Rule func(ctx context.Context, action *event.Event) event.SecurityRisk

// Analyzer is a rule-based SecurityAnalyzer: an ordered list of Rules
// whose most severe verdict is the Action's assigned risk.
type Analyzer struct {
	rules []namedRule
}

type namedRule struct {
	name string
	rule Rule
}

// New returns an empty Analyzer. Add rules with Register.
func New() *Analyzer { return &Analyzer{} }

// Register appends a named rule to the analyzer's evaluation order.
// name appears in logs when a rule panics, to make fail-closed events
// attributable.
func (a *Analyzer) Register(name string, rule Rule) {
	a.rules = append(a.rules, namedRule{name: name, rule: rule})
}

// Risk evaluates every registered rule and returns the most severe
// verdict. A rule that panics is treated as RiskHigh for that rule only
// — it does not abort evaluation of the remaining rules, since another
// rule's high verdict couldn't make the result any less severe anyway.
func (a *Analyzer) Risk(ctx context.Context, action *event.Event) event.SecurityRisk {
	worst := event.RiskUnknown
	for _, nr := range a.rules {
		verdict := a.evalSafely(ctx, nr, action)
		if Severity(verdict) > Severity(worst) {
			worst = verdict
		}
	}
	return worst
}

func (a *Analyzer) evalSafely(ctx context.Context, nr namedRule, action *event.Event) (verdict event.SecurityRisk) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnf("security: rule %q panicked, treating as high risk: %v", nr.name, r)
			verdict = event.RiskHigh
		}
	}()
	return nr.rule(ctx, action)
}

// Severity orders SecurityRisk values low-to-high so callers (the
// Analyzer itself, and the controller's confirmation-threshold check)
// can compare verdicts without a string switch of their own.
func Severity(r event.SecurityRisk) int {
	switch r {
	case event.RiskHigh:
		return 3
	case event.RiskMedium:
		return 2
	case event.RiskLow:
		return 1
	default: // RiskUnknown
		return 0
	}
}

// RunCommandDenylist flags run_command actions whose shell command
// contains any of the given substrings as RiskHigh. A common default is
// destructive filesystem or privilege-escalation patterns ("rm -rf /",
// "sudo", "chmod 777", ":(){ :|:& };:").
func RunCommandDenylist(patterns ...string) Rule {
	return func(ctx context.Context, action *event.Event) event.SecurityRisk {
		if action.Kind != event.ActionRunCommand {
			return event.RiskUnknown
		}
		var payload struct {
			Command string `json:"command"`
		}
		if err := action.UnmarshalPayload(&payload); err != nil {
			return event.RiskUnknown
		}
		for _, p := range patterns {
			if containsFold(payload.Command, p) {
				return event.RiskHigh
			}
		}
		return event.RiskLow
	}
}

// WriteOutsideWorkspace flags write_file/edit_file actions whose path
// escapes the workspace root (leading "/" or any ".." segment) as
// RiskMedium.
func WriteOutsideWorkspace() Rule {
	return func(ctx context.Context, action *event.Event) event.SecurityRisk {
		if action.Kind != event.ActionWriteFile && action.Kind != event.ActionEditFile {
			return event.RiskUnknown
		}
		var payload struct {
			Path string `json:"path"`
		}
		if err := action.UnmarshalPayload(&payload); err != nil {
			return event.RiskUnknown
		}
		if isEscaping(payload.Path) {
			return event.RiskMedium
		}
		return event.RiskLow
	}
}

// NetworkAccessIsMedium flags every browse action as at least
// RiskMedium: outbound network access is inherently riskier than
// sandbox-local work.
func NetworkAccessIsMedium() Rule {
	return func(ctx context.Context, action *event.Event) event.SecurityRisk {
		if action.Kind != event.ActionBrowse {
			return event.RiskUnknown
		}
		return event.RiskMedium
	}
}

func containsFold(haystack, needle string) bool {
	hl, nl := []rune(haystack), []rune(needle)
	toLower := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			out[i] = r
		}
		return out
	}
	hl, nl = toLower(hl), toLower(nl)
	if len(nl) == 0 || len(nl) > len(hl) {
		return len(nl) == 0
	}
	for i := 0; i+len(nl) <= len(hl); i++ {
		match := true
		for j := range nl {
			if hl[i+j] != nl[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func isEscaping(path string) bool {
	if path == "" {
		return false
	}
	if path[0] == '/' {
		return true
	}
	segments := splitPath(path)
	for _, seg := range segments {
		if seg == ".." {
			return true
		}
	}
	return false
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// DefaultAnalyzer returns the built-in Analyzer used when
// security.security_analyzer is configured without an explicit rule
// set: deny-list on shell commands, workspace-escape detection, and a
// blanket medium rating on browser actions.
func DefaultAnalyzer() *Analyzer {
	a := New()
	a.Register("run_command_denylist", RunCommandDenylist(
		"rm -rf /", "mkfs", ":(){ :|:& };:", "chmod 777 /", "dd if=/dev/zero",
	))
	a.Register("write_outside_workspace", WriteOutsideWorkspace())
	a.Register("network_access", NetworkAccessIsMedium())
	return a
}

// String implements fmt.Stringer for diagnostic logging.
func (a *Analyzer) String() string {
	return fmt.Sprintf("security.Analyzer{rules=%d}", len(a.rules))
}
