package decision

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harun/craftpilot/pkg/action"
)

const (
	// maxScannedArgs bounds how much of a free-text clause becomes arguments.
	maxScannedArgs = 3

	defaultReasoning = "Could not find a command in the reply; exploring"
)

var (
	actionMarker     = regexp.MustCompile(`(?i)\baction\s*:`)
	priorityPattern  = regexp.MustCompile(`(?im)^\s*\**priority\**\s*:\s*\**\s*(\d+)`)
	durationPattern  = regexp.MustCompile(`(?im)^\s*\**duration\**\s*:\s*\**\s*([^\n]+)`)
	reasoningPrefix  = regexp.MustCompile(`(?i)^\s*\**(reasoning|thought|thinking)\**\s*:\s*`)
	clauseTerminator = regexp.MustCompile(`[.!?;,\n]`)
	verbPatterns     = compileVerbPatterns()
)

// verbAliases are hyphenated spellings scanned as part of their verb.
var verbAliases = map[action.Command][]string{
	action.Jump: {"jump-move", "jump_move", "jumpmove"},
}

// compileVerbPatterns matches each verb as a whole token. Hyphens count as
// part of a token so "move" never matches inside "jump-move".
func compileVerbPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(action.Verbs))
	for i, verb := range action.Verbs {
		forms := make([]string, 0, 1+len(verbAliases[verb]))
		for _, alias := range verbAliases[verb] {
			forms = append(forms, regexp.QuoteMeta(alias))
		}
		forms = append(forms, regexp.QuoteMeta(verb.String()))
		patterns[i] = regexp.MustCompile(`(?i)(?:^|[^\w-])(` + strings.Join(forms, "|") + `)(?:[^\w-]|$)`)
	}
	return patterns
}

// ParseResponse turns a free-text reply into a plan. It never fails: the
// ladder is an explicit ACTION marker, then the first known verb in verb-list
// order, then a default explore.
func ParseResponse(text string) Plan {
	plan := parseLadder(text)
	plan.Priority = parsePriority(text)
	plan.EstimatedDuration = parseDuration(text)
	return plan
}

func parseLadder(text string) Plan {
	if cmd, reasoning, ok := splitMarker(text); ok {
		return Plan{Action: cmd, Reasoning: reasoning, Source: SourceReasoning}
	}

	if cmd, ok := scanVerbs(text); ok {
		return Plan{Action: cmd, Reasoning: cleanReasoning(text), Source: SourceParsedFallback}
	}

	return Plan{Action: action.Explore.String(), Reasoning: defaultReasoning, Source: SourceDefault}
}

// splitMarker finds the first ACTION: marker with a non-empty command after it.
func splitMarker(text string) (cmd, reasoning string, ok bool) {
	for _, loc := range actionMarker.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[:nl]
		}
		if cmd = cleanCommand(rest); cmd != "" {
			return cmd, cleanReasoning(text[:loc[0]]), true
		}
	}
	return "", "", false
}

// scanVerbs returns the first verb (in verb-list order) found anywhere in the
// text together with the rest of its clause.
func scanVerbs(text string) (string, bool) {
	for i, pattern := range verbPatterns {
		loc := pattern.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		clause := text[loc[2]:]
		if end := clauseTerminator.FindStringIndex(clause); end != nil {
			clause = clause[:end[0]]
		}
		fields := strings.Fields(clause)
		if len(fields) > maxScannedArgs+1 {
			fields = fields[:maxScannedArgs+1]
		}
		fields[0] = action.Verbs[i].String()
		return cleanCommand(strings.Join(fields, " ")), true
	}
	return "", false
}

func cleanCommand(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`*\"' ")
	s = strings.TrimRight(s, ".!?;,")
	return strings.Join(strings.Fields(s), " ")
}

func cleanReasoning(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if priorityPattern.MatchString(line) || durationPattern.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	out = reasoningPrefix.ReplaceAllString(out, "")
	return strings.TrimSpace(strings.TrimRight(out, "* "))
}

func parsePriority(text string) int {
	m := priorityPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseDuration accepts Go durations ("90s", "2m") and "<n> seconds|minutes".
func parseDuration(text string) time.Duration {
	m := durationPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	value := strings.ToLower(strings.Trim(strings.TrimSpace(m[1]), "`*\"'."))
	if d, err := time.ParseDuration(strings.ReplaceAll(value, " ", "")); err == nil && d > 0 {
		return d
	}

	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || n <= 0 {
		return 0
	}
	unit := time.Second
	if len(fields) > 1 && strings.HasPrefix(fields[1], "min") {
		unit = time.Minute
	}
	return time.Duration(n * float64(unit))
}
