// Package action defines the closed set of commands the agent can execute.
//
// A command string is a leading verb followed by free-form arguments, for
// example "move north 10" or "chat hello there". Parsing never consults a
// runtime table: the verb is matched against the Command enum and anything
// else is reported as unknown.
package action

import (
	"strings"
)

// Command is one verb of the executor's closed command set.
type Command int

const (
	// Unknown is returned for verbs outside the command set.
	Unknown Command = iota
	Move
	Jump
	Mine
	Explore
	Attack
	Chat
	Wait
	Craft
	Combat
	Build
	Eat
	Sleep
)

// Verbs lists known verbs in scan order. The decision parser relies on this
// order when several verbs appear in unstructured text.
var Verbs = []Command{Move, Jump, Mine, Explore, Attack, Chat, Wait, Craft, Combat, Build, Eat, Sleep}

// String returns the verb as written in command strings.
func (c Command) String() string {
	switch c {
	case Move:
		return "move"
	case Jump:
		return "jump"
	case Mine:
		return "mine"
	case Explore:
		return "explore"
	case Attack:
		return "attack"
	case Chat:
		return "chat"
	case Wait:
		return "wait"
	case Craft:
		return "craft"
	case Combat:
		return "combat"
	case Build:
		return "build"
	case Eat:
		return "eat"
	case Sleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// Usage returns a one-line syntax reference for the command.
func (c Command) Usage() string {
	switch c {
	case Move:
		return "move <north|south|east|west|forward|back> [blocks]"
	case Jump:
		return "jump <north|south|east|west|forward|back> [blocks]"
	case Mine:
		return "mine [block]"
	case Explore:
		return "explore"
	case Attack:
		return "attack [target]"
	case Chat:
		return "chat <message>"
	case Wait:
		return "wait [seconds]"
	case Craft:
		return "craft <item> [count]"
	case Combat:
		return "combat [target]"
	case Build:
		return "build [block] [count]"
	case Eat:
		return "eat [food]"
	case Sleep:
		return "sleep"
	default:
		return ""
	}
}

// Lookup maps a verb to its Command. Matching is case-insensitive.
func Lookup(verb string) Command {
	v := strings.ToLower(strings.TrimSpace(verb))
	for _, c := range Verbs {
		if c.String() == v {
			return c
		}
	}
	// Aliases used by the broader command vocabulary.
	switch v {
	case "jump-move", "jump_move", "jumpmove":
		return Jump
	case "fight":
		return Combat
	case "say":
		return Chat
	case "walk", "go":
		return Move
	case "dig":
		return Mine
	}
	return Unknown
}

// Parsed is a command string split into its verb and arguments.
type Parsed struct {
	Command Command
	Token   string
	Args    []string
	Raw     string
}

// Parse splits a command string into its leading token and arguments.
// Token keeps the original spelling so callers can report unknown verbs.
func Parse(raw string) Parsed {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return Parsed{Command: Unknown, Raw: raw}
	}
	return Parsed{
		Command: Lookup(fields[0]),
		Token:   fields[0],
		Args:    fields[1:],
		Raw:     strings.TrimSpace(raw),
	}
}

// Arg returns the i-th argument or def when absent.
func (p Parsed) Arg(i int, def string) string {
	if i < len(p.Args) {
		return p.Args[i]
	}
	return def
}

// Rest joins all arguments from i onward.
func (p Parsed) Rest(i int) string {
	if i >= len(p.Args) {
		return ""
	}
	return strings.Join(p.Args[i:], " ")
}
