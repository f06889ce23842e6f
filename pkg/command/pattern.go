// Package command implements command registration, pattern matching,
// permission checks and cooldown tracking for chat commands.
package command

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/linjianyan0229/linbot2/pkg/errors"
)

// PatternType discriminates how a pattern matches message text.
type PatternType string

const (
	// PatternExact matches when the trimmed message equals prefix+value.
	PatternExact PatternType = "exact"
	// PatternPrefix matches when the trimmed message starts with
	// prefix+value; the remainder becomes arguments.
	PatternPrefix PatternType = "prefix"
	// PatternRegex matches the trimmed message against a regular
	// expression; capture groups become arguments.
	PatternRegex PatternType = "regex"
	// PatternKeywords matches when the message contains any keyword,
	// case-insensitively. The command prefix is ignored.
	PatternKeywords PatternType = "keywords"
)

// Pattern is one way a command can be invoked.
type Pattern struct {
	Type PatternType `yaml:"type" json:"type"`
	// Value is the command word, or the regular expression for
	// PatternRegex.
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
	// Keywords is used by PatternKeywords.
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Exact creates an exact-match pattern.
func Exact(cmd string) Pattern { return Pattern{Type: PatternExact, Value: cmd} }

// Prefix creates a prefix-match pattern.
func Prefix(cmd string) Pattern { return Pattern{Type: PatternPrefix, Value: cmd} }

// Regex creates a regular-expression pattern.
func Regex(expr string) Pattern { return Pattern{Type: PatternRegex, Value: expr} }

// Keywords creates a keyword pattern.
func Keywords(words ...string) Pattern { return Pattern{Type: PatternKeywords, Keywords: words} }

// Match is the outcome of a successful pattern match.
type Match struct {
	// Command is the name of the matched command, filled in by the
	// manager.
	Command string
	// Pattern is the pattern that matched.
	Pattern Pattern
	// MatchedText is the portion of the message that matched.
	MatchedText string
	// Args are the parsed arguments.
	Args []string
	// RawArgs is the unsplit argument text.
	RawArgs string
}

// ArgCount returns the number of parsed arguments.
func (m *Match) ArgCount() int { return len(m.Args) }

// Arg returns the argument at index, or "" when out of range.
func (m *Match) Arg(index int) string {
	if index < 0 || index >= len(m.Args) {
		return ""
	}
	return m.Args[index]
}

// ArgInt64 parses the argument at index as an integer.
func (m *Match) ArgInt64(index int) (int64, bool) {
	v, err := strconv.ParseInt(m.Arg(index), 10, 64)
	return v, err == nil
}

// ArgFloat64 parses the argument at index as a float.
func (m *Match) ArgFloat64(index int) (float64, bool) {
	v, err := strconv.ParseFloat(m.Arg(index), 64)
	return v, err == nil
}

// ArgsFrom joins the arguments from start onward with single spaces.
func (m *Match) ArgsFrom(start int) string {
	if start < 0 || start >= len(m.Args) {
		return ""
	}
	return strings.Join(m.Args[start:], " ")
}

// Match tests the pattern against message text. A non-matching pattern
// returns (nil, nil); an unusable pattern (such as an invalid regular
// expression) returns a CommandMatchError rather than panicking.
func (p Pattern) Match(text, prefix string) (*Match, error) {
	trimmed := strings.TrimSpace(text)

	switch p.Type {
	case PatternExact:
		full := prefix + p.Value
		if trimmed != full {
			return nil, nil
		}
		return &Match{Pattern: p, MatchedText: full}, nil

	case PatternPrefix:
		full := prefix + p.Value
		if !strings.HasPrefix(trimmed, full) {
			return nil, nil
		}
		rawArgs := strings.TrimSpace(trimmed[len(full):])
		var args []string
		if rawArgs != "" {
			args = strings.Fields(rawArgs)
		}
		return &Match{Pattern: p, MatchedText: full, Args: args, RawArgs: rawArgs}, nil

	case PatternRegex:
		re, err := regexp.Compile(p.Value)
		if err != nil {
			return nil, errors.ErrCommandMatch("invalid regex pattern "+p.Value, err)
		}
		groups := re.FindStringSubmatch(trimmed)
		if groups == nil {
			return nil, nil
		}
		var args []string
		if len(groups) > 1 {
			args = groups[1:]
		}
		return &Match{
			Pattern:     p,
			MatchedText: groups[0],
			Args:        args,
			RawArgs:     strings.Join(args, " "),
		}, nil

	case PatternKeywords:
		lower := strings.ToLower(trimmed)
		for _, kw := range p.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return &Match{Pattern: p, MatchedText: kw}, nil
			}
		}
		return nil, nil

	default:
		return nil, errors.ErrCommandMatch("unknown pattern type "+string(p.Type), nil)
	}
}
