package protocol

import (
	"encoding/json"
	"math"
	"strconv"
)

// Command is a request tuple that has the shape of a known command. For
// CmdGetReport, Name and Start are carried unvalidated: the name must be
// checked against the session before the start index.
type Command struct {
	Op    string
	Name  any
	Start any
}

// ReportName returns the report name when it is a string
func (c Command) ReportName() (string, bool) {
	name, ok := c.Name.(string)
	return name, ok
}

// ParseCommand matches a request tuple against the known command shapes.
// It returns false for anything that should be answered with
// ErrUnknownCommand.
func ParseCommand(args any) (Command, bool) {
	tuple, ok := args.([]any)
	if !ok || len(tuple) == 0 {
		return Command{}, false
	}

	op, ok := tuple[0].(string)
	if !ok {
		return Command{}, false
	}

	switch op {
	case CmdGetAnalysisInfo, CmdGetReports:
		if len(tuple) != 1 {
			return Command{}, false
		}
		return Command{Op: op}, true
	case CmdGetReport:
		if len(tuple) != 3 {
			return Command{}, false
		}
		return Command{Op: op, Name: tuple[1], Start: tuple[2]}, true
	default:
		return Command{}, false
	}
}

// ParseStartIndex accepts non-negative integers only. On the wire that means
// a JSON integer literal: "0.0" and "1e3" are rejected like strings,
// fractions, negative numbers and values beyond int range. The float64 case
// serves Go callers handing in already decoded values.
func ParseStartIndex(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := strconv.ParseInt(string(n), 10, 64)
		if err != nil || i < 0 || i > math.MaxInt {
			return 0, false
		}
		return int(i), true
	case float64:
		if n < 0 || n != math.Trunc(n) || n > 1<<53 {
			return 0, false
		}
		return int(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return n, true
	case int64:
		if n < 0 || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return int(n), true
	case uint:
		if uint64(n) > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
