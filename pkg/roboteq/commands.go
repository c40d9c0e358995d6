// Package roboteq drives a multi-channel Roboteq motor controller over
// its line-oriented ASCII serial protocol.
package roboteq

import (
	"fmt"
	"strconv"
	"strings"
)

// The controller understands four request classes, each a one-line ASCII
// command terminated by carriage-return. Responses to configuration and
// runtime commands are a bare ack ("+" or "-"); query responses carry a
// KEY=value pair.
const (
	prefixConfig      = "^"
	prefixRuntime     = "!"
	prefixMaintenance = "%"
	prefixQuery       = "?"
)

func formatCmd(prefix, name string, args []int64) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(a, 10))
	}
	b.WriteByte('\r')
	return b.String()
}

// ConfigCmd formats a "^" configuration command, e.g. ConfigCmd("MXRPM",
// 1, 250) -> "^MXRPM 1 250\r".
func ConfigCmd(name string, args ...int64) string {
	return formatCmd(prefixConfig, name, args)
}

// RuntimeCmd formats a "!" runtime command, e.g. RuntimeCmd("g", 1, 500)
// -> "!g 1 500\r".
func RuntimeCmd(name string, args ...int64) string {
	return formatCmd(prefixRuntime, name, args)
}

// MaintenanceCmd formats a "%" maintenance command, e.g.
// MaintenanceCmd("EESAV") -> "%EESAV\r".
func MaintenanceCmd(name string, args ...int64) string {
	return formatCmd(prefixMaintenance, name, args)
}

// QueryCmd formats a "?" query command, e.g. QueryCmd("C", 2) -> "?C 2\r".
func QueryCmd(name string, args ...int64) string {
	return formatCmd(prefixQuery, name, args)
}

// ParseResponse extracts the integer following "KEY=" from a response
// line. The pair may be embedded in a longer line (the controller can
// echo the query before the value). The second return is false when the
// line does not carry the expected pair; callers treat that as telemetry
// unavailable, not as fatal.
func ParseResponse(line, key string) (int64, bool) {
	for start := 0; start < len(line); {
		idx := strings.Index(line[start:], key+"=")
		if idx < 0 {
			return 0, false
		}
		idx += start
		// The key must begin a token, not terminate a longer word
		// (e.g. "BS=" must not satisfy key "S").
		if idx > 0 && isWordByte(line[idx-1]) {
			start = idx + len(key) + 1
			continue
		}
		val, ok := parseInt(line[idx+len(key)+1:])
		if !ok {
			start = idx + len(key) + 1
			continue
		}
		return val, true
	}
	return 0, false
}

func isWordByte(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z'
}

func parseInt(s string) (int64, bool) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	val, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return val, true
}

// IsAck reports whether a response line acknowledges a configuration or
// runtime command.
func IsAck(line string) bool {
	return strings.TrimSpace(line) == "+"
}

// Exchanger performs one request/response exchange against the
// controller. Implementations must serialize concurrent callers: the
// link is half-duplex and responses carry no request identity.
type Exchanger interface {
	Exchange(request string) (string, error)
}

// query runs a query command and parses the expected key from its
// response. A failed parse returns ErrNoMatch; transport errors pass
// through unchanged.
func query(x Exchanger, name string, key string, args ...int64) (int64, error) {
	line, err := x.Exchange(QueryCmd(name, args...))
	if err != nil {
		return 0, err
	}
	val, ok := ParseResponse(line, key)
	if !ok {
		return 0, fmt.Errorf("%w: %s in %q", ErrNoMatch, key, line)
	}
	return val, nil
}
