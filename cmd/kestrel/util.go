package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

// parseExtraVars turns repeated "-e key=value" flags into the extra-vars
// mapping (layer 20, §4.2). Values that parse as bool/int/float keep that
// type; everything else stays a string.
func parseExtraVars(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("kestrel: invalid -e %q, expected key=value", arg)
		}
		out[k] = parseScalar(v)
	}
	return out, nil
}

func parseScalar(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// exitCodeForErr maps a top-level command error to the exit code contract
// of §6. A *exitError already carries the code execute() computed from a
// Summary (hosts failed/unreachable with no top-level error); anything
// else is a pre-run failure classified the normal way.
func exitCodeForErr(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return kestrelerr.ExitCode(false, false, err)
}
