package inventory

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kestrelops/kestrel/internal/domain"
	"github.com/kestrelops/kestrel/internal/kestrelerr"
)

// rangePattern matches "name[i:j]" numeric range expansion atoms
// (§4.8), e.g. "web[01:05]".
var rangePattern = regexp.MustCompile(`^(.*)\[(\d+):(\d+)\](.*)$`)

// Resolve parses and evaluates a host pattern against inv, returning an
// ordered, deduplicated host name list (§4.8, invariant: deterministic for
// a given pattern+inventory pair).
func Resolve(inv *domain.Inventory, pattern string) ([]string, error) {
	tokens, err := splitPatternTokens(pattern)
	if err != nil {
		return nil, err
	}
	var result []string
	for i, tok := range tokens {
		op := byte(':') // union, the default combinator for the first/plain token
		atom := tok
		if i > 0 {
			switch {
			case strings.HasPrefix(tok, "&"):
				op, atom = '&', tok[1:]
			case strings.HasPrefix(tok, "!"):
				op, atom = '!', tok[1:]
			default:
				op, atom = ':', tok
			}
		}
		set, err := resolveAtom(inv, atom)
		if err != nil {
			return nil, err
		}
		switch op {
		case '&':
			result = intersect(result, set)
		case '!':
			result = subtract(result, set)
		default:
			result = union(result, set)
		}
	}
	return result, nil
}

// splitPatternTokens splits on ':' that is not inside a "[...]" numeric
// range, so "web[01:05]:db" splits into ["web[01:05]", "db"].
func splitPatternTokens(pattern string) ([]string, error) {
	var tokens []string
	depth := 0
	start := 0
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return nil, kestrelerr.New(kestrelerr.ClassInventory, fmt.Errorf("pattern %q: unbalanced ]", pattern))
			}
		case ':':
			if depth == 0 {
				tokens = append(tokens, pattern[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, kestrelerr.New(kestrelerr.ClassInventory, fmt.Errorf("pattern %q: unbalanced [", pattern))
	}
	tokens = append(tokens, pattern[start:])
	return tokens, nil
}

func resolveAtom(inv *domain.Inventory, atom string) ([]string, error) {
	atom = strings.TrimSpace(atom)
	switch {
	case atom == "" || atom == domain.AllGroup:
		return inv.HostsOfGroup(domain.AllGroup), nil

	case strings.HasPrefix(atom, "~"):
		re, err := regexp.Compile(atom[1:])
		if err != nil {
			return nil, kestrelerr.New(kestrelerr.ClassInventory, fmt.Errorf("pattern %q: %w", atom, err))
		}
		var out []string
		for _, h := range sortedHostNames(inv) {
			if re.MatchString(h) {
				out = append(out, h)
			}
		}
		return out, nil

	case rangePattern.MatchString(atom):
		return expandRange(inv, atom)

	case strings.ContainsAny(atom, "*?["):
		var out []string
		for _, h := range sortedHostNames(inv) {
			ok, err := filepath.Match(atom, h)
			if err != nil {
				return nil, kestrelerr.New(kestrelerr.ClassInventory, fmt.Errorf("pattern %q: %w", atom, err))
			}
			if ok {
				out = append(out, h)
			}
		}
		return out, nil

	default:
		if g, ok := inv.Groups[atom]; ok {
			_ = g
			return inv.HostsOfGroup(atom), nil
		}
		if _, ok := inv.Hosts[atom]; ok {
			return []string{atom}, nil
		}
		return nil, nil
	}
}

// expandRange expands "prefix[i:j]suffix" into literal host names,
// zero-padded to the width of the range bounds as written (so [01:05]
// produces web01..web05, while [1:5] produces web1..web5), then resolves
// each literal name against the inventory.
func expandRange(inv *domain.Inventory, atom string) ([]string, error) {
	m := rangePattern.FindStringSubmatch(atom)
	prefix, lo, hi, suffix := m[1], m[2], m[3], m[4]
	width := len(lo)
	if len(hi) > width {
		width = len(hi)
	}
	loN, err := strconv.Atoi(lo)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassInventory, fmt.Errorf("pattern %q: bad range start", atom))
	}
	hiN, err := strconv.Atoi(hi)
	if err != nil {
		return nil, kestrelerr.New(kestrelerr.ClassInventory, fmt.Errorf("pattern %q: bad range end", atom))
	}
	if hiN < loN {
		return nil, kestrelerr.New(kestrelerr.ClassInventory, fmt.Errorf("pattern %q: range end before start", atom))
	}
	var out []string
	for n := loN; n <= hiN; n++ {
		name := fmt.Sprintf("%s%0*d%s", prefix, width, n, suffix)
		if _, ok := inv.Hosts[name]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func sortedHostNames(inv *domain.Inventory) []string {
	names := make([]string, 0, len(inv.Hosts))
	for n := range inv.Hosts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func union(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, h := range a {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	for _, h := range b {
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	inB := map[string]bool{}
	for _, h := range b {
		inB[h] = true
	}
	var out []string
	for _, h := range a {
		if inB[h] {
			out = append(out, h)
		}
	}
	return out
}

func subtract(a, b []string) []string {
	inB := map[string]bool{}
	for _, h := range b {
		inB[h] = true
	}
	var out []string
	for _, h := range a {
		if !inB[h] {
			out = append(out, h)
		}
	}
	return out
}
