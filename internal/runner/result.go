package runner

import "github.com/kestrelops/kestrel/internal/domain"

// resultToMap exposes a ModuleResult to `changed_when`/`failed_when`/`until`
// expressions as the conventional `result` binding (§4.4).
func resultToMap(r domain.ModuleResult) map[string]any {
	m := map[string]any{
		"changed":     r.Changed,
		"failed":      r.Failed,
		"skipped":     r.Skipped,
		"unreachable": r.Unreachable,
		"msg":         r.Msg,
		"stdout":      r.Stdout,
		"stderr":      r.Stderr,
		"rc":          r.RC,
		"data":        r.Data,
	}
	if len(r.Results) > 0 {
		results := make([]any, 0, len(r.Results))
		for _, it := range r.Results {
			results = append(results, resultToMap(it))
		}
		m["results"] = results
	}
	return m
}

// combineLoopResults folds per-iteration results into the single result the
// rest of the task pipeline (register/notify/changed_when) operates on
// (§4.4 Register: "results holds per-iteration results... bound under the
// 'results' key").
func combineLoopResults(results []domain.ModuleResult) domain.ModuleResult {
	if len(results) == 1 {
		return results[0]
	}
	out := domain.ModuleResult{Results: results}
	for _, r := range results {
		out.Changed = out.Changed || r.Changed
		out.Failed = out.Failed || r.Failed
		out.Unreachable = out.Unreachable || r.Unreachable
	}
	return out
}
