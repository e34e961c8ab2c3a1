package module

import (
	"strings"

	"github.com/kestrelops/kestrel/internal/connection"
	"github.com/kestrelops/kestrel/internal/domain"
)

// GatherFactsModule runs a small set of read-only remote commands and
// returns their output as facts (§4.3 RemoteCommand; feeds C7). It
// never mutates remote state, so check mode changes nothing about its
// behavior.
type GatherFactsModule struct{}

func (m *GatherFactsModule) Name() string                              { return "gather_facts" }
func (m *GatherFactsModule) Classification() Classification             { return RemoteCommand }
func (m *GatherFactsModule) ParallelizationHint() ParallelizationHint { return FullyParallel }
func (m *GatherFactsModule) Validate(map[string]any) error              { return nil }

var factProbes = map[string]string{
	"ansible_kernel":       "uname -r",
	"ansible_system":       "uname -s",
	"ansible_architecture": "uname -m",
	"ansible_hostname":     "hostname",
}

func (m *GatherFactsModule) Execute(params map[string]any, ctx ExecContext) domain.ModuleResult {
	facts := make(map[string]any, len(factProbes))
	for key, cmd := range factProbes {
		res, err := ctx.Pool.Execute(ctx.Session, cmd, connection.ExecOptions{})
		if err != nil || res.RC != 0 {
			continue
		}
		facts[key] = strings.TrimSpace(string(res.Stdout))
	}
	return domain.ModuleResult{Changed: false, Data: facts}
}
