package deploy

import (
	"github.com/memohai/provsync/internal/adapters"
)

// State is the lifecycle of one (provider, target, scope) row.
type State string

const (
	StatePending    State = "pending"
	StateAttempting State = "attempting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

const canceledReason = "canceled"

type Scopes struct {
	Global  bool `json:"global"`
	Project bool `json:"project"`
}

func (s Scopes) list() []adapters.Scope {
	var out []adapters.Scope
	if s.Global {
		out = append(out, adapters.ScopeGlobal)
	}
	if s.Project {
		out = append(out, adapters.ScopeProject)
	}
	return out
}

type ApplyRequest struct {
	ProviderNames []string        `json:"provider_names"`
	Targets       []adapters.Tool `json:"targets"`
	Scopes        Scopes          `json:"scopes"`
}

// RemoveRequest names providers to drop from the targets' configurations.
// The names do not have to be registered.
type RemoveRequest struct {
	ProviderNames []string        `json:"provider_names"`
	Targets       []adapters.Tool `json:"targets"`
	Scopes        Scopes          `json:"scopes"`
}

type PerTargetResult struct {
	Provider string         `json:"provider"`
	Target   adapters.Tool  `json:"target"`
	Scope    adapters.Scope `json:"scope"`
	State    State          `json:"state"`
	Error    string         `json:"error,omitempty"`
}

// Response reports every row of a batch. There is no rollback: succeeded
// rows stay applied when others fail.
type Response struct {
	BatchID string            `json:"batch_id"`
	Results []PerTargetResult `json:"results"`
}

// Failed counts the rows that did not succeed.
func (r Response) Failed() int {
	n := 0
	for _, row := range r.Results {
		if row.State != StateSucceeded {
			n++
		}
	}
	return n
}
