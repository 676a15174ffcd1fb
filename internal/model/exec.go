package model

// ExecResult is what performing one action against a resolved candidate
// produces: either the action succeeded, or it failed with a Failure
// variant the orchestrator's healer can act on (the adapter contract:
// "act(page, candidate, action, value) -> ExecResult").
type ExecResult struct {
	Success bool
	Failure Failure
	Detail  string
}
