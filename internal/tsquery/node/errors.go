package node

import "github.com/flowmetrics/qpipe/errors"

func errMissingContext(nodeID string) error {
	return errors.InternalQueryEngineError(nil).WithDetail("node", nodeID).WithDetail("reason", "missing query context")
}

func errMissingUpstream(nodeID, upstream string) error {
	return errors.InternalQueryEngineError(nil).WithDetail("node", nodeID).WithDetail("upstream", upstream)
}
