package agent

import (
	"fmt"
	"maps"
)

// Resolve reconciles a queued client payload against the current server
// version of the same resource. Merge is a shallow union with client values
// taking precedence on overlapping keys; the server stamps a fresh
// last-modified time when the result is written back. Conflict outcomes are
// not errors; Resolve fails only on an unknown strategy.
func Resolve(server, client map[string]any, strategy Strategy) (map[string]any, error) {
	switch strategy {
	case StrategyServerWins:
		return maps.Clone(server), nil
	case StrategyClientWins:
		return maps.Clone(client), nil
	case StrategyMerge:
		merged := make(map[string]any, len(server)+len(client))
		maps.Copy(merged, server)
		maps.Copy(merged, client)
		return merged, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}
