package config

import (
	"fmt"
	"sort"

	"github.com/jpalmerr/burstgate"
)

// BuildOptions converts a parsed job file into job options.
//
// The URL and count are not options; pass them to [burstgate.New] directly
// (see [Config.Complete]).
func BuildOptions(cfg *Config) ([]burstgate.Option, error) {
	var opts []burstgate.Option

	gate, err := BuildGate(cfg.Gate)
	if err != nil {
		return nil, err
	}
	opts = append(opts, burstgate.WithGate(gate))

	if cfg.Timeout != 0 {
		opts = append(opts, burstgate.WithTimeout(cfg.Timeout.Duration()))
	}

	if len(cfg.Headers) > 0 {
		opts = append(opts, burstgate.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}

	if cfg.Pacing.Delay != nil {
		opts = append(opts, burstgate.WithPacingDelay(cfg.Pacing.Delay.Duration()))
	}

	if cfg.Pacing.Rate > 0 {
		burst := cfg.Pacing.Burst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, burstgate.WithRateLimit(cfg.Pacing.Rate, burst))
	}

	if cfg.Listen != "" {
		opts = append(opts, burstgate.WithListenAddr(cfg.Listen))
	}

	return opts, nil
}

// BuildGate converts a gate configuration into a [burstgate.Gate].
//
// An empty configuration yields [burstgate.AllowAll].
func BuildGate(gc GateConfig) (burstgate.Gate, error) {
	switch gc.Type {
	case "", "allow":
		return burstgate.AllowAll(), nil
	case "deny":
		return burstgate.DenyAll(), nil
	case "token":
		return burstgate.TokenGate(gc.Expected, gc.Presented), nil
	case "quota":
		return burstgate.QuotaGate(gc.MaxRequests), nil
	case "hosts":
		if len(gc.Hosts) == 0 {
			return nil, fmt.Errorf("gate type 'hosts' requires at least one host")
		}
		return burstgate.HostGate(gc.Hosts...), nil
	case "all":
		gates := make([]burstgate.Gate, 0, len(gc.Gates))
		for i, member := range gc.Gates {
			g, err := BuildGate(member)
			if err != nil {
				return nil, fmt.Errorf("gates[%d]: %w", i, err)
			}
			gates = append(gates, g)
		}
		return burstgate.AllOf(gates...), nil
	default:
		return nil, fmt.Errorf("unknown gate type %q", gc.Type)
	}
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
