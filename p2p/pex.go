package p2p

import (
	"log/slog"
	"net"
	"strings"

	"github.com/eng-cc/agent-world/observability/logging"
)

type seedEndpoint struct {
	NodeID  string
	Address string
}

func parseSeedList(values []string, logger *slog.Logger) []seedEndpoint {
	if logger == nil {
		logger = slog.Default()
	}
	seeds := make([]seedEndpoint, 0, len(values))
	seen := make(map[string]struct{})
	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		nodePart, addrPart, found := strings.Cut(trimmed, "@")
		if !found {
			logger.Warn("ignoring seed: missing node ID", logging.MaskField("seed", trimmed))
			continue
		}
		node := normalizeHex(nodePart)
		if node == "" {
			logger.Warn("ignoring seed: empty node ID", logging.MaskField("seed", trimmed))
			continue
		}
		if _, _, err := net.SplitHostPort(strings.TrimSpace(addrPart)); err != nil {
			logger.Warn("ignoring seed: invalid address", logging.MaskField("seed", trimmed), "err", err)
			continue
		}
		key := node + "@" + strings.TrimSpace(addrPart)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		seeds = append(seeds, seedEndpoint{NodeID: node, Address: strings.TrimSpace(addrPart)})
	}
	return seeds
}
