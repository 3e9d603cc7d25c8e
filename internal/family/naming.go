package family

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NamePrefix prefixes every generated family identifier.
const NamePrefix = "Pfam-M_"

// NameForLine returns the family identifier for a line of the cluster
// statistics file (1-based), e.g. Pfam-M_000042.
func NameForLine(line int) string {
	return fmt.Sprintf("%s%06d", NamePrefix, line)
}

// ClusterFile resolves the fasta file of a cluster representative. MGnify
// representatives are sharded by their first eight characters, everything
// else by the first three.
func ClusterFile(clusterDir, rep string) string {
	rep = strings.TrimSpace(rep)
	shard := rep
	switch {
	case strings.HasPrefix(rep, "MGY") && len(rep) >= 8:
		shard = rep[:8]
	case len(rep) >= 3:
		shard = rep[:3]
	}
	return filepath.Join(clusterDir, shard, rep+".fa")
}
