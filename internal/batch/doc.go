// Package batch starts families from a cluster statistics file.
//
// Each line of the statistics file describes one sequence cluster, its
// representative in the first tab-separated column. Line N becomes family
// Pfam-M_%06d(N). Run claims the selected lines, builds their seed
// alignments, launches lift-over, queues them for the coordinator, and
// appends the family to cluster mapping to the names file.
package batch
