// Package family models one candidate protein family and where it lives on
// disk.
//
// Each family owns a working directory under the aligned root. Its lifecycle
// state is an explicit Record persisted as .family.yaml inside that
// directory: the disposition, the current stage, the per-stage attempt
// counters, and any warnings collected along the way. Directory location
// follows the record. Transition rewrites the record first and then moves the
// directory under the disposition's parent (DONE, FAILED, ...), so an
// interrupted move is repaired by Reconcile instead of losing state.
//
// Claim serialises the check-and-create of new family directories across
// concurrent drivers with a file lock in the aligned root.
package family
