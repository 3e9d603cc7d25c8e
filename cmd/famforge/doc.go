// Command famforge builds Pfam-M protein families from sequence clusters.
//
// A run reads a cluster statistics file, claims one family directory per
// selected cluster, builds its seed alignment, and launches the lift-over
// job. The drain loops then poll the external jobs, prepare the seed,
// launch the profile build, run post-processing, and file every family under
// its disposition directory. The remaining commands inspect and repair the
// queue, the family directories, and their DESC files.
package main
