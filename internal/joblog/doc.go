// Package joblog classifies the log files written by batch-scheduled
// external stages.
//
// The only signal the scheduler gives is text: a termination block whose
// marker line ("Resource usage summary:") says the job is over, plus lines
// such as "Exited with exit code 1." when it failed. TextWatcher matches
// those lines using the patterns configured for each stage. Callers depend
// on the Watcher interface so another parsing strategy can be plugged in
// per tool.
package joblog
