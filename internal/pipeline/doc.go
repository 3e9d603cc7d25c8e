// Package pipeline sequences the stages of one family: alignment
// construction, lift-over, seed preparation, profile build, and DESC
// post-processing.
//
// Alignment construction runs synchronously when a family is started. The
// asynchronous stages are advanced one pass at a time by AdvanceLiftover and
// AdvanceBuild, which report whether the caller should re-check later, hand
// the family to the next stage, or stop because the family reached a
// terminal disposition. The queue coordinator and the synchronous single
// family mode (RunSync) share these step functions.
package pipeline
