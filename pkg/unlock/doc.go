// Package unlock implements the smile unlock state machine:
//
//   - Controller: lock phase, detection schedules, progress accumulation,
//     auto-relock and unlock history
//   - Sampler: the injectable source of simulated smile quality
//   - History: the bounded, newest-first list of unlock sessions
//
// Nothing here looks at images. Quality comes from a Sampler, which is
// random in the daemon and scripted in tests.
package unlock
