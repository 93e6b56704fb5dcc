// Package rules defines the playback rule table consumed by the completion
// evaluator.
//
// A Table is pure data. It is validated once at startup (New, LoadFile) and
// never mutated afterwards. Rule files are authored in CUE and unified with
// an embedded schema that supplies defaults and range constraints:
//
//	rules: {
//		completion_threshold_pct: 90
//		forward_seek_penalty_pct: 0.1
//		rate_penalties: [
//			{threshold: 1.25, penalty: 0.05},
//			{threshold: 2.0, penalty: 0.15},
//		]
//	}
//
// Fast playback is handled by exactly one policy: either award_on_fast_rate
// is false (sessions above 1.0x are disqualified) or the rate penalty table
// is consulted. Tables that enable both are rejected.
package rules
