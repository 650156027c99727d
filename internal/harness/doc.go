// Package harness runs draw scenarios end to end against a real store and
// compares the resulting trace with golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: scenario_name
//	description: "What this scenario shows"
//	pools:
//	  - ../pools/weapons.yaml
//	samples: [0.0, 0.9]
//	flow:
//	  - draw: { pool: weapons, user: alice }
//	    expect: { entry: sword }
//	  - load: ../pools/weapons_v2.yaml
//	  - draw: { pool: weapons, user: alice }
//	    expect: { error: POOL_EXHAUSTED }
//	assertions:
//	  - type: history_order
//	    pool: weapons
//	    user: alice
//	    entries: [bow, sword]
//
// Pool paths are relative to the scenario file. Samples feed the random
// source in order and wrap around; a draw with no eligible entries consumes
// none.
//
// # Assertion Types
//
//   - history_count: the user has exactly Count draws on the pool
//   - history_order: the user's most recent draws, newest first
//   - entry_count: the user drew Entry exactly Count times
//
// # Deterministic Testing
//
// Runs use a step clock, sequential record ids and the scenario's samples,
// so two runs of a scenario produce identical traces.
package harness
