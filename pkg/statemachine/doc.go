// Package statemachine provides a small, typed transition table for entities
// whose state lives elsewhere (usually a database row).
//
// The table holds no current state. Callers ask it for the next state and
// persist the result themselves, which keeps it safe to share between
// goroutines and usable inside database transactions.
//
//	type Status string
//	type Event string
//
//	var lifecycle = statemachine.MustTable(
//		statemachine.Transition[Status, Event]{From: "draft", Event: "publish", To: "published"},
//		statemachine.Transition[Status, Event]{From: "draft", Event: "discard", To: "discarded"},
//	)
//
//	next, err := lifecycle.Next(post.Status, "publish")
//	if statemachine.IsNoTransitionAvailableError(err) {
//		// the post is not a draft anymore
//	}
package statemachine
