// Package agent talks to LLM reasoning services on behalf of the decision engine.
//
// Invariants:
// - Complete never retries the same profile synchronously; a failed call is
//   reported to the caller, which owns the fallback policy.
// - Profiles are tried in priority order; a failed profile cools down before
//   it is preferred again.
// - Every provider failure surfaces as a *ServiceError.
//
// Usage:
//
//	reasoner, _ := agent.NewReasoner(agent.Config{
//		Profiles: []agent.AuthProfile{{ID: "main", Provider: "anthropic", APIKey: key}},
//		Model:    agent.DefaultModelConfig(),
//	})
//	reply, err := reasoner.Complete(ctx, prompt)
package agent
