// Package tourist contains the Tourist bounded context.
//
// Key concepts:
//   - Tourist: aggregate root holding identity fields and an append-only list of WorkItems
//   - WorkItem: one requested ledger operation plus its lifecycle status
//   - Ledger: port to the remote append-only ledger (adapters live in infrastructure/ledger)
//   - Repository: port to the work item store (adapters live in infrastructure/persistence)
//
// WorkItem lifecycle:
//
//	pending --submit_ok--> submitted --finality_ok--> confirmed
//	pending --submit_err--> failed
//	submitted --finality_err--> failed
//
// confirmed and failed are terminal. Short-circuit actions (panic, verify_kyc)
// move from pending straight to confirmed with a synthetic off-chain handle.
package tourist
