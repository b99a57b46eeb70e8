// Package market implements the escrow engine at the heart of the
// marketplace:
//
//   - Listing registry: at most one active listing per (collection, token)
//     key, with the listed units held in custody by the escrow account.
//   - Settlement: payment capture, fee/royalty split, proceeds credit,
//     overpay refund, and unit release, atomic as a whole.
//   - Proceeds ledger: pull-payment balances that beneficiaries withdraw
//     explicitly.
//   - Fee policy: an operator-controlled basis-point rate under a hard
//     ceiling.
//
// Concurrency discipline: one operation mutex serializes every mutating
// call end-to-end, call-outs included, so each call owns the whole state
// graph for its duration. A separate state lock covers the short mutation
// windows, keeping read accessors safe at any instant. State is mutated
// before any call-out reaches untrusted code, and every call-out receives a
// marked context so that a callee re-entering a mutating operation is
// rejected with ErrReentrantCall instead of observing partial state.
package market
