// Package model defines the data structures shared across the serving ledger:
// per-(user, provider) accounts with their refund slots and deliverables,
// provider service descriptors for each serving variant, user ledgers, and
// the signed settlement inputs consumed by the settlement engines. It also
// declares the error values common to the whole module.
package model
