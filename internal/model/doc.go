// Package model defines shared data types used across the escrow engine.
//
// Conventions:
//   - Amounts: uint64 native-currency base units
//   - Rates: uint64 basis points (1/10,000)
//   - Timestamps: int64 microseconds since Unix epoch
//   - Identities: opaque string addresses (sellers, buyers, collections)
package model
