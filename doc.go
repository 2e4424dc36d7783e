// Package performance computes the realized performance of brokerage
// portfolios assembled from imperfect sources: transaction histories that
// start after the positions they explain, snapshots of current holdings,
// and price and rate vendors with gaps.
//
// An analysis is a stateless sequence of pure passes:
//   - Match: FIFO matching of entries and exits per position key, with
//     explicit incomplete trades for exits that no lot can absorb.
//   - BuildTimeline: per key quantity history, with synthetic openings for
//     holdings and exits that predate the available history.
//   - ReplayCash: implied cash balance, external flows (authoritative
//     transfers or inferred), suppression of unmatched exits and seeding of
//     synthetic holdings at their broker cost basis.
//   - ComputeNAV: cash plus valued positions at each valuation date.
//   - ModifiedDietz and DailyTWR: monthly returns chain linked into a growth
//     of one unit.
//
// Aggregate runs the analysis per account and recomputes returns on the
// combined capital series. Engine loads the request market data from
// PriceProvider and FXProvider implementations first; see the pricing,
// eodhd and jsonfeed packages.
//
// Data gaps never stop an analysis: they are reported as Warnings in the
// result Diagnostics, and the result is flagged as not Reliable. Only scope
// level impossibilities return a *ScopeError.
package performance
