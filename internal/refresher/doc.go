// Package refresher publishes the items of recurring schedules.
//
// The refresher runs inside the persistent "refresher" item: every time the
// manager leases it, Run walks the [[schedules]] entries, publishes the ones
// whose cron spec is due according to the schedules table, and advances their
// next run. DisableOnBan closes the loop in the other direction by turning off
// a schedule whose item exhausted its attempts.
package refresher
