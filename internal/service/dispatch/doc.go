// Package dispatch implements the recurring-campaign dispatch engine:
// subscriber eligibility, the safety interlock, content selection,
// composition, and the sequential send loop with idempotent bookkeeping.
//
// The loop is strictly sequential: sends go out one subscriber at a time,
// and each marker write happens-after its confirmed send. Parallelizing it
// would reintroduce the double-send race the markers exist to prevent.
//
// The service depends on repository interfaces defined in this package and
// never imports from api/. Implementations live in repository/postgres/
// and transport/.
package dispatch
