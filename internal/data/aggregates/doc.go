// Package aggregates keeps cached aggregate columns (counts, sums, averages over child
// rows) current on their parent rows.
//
// The Engine owns a Registry of definitions. Its Interceptor is registered as a
// repos.Observer so every child write recomputes the affected parents inside the same
// transaction. Refresh and Verify rebuild or audit a definition across the whole parent
// table.
package aggregates
