package aggregates

// WriteTxOwnership defines who owns write transaction boundaries.
type WriteTxOwnership string

const (
	// WriteTxOwnedByAggregate means the engine opens its own transaction when the caller
	// has none.
	WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"
	// WriteTxJoinsCaller means writes run inside the caller's transaction.
	WriteTxJoinsCaller WriteTxOwnership = "joins_caller"
)

// ReadPolicy defines how aggregate contracts should expose reads.
type ReadPolicy string

const (
	// ReadPolicyInvariantScoped allows only reads needed to recompute a parent.
	ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"
	// ReadPolicyTableRepoQueries keeps broad queries on table repos.
	ReadPolicyTableRepoQueries ReadPolicy = "table_repo_queries"
)

// Contract describes aggregate-level policy expectations.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Notes            string
}

// Aggregate is the common marker for components that maintain aggregate columns.
type Aggregate interface {
	Contract() Contract
}

// ColumnsContract covers incremental maintenance of cached aggregate columns.
var ColumnsContract = Contract{
	Name:             "aggregate_columns",
	WriteTxOwnership: WriteTxJoinsCaller,
	ReadPolicy:       ReadPolicyInvariantScoped,
	Notes:            "Recomputes run in the child write's transaction; Refresh owns one transaction per batch.",
}

// RequiresAggregateOwnedTx returns true when write transaction ownership is aggregate-owned.
func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}
