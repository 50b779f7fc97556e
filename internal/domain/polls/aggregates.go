package polls

import domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"

const (
	AggregateTotalScore   = "poll.total_score"
	AggregateVotesCount   = "poll.votes_count"
	AggregateAverageScore = "poll.average_score"
)

func Aggregates() []domainagg.Definition {
	return []domainagg.Definition{
		{
			Name:         AggregateTotalScore,
			ParentTable:  "poll",
			TargetColumn: "total_score",
			ChildTable:   "poll_item",
			ForeignKey:   "poll_id",
			Function:     domainagg.FunctionSum,
			Expression:   "score",
		},
		{
			Name:         AggregateVotesCount,
			ParentTable:  "poll",
			TargetColumn: "votes_count",
			ChildTable:   "poll_item",
			ForeignKey:   "poll_id",
			Function:     domainagg.FunctionCount,
		},
		{
			Name:         AggregateAverageScore,
			ParentTable:  "poll",
			TargetColumn: "average_score",
			ChildTable:   "poll_item",
			ForeignKey:   "poll_id",
			Function:     domainagg.FunctionAvg,
			Expression:   "score",
		},
	}
}
