package blog

import domainagg "github.com/yungbote/aggsync/internal/domain/aggregates"

const (
	AggregateCommentsCount         = "post.comments_count"
	AggregateNbComments            = "post.nb_comments"
	AggregateApprovedCommentsCount = "post.approved_comments_count"
)

// Aggregates lists the aggregate columns kept on post.
func Aggregates() []domainagg.Definition {
	return []domainagg.Definition{
		{
			Name:         AggregateCommentsCount,
			ParentTable:  "post",
			TargetColumn: "comments_count",
			ChildTable:   "comment",
			ForeignKey:   "post_id",
			Function:     domainagg.FunctionCount,
		},
		{
			Name:         AggregateNbComments,
			ParentTable:  "post",
			TargetColumn: "nb_comments",
			ChildTable:   "comment",
			ForeignKey:   "post_id",
			Function:     domainagg.FunctionCount,
		},
		{
			Name:         AggregateApprovedCommentsCount,
			ParentTable:  "post",
			TargetColumn: "approved_comments_count",
			ChildTable:   "comment",
			ForeignKey:   "post_id",
			Function:     domainagg.FunctionCount,
			Condition:    "approved = true",
		},
	}
}
