package aggregates

import "time"

// Change reports a committed write of an aggregate column. Trigger names the write
// behind it, e.g. "row:poll_item:insert"; RequestID is set for admin API calls.
type Change struct {
	Definition   string    `json:"definition"`
	ParentTable  string    `json:"parent_table"`
	TargetColumn string    `json:"target_column"`
	ParentID     string    `json:"parent_id"`
	Old          Value     `json:"old"`
	New          Value     `json:"new"`
	Trigger      string    `json:"trigger,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	At           time.Time `json:"at"`
}
