package notion

// Property names of the tasks database. The database schema is owned by
// the user; these names are the contract.
const (
	propTitle     = "Task"
	propDue       = "Due"
	propPlanned   = "Planned?"
	propBreakdown = "Breakdown Needed?"
	propEstimate  = "Estimated mins"
	propNotes     = "Notes"
	propEventIDs  = "Calendar Event IDs"
)

// queryRequest is the body of a database query.
type queryRequest struct {
	Filter   filter `json:"filter"`
	PageSize int    `json:"page_size"`
}

type filter struct {
	And []condition `json:"and"`
}

type condition struct {
	Property string         `json:"property"`
	Checkbox *checkboxCond  `json:"checkbox,omitempty"`
	Date     *dateCondition `json:"date,omitempty"`
}

type checkboxCond struct {
	Equals bool `json:"equals"`
}

type dateCondition struct {
	IsNotEmpty bool `json:"is_not_empty"`
}

// queryResponse is the subset of the query result the client reads.
type queryResponse struct {
	Results []page `json:"results"`
}

type page struct {
	ID         string              `json:"id"`
	Properties map[string]property `json:"properties"`
}

// property is a permissive union over the property kinds the tasks
// database uses. Notion tags each property with its kind; absent kinds
// decode to zero values.
type property struct {
	Title    []richText `json:"title"`
	RichText []richText `json:"rich_text"`
	Number   *float64   `json:"number"`
	Checkbox *bool      `json:"checkbox"`
	Date     *dateValue `json:"date"`
}

type richText struct {
	PlainText string    `json:"plain_text,omitempty"`
	Type      string    `json:"type,omitempty"`
	Text      *textSpan `json:"text,omitempty"`
}

type textSpan struct {
	Content string `json:"content"`
}

type dateValue struct {
	Start string `json:"start"`
}

// updateRequest is the body of a page update.
type updateRequest struct {
	Properties map[string]any `json:"properties"`
}
