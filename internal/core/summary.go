package core

// PassSummary is the aggregate result of one materialization pass.
// Processed counts templates handled without error, whether they produced an
// expense or were only retired past their end date.
type PassSummary struct {
	Processed int
	Errors    int
	Created   int // expenses written to the ledger
	Retired   int // templates deactivated without generating an expense
}

// Total returns the number of due templates the pass attempted.
func (s PassSummary) Total() int {
	return s.Processed + s.Errors
}
