package models

// PeriodType is the granularity a package's date range is expressed in.
type PeriodType string

const (
	PeriodMonth PeriodType = "month"
	PeriodDay   PeriodType = "day"
)

func (p PeriodType) Valid() bool {
	return p == PeriodMonth || p == PeriodDay
}

// DateRange carries the dates as supplied by the caller. They are parsed
// (and rejected) by the dateformat package, never here.
type DateRange struct {
	StartDate  string     `json:"startDate"`
	EndDate    string     `json:"endDate,omitempty"`
	PeriodType PeriodType `json:"periodType"`
}

// HasEnd reports whether an end date was supplied.
func (d DateRange) HasEnd() bool {
	return d.EndDate != ""
}
