package report

// Formatter defines the interface for formatting a Report.
type Formatter interface {
	// Format converts a Report to a formatted string.
	Format(r *Report) string
}

// FormatFunc is a function adapter for the Formatter interface.
type FormatFunc func(r *Report) string

// Format implements the Formatter interface.
func (f FormatFunc) Format(r *Report) string {
	return f(r)
}
