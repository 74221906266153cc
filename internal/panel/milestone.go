package panel

import "strings"

// DefaultMilestone is the label for paths outside the filing wizard steps.
const DefaultMilestone = "Get to Know Me"

var milestones = map[string]string{
	"/personal-info":        "Personal Info - You & Your Family",
	"/wages-income":         "Federal Taxes - Wages & Income",
	"/deductions-credits":   "Federal Taxes - Deductions & Credits",
	"/other-tax-situations": "Federal Taxes - Other Tax Situations",
	"/prepare-state":        "State Taxes",
	"/your-state-returns":   "Your State Returns",
	"/state-review":         "State Review",
	"/review":               "Final Review",
	"/file":                 "Finish and File",
}

// Milestone maps a navigation path to the label sent to the completion
// service. Query strings, fragments and a trailing slash are ignored.
func Milestone(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if label, ok := milestones[path]; ok {
		return label
	}
	return DefaultMilestone
}
