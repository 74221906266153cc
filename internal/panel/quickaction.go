package panel

import "github.com/comigor/taxassist-go/internal/chat"

// Outcome is what activating a quick action does on the host.
type Outcome struct {
	Navigate string  `json:"navigate,omitempty"`
	Notice   *Notice `json:"notice,omitempty"`
}

// ResolveQuickAction maps a quick action to its outcome. Unknown types
// resolve to an empty Outcome.
func ResolveQuickAction(qa chat.QuickAction) Outcome {
	switch qa.Type {
	case chat.QuickActionRoute:
		return Outcome{Navigate: qa.Action}
	case chat.QuickActionCalculator:
		return Outcome{Notice: &Notice{
			Title:       "Calculator",
			Description: "Opening " + qa.Label + "...",
			Variant:     NoticeDefault,
		}}
	case chat.QuickActionInfo:
		return Outcome{Notice: &Notice{
			Title:       "Information",
			Description: qa.Context,
			Variant:     NoticeDefault,
		}}
	}
	return Outcome{}
}
