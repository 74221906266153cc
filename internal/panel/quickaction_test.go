package panel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/taxassist-go/internal/chat"
)

func TestResolveQuickAction(t *testing.T) {
	route := ResolveQuickAction(chat.QuickAction{Type: chat.QuickActionRoute, Label: "Go to deductions", Action: "/deductions-credits"})
	require.Equal(t, Outcome{Navigate: "/deductions-credits"}, route)

	calc := ResolveQuickAction(chat.QuickAction{Type: chat.QuickActionCalculator, Label: "Refund estimator"})
	require.Empty(t, calc.Navigate)
	require.Equal(t, &Notice{Title: "Calculator", Description: "Opening Refund estimator...", Variant: NoticeDefault}, calc.Notice)

	info := ResolveQuickAction(chat.QuickAction{Type: chat.QuickActionInfo, Label: "About 1099", Context: "1099 forms report non-wage income."})
	require.Equal(t, &Notice{Title: "Information", Description: "1099 forms report non-wage income.", Variant: NoticeDefault}, info.Notice)

	require.Equal(t, Outcome{}, ResolveQuickAction(chat.QuickAction{Type: "teleport"}))
}
