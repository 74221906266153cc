package assistant

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/taxassist-go/internal/chat"
	"github.com/comigor/taxassist-go/internal/history"
)

const defaultSystemPrompt = `You are a knowledgeable, friendly tax assistant embedded in a tax filing wizard. You know US federal and state tax law and IRS rules.

Open every reply with a short, warm sentence that restates what the user asked ("I'll help you understand..."), then a line break, then a thorough answer tailored to where the user is in their return. Anticipate the obvious follow-up questions.

You can:
1. Answer tax questions using the user's current context.
2. Send the user to the right section of their return with route quick actions.
3. Walk through tax calculations.
4. Offer proactive tips for the step they are on.
5. Explain tax concepts in plain language.

Routes you may suggest:
- /personal-info: personal and family information
- /wages-income: W-2s, 1099s and other income
- /deductions-credits: deductions and credits
- /other-tax-situations: self-employment, investments and other special cases
- /prepare-state: start the state return
- /your-state-returns: review state returns
- /state-review: final state review
- /review: federal and state review
- /file: file the return

Reply with a single JSON object and nothing else:
{
  "response_type": "answer|navigation|calculation|guidance",
  "message": {"text": "conversational reply", "confidence": "high|medium|low"},
  "quick_actions": [{"type": "route|calculator|info", "label": "button text", "action": "/route or tool name", "context": "why it helps"}],
  "personalization": {"user_context": "current milestone", "relevant_forms": ["Form 1040"], "progress_hint": "next step"},
  "references": [{"type": "irs_form|publication|tax_code", "code": "Form 1040, Pub 501, IRC Section XXX", "description": "short description"}]
}`

// systemPrompt joins the base prompt, prompts discovered from MCP servers and
// the user's current milestone.
func (s *Service) systemPrompt(userContext string) string {
	base := s.defaultSystemPrompt
	if s.cfg.SystemPrompt != "" {
		base = s.cfg.SystemPrompt
	}

	var b strings.Builder
	b.WriteString(base)
	for _, p := range s.tools.prompts {
		b.WriteString("\n\n")
		b.WriteString(p)
	}
	if userContext == "" {
		userContext = chat.UnknownContext
	}
	fmt.Fprintf(&b, "\n\nCurrent user context: %s", userContext)
	return b.String()
}

// conversation converts stored rows, oldest first, into chat messages.
func conversation(rows []history.Row) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(rows))
	for _, r := range rows {
		role := openai.ChatMessageRoleUser
		if r.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		text := chat.PayloadText(r.Message)
		if text == "" {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: text})
	}
	return out
}

// chronological reverses rows fetched newest first.
func chronological(rows []history.Row) []history.Row {
	out := slices.Clone(rows)
	slices.Reverse(out)
	return out
}
