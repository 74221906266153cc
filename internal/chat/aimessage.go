package chat

// ResponseType classifies an assistant reply.
type ResponseType string

const (
	ResponseAnswer      ResponseType = "answer"
	ResponseNavigation  ResponseType = "navigation"
	ResponseCalculation ResponseType = "calculation"
	ResponseGuidance    ResponseType = "guidance"
)

// Confidence is the model's self-reported confidence in a reply.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// QuickActionType selects how a quick action is handled by the host.
type QuickActionType string

const (
	QuickActionRoute      QuickActionType = "route"
	QuickActionCalculator QuickActionType = "calculator"
	QuickActionInfo       QuickActionType = "info"
)

// ReferenceType classifies a cited source.
type ReferenceType string

const (
	ReferenceIRSForm     ReferenceType = "irs_form"
	ReferencePublication ReferenceType = "publication"
	ReferenceTaxCode     ReferenceType = "tax_code"
)

// AIMessage is the structured payload returned by the completion service.
type AIMessage struct {
	ResponseType    ResponseType    `json:"response_type"`
	Message         MessageBody     `json:"message"`
	QuickActions    []QuickAction   `json:"quick_actions"`
	Personalization Personalization `json:"personalization"`
	References      []Reference     `json:"references"`
}

type MessageBody struct {
	Text       string     `json:"text"`
	Confidence Confidence `json:"confidence"`
}

// QuickAction is a suggested follow-up. For route actions Action is a path
// the host navigation resolves; otherwise it names a tool.
type QuickAction struct {
	Type    QuickActionType `json:"type"`
	Label   string          `json:"label"`
	Action  string          `json:"action"`
	Context string          `json:"context"`
}

type Personalization struct {
	UserContext   string   `json:"user_context"`
	RelevantForms []string `json:"relevant_forms"`
	ProgressHint  string   `json:"progress_hint"`
}

type Reference struct {
	Type        ReferenceType `json:"type"`
	Code        string        `json:"code"`
	Description string        `json:"description"`
}

func (t ResponseType) valid() bool {
	switch t {
	case ResponseAnswer, ResponseNavigation, ResponseCalculation, ResponseGuidance:
		return true
	}
	return false
}

func (c Confidence) valid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

func (t QuickActionType) valid() bool {
	switch t {
	case QuickActionRoute, QuickActionCalculator, QuickActionInfo:
		return true
	}
	return false
}

func (t ReferenceType) valid() bool {
	switch t {
	case ReferenceIRSForm, ReferencePublication, ReferenceTaxCode:
		return true
	}
	return false
}
