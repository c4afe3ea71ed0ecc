package platform

// Component types (wire values).
const (
	componentTypeActionRow = 1
	componentTypeButton    = 2
)

// ButtonStyle selects the rendered color of a button.
type ButtonStyle int

// Button styles (wire values).
const (
	ButtonPrimary   ButtonStyle = 1
	ButtonSecondary ButtonStyle = 2
	ButtonSuccess   ButtonStyle = 3
	ButtonDanger    ButtonStyle = 4
)

// Button is an interactive message component. Clicks arrive as
// InteractionCreate events carrying the button's CustomID.
type Button struct {
	Type     int         `json:"type"`
	Style    ButtonStyle `json:"style"`
	Label    string      `json:"label"`
	CustomID string      `json:"custom_id"`
	Disabled bool        `json:"disabled,omitempty"`
}

// ActionRow is a horizontal container of up to five buttons.
type ActionRow struct {
	Type       int      `json:"type"`
	Components []Button `json:"components"`
}

// NewButton builds a button with the wire type field populated.
func NewButton(style ButtonStyle, label, customID string) Button {
	return Button{
		Type:     componentTypeButton,
		Style:    style,
		Label:    label,
		CustomID: customID,
	}
}

// NewActionRow wraps buttons in a row container.
func NewActionRow(buttons ...Button) ActionRow {
	return ActionRow{
		Type:       componentTypeActionRow,
		Components: buttons,
	}
}
