package paginator

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

const customIDPrefix = "pager:"

// Action is a navigation button.
type Action int

const (
	First Action = iota
	Previous
	Next
	Last
)

var actions = []Action{First, Previous, Next, Last}

func (a Action) String() string {
	switch a {
	case First:
		return "first"
	case Previous:
		return "prev"
	case Next:
		return "next"
	case Last:
		return "last"
	default:
		return "unknown"
	}
}

// CustomID is the component custom_id carried by the action's button.
func (a Action) CustomID() string { return customIDPrefix + a.String() }

func (a Action) label() string {
	switch a {
	case First:
		return "⏮"
	case Previous:
		return "◀"
	case Next:
		return "▶"
	default:
		return "⏭"
	}
}

// ParseAction maps a button custom_id back to its Action.
func ParseAction(customID string) (Action, bool) {
	name, ok := strings.CutPrefix(customID, customIDPrefix)
	if !ok {
		return 0, false
	}
	for _, a := range actions {
		if a.String() == name {
			return a, true
		}
	}
	return 0, false
}

// Navigate returns the page index reached by applying a to current,
// clamped to [0, count-1].
func Navigate(a Action, current, count int) int {
	if count <= 0 {
		return 0
	}
	last := count - 1
	next := current
	switch a {
	case First:
		next = 0
	case Previous:
		next = current - 1
	case Next:
		next = current + 1
	case Last:
		next = last
	}
	return max(0, min(last, next))
}

// Disabled reports whether a's button is disabled on page index of count.
func Disabled(a Action, index, count int) bool {
	switch a {
	case First, Previous:
		return index <= 0
	default:
		return index >= count-1
	}
}

// controls builds the navigation row for page index of count. With all set,
// every button is disabled regardless of position.
func controls(index, count int, all bool) []discordgo.MessageComponent {
	buttons := make([]discordgo.MessageComponent, 0, len(actions))
	for _, a := range actions {
		buttons = append(buttons, discordgo.Button{
			Label:    a.label(),
			Style:    discordgo.SecondaryButton,
			CustomID: a.CustomID(),
			Disabled: all || Disabled(a, index, count),
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}
