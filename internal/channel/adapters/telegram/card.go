package telegram

import (
	"strings"

	"github.com/memohai/replyd/internal/channel"
)

type cardPhase int

const (
	cardOpen cardPhase = iota
	cardClosed
	cardFailed
)

// cardReserve leaves room in the card for the think and status lines around the text.
const cardReserve = 512

// cardView is the renderable state of one reply message.
type cardView struct {
	think  string
	text   string
	status string
	state  cardPhase
}

func (v *cardView) set(region channel.Region, text string) {
	switch region {
	case channel.RegionThink:
		v.think = text
	case channel.RegionText:
		v.text = text
	case channel.RegionStatus:
		v.status = text
	}
}

// render builds the message HTML. While open, an overlong text shows its tail.
func (v cardView) render() string {
	parts := make([]string, 0, 4)
	if v.state == cardFailed {
		parts = append(parts, "<b>Reply failed</b>")
	}
	if v.think != "" && v.state == cardOpen {
		parts = append(parts, "<i>"+escapeHTML(tail(v.think, cardReserve/2))+"</i>")
	}
	text := v.text
	if v.state == cardOpen {
		text = tail(text, maxTextLen-cardReserve)
	}
	switch {
	case strings.TrimSpace(text) != "":
		parts = append(parts, markdownToHTML(text))
	case v.state == cardOpen:
		parts = append(parts, "…")
	}
	if v.status != "" {
		parts = append(parts, "<i>"+escapeHTML(v.status)+"</i>")
	}
	if len(parts) == 0 {
		return "…"
	}
	return strings.Join(parts, "\n\n")
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}
