package feishu

import (
	"encoding/json"

	"github.com/memohai/replyd/internal/channel"
)

type cardPhase int

const (
	cardOpen cardPhase = iota
	cardClosed
	cardFailed
)

// cardView is the renderable state of one reply card.
type cardView struct {
	think  string
	text   string
	status string
	state  cardPhase
}

func newCardView() cardView { return cardView{} }

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

// render produces interactive card JSON. update_multi is required for PATCH to apply.
func (v cardView) render() (string, error) {
	elements := make([]map[string]any, 0, 3)
	if v.think != "" {
		elements = append(elements, map[string]any{
			"tag": "note",
			"elements": []map[string]any{
				{"tag": "plain_text", "content": v.think},
			},
		})
	}
	text := v.text
	if text == "" && v.state == cardOpen {
		text = "..."
	}
	if text != "" {
		elements = append(elements, map[string]any{"tag": "markdown", "content": text})
	}
	if v.status != "" {
		elements = append(elements, map[string]any{
			"tag": "note",
			"elements": []map[string]any{
				{"tag": "plain_text", "content": v.status},
			},
		})
	}
	card := map[string]any{
		"config":   map[string]any{"wide_screen_mode": true, "update_multi": true},
		"elements": elements,
	}
	if v.state == cardFailed {
		card["header"] = map[string]any{
			"template": "red",
			"title":    map[string]any{"tag": "plain_text", "content": "Reply failed"},
		}
	}
	b, err := json.Marshal(card)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
