package server

import (
	"strings"

	"github.com/patiee/giftstorage/frame"
	"github.com/patiee/giftstorage/server/model"
)

const inputPlaceholder = "Enter a username"

func (s *Service) url(path string) string {
	return strings.TrimRight(s.config.PublicURL, "/") + path
}

func textInput() model.Intent {
	return model.Intent{Kind: model.IntentTextInput, Label: inputPlaceholder}
}

func button(label string, action model.ButtonAction, target string) model.Intent {
	return model.Intent{Kind: model.IntentButton, Label: label, Action: action, Target: target}
}

// Render picks the image and intents for the result's phase. Transaction
// actions appear only once a tx exists; the text input only before.
func (s *Service) Render(res frame.Result, token string) model.Frame {
	st := res.State
	f := model.Frame{State: token}

	switch res.Phase {
	case frame.PhaseFound:
		f.Image.Card = &model.Card{
			Title:     st.User.DisplayName,
			Lines:     []string{"Give storage to @" + st.User.Handle + "?"},
			AvatarURL: st.User.AvatarURL,
		}
		give := button("🎁 Give Storage", model.ButtonTx, s.url("/rent"))
		give.PostURL = s.url("/refresh")
		f.Intents = []model.Intent{
			button("⬅️ Back", model.ButtonReset, s.url("/")),
			give,
		}
		f.PostURL = s.url("/refresh")

	case frame.PhaseNotFound:
		f.Image.Card = &model.Card{Title: "Username not found."}
		f.Intents = []model.Intent{
			textInput(),
			button("🔍 Try again", model.ButtonPost, s.url("/find?value=find")),
		}
		f.PostURL = s.url("/find")

	case frame.PhaseSubmitted:
		f.Image.Card = &model.Card{
			Title: "Broadcasting transaction…",
			Lines: []string{
				"Your gift to @" + st.User.Handle + " is on its way.",
				"Refresh to check for confirmation.",
			},
		}
		f.Intents = []model.Intent{
			button("🔄 Refresh", model.ButtonPost, s.url("/refresh")),
			button("🔗 View transaction", model.ButtonLink, s.TxDetailURL(st.Tx())),
		}
		f.PostURL = s.url("/refresh")

	case frame.PhaseConfirmed:
		f.Image.URL = s.TxCardURL(st.Tx())
		f.Intents = []model.Intent{
			button("🔗 View transaction", model.ButtonLink, s.TxDetailURL(st.Tx())),
		}
		f.PostURL = s.url("/refresh")

	default:
		f.Image.Card = &model.Card{
			Title: "🎁 Give storage to a friend!",
			Lines: []string{
				"Enter a username below to give 1 storage unit to a friend.",
				"You'll need about $3 of ETH on Optimism.",
			},
		}
		f.Intents = []model.Intent{
			textInput(),
			button("🔍 Find user", model.ButtonPost, s.url("/find?value=find")),
		}
		f.PostURL = s.url("/find")
	}
	return f
}
