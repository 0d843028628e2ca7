package model

import "encoding/json"

type ButtonAction string

const (
	ButtonPost  ButtonAction = "post"
	ButtonReset ButtonAction = "reset"
	ButtonLink  ButtonAction = "link"
	ButtonTx    ButtonAction = "tx"
)

// Intent is one interactive element of a frame, in display order.
type Intent struct {
	Kind   IntentKind   `json:"kind"`
	Label  string       `json:"label"`
	Action ButtonAction `json:"action,omitempty"`
	Target string       `json:"target,omitempty"`
	// PostURL is where the client reports back after a tx button.
	PostURL string `json:"postUrl,omitempty"`
}

type IntentKind string

const (
	IntentTextInput IntentKind = "text_input"
	IntentButton    IntentKind = "button"
)

// Image is either a hosted URL or a card descriptor rendered locally.
type Image struct {
	URL  string `json:"url,omitempty"`
	Card *Card  `json:"card,omitempty"`
}

type Card struct {
	Title     string   `json:"title"`
	Lines     []string `json:"lines,omitempty"`
	AvatarURL string   `json:"avatarUrl,omitempty"`
}

// Frame is everything needed to answer one frame request.
type Frame struct {
	Image   Image    `json:"image"`
	Intents []Intent `json:"intents"`
	PostURL string   `json:"postUrl"`
	State   string   `json:"state"`
}

// TxResponse is the frame transaction payload returned by the tx target.
type TxResponse struct {
	ChainID string   `json:"chainId"`
	Method  string   `json:"method"`
	Params  TxParams `json:"params"`
}

type TxParams struct {
	ABI   json.RawMessage `json:"abi"`
	To    string          `json:"to"`
	Data  string          `json:"data"`
	Value string          `json:"value"`
}

// GiftNotification is pushed to websocket widgets on confirmation.
type GiftNotification struct {
	Type        string `json:"type"`
	RecipientID string `json:"recipientFid"`
	Recipient   string `json:"recipient"`
	Giver       string `json:"giver,omitempty"`
	TxHash      string `json:"txHash"`
	DetailURL   string `json:"detailUrl"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}
