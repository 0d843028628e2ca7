package model

import "math/big"

// FrameRequest is the signed frame action body posted by Farcaster clients.
type FrameRequest struct {
	UntrustedData UntrustedData `json:"untrustedData"`
	TrustedData   TrustedData   `json:"trustedData"`
}

type UntrustedData struct {
	FID           *big.Int `json:"fid"`
	URL           string   `json:"url"`
	MessageHash   string   `json:"messageHash"`
	Timestamp     int64    `json:"timestamp"`
	Network       int      `json:"network"`
	ButtonIndex   int      `json:"buttonIndex"`
	InputText     string   `json:"inputText"`
	State         string   `json:"state"`
	TransactionID string   `json:"transactionId"`
	Address       string   `json:"address"`
	CastID        *CastID  `json:"castId,omitempty"`
}

type CastID struct {
	FID  *big.Int `json:"fid"`
	Hash string   `json:"hash"`
}

type TrustedData struct {
	MessageBytes string `json:"messageBytes"`
}
