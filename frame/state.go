package frame

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var ErrInvalidState = errors.New("invalid frame state")

// Profile is a directory user. ID is the FID and can exceed 53 bits.
type Profile struct {
	ID          *big.Int `json:"id"`
	Handle      string   `json:"handle"`
	DisplayName string   `json:"displayName"`
	AvatarURL   string   `json:"avatarUrl"`
}

// State is carried between requests inside the signed state token.
type State struct {
	User    *Profile `json:"user,omitempty"`
	Giver   *Profile `json:"giver,omitempty"`
	TxHash  *string  `json:"txHash,omitempty"`
	Indexed bool     `json:"indexed,omitempty"`
}

func (s State) HasTx() bool {
	return s.TxHash != nil && *s.TxHash != ""
}

// ValidTxHash reports whether s is a 0x-prefixed 32-byte hex hash.
func ValidTxHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == common.HashLength
}

// Tx returns the transaction hash or "" when none was submitted.
func (s State) Tx() string {
	if s.TxHash == nil {
		return ""
	}
	return *s.TxHash
}

// Validate checks the invariants a decoded state must satisfy.
func (s State) Validate() error {
	if s.Indexed && !s.HasTx() {
		return errors.Join(ErrInvalidState, errors.New("indexed without transaction"))
	}
	if s.HasTx() && !ValidTxHash(*s.TxHash) {
		return errors.Join(ErrInvalidState, errors.New("malformed transaction hash"))
	}
	if s.HasTx() && s.User == nil {
		return errors.Join(ErrInvalidState, errors.New("transaction without recipient"))
	}
	if s.User != nil && (s.User.ID == nil || s.User.ID.Sign() <= 0) {
		return errors.Join(ErrInvalidState, errors.New("user without fid"))
	}
	if s.Giver != nil && (s.Giver.ID == nil || s.Giver.ID.Sign() <= 0) {
		return errors.Join(ErrInvalidState, errors.New("giver without fid"))
	}
	return nil
}

// Phase is derived from State plus the outcome of the current request.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFound
	PhaseNotFound
	PhaseSubmitted
	PhaseConfirmed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFound:
		return "found"
	case PhaseNotFound:
		return "not_found"
	case PhaseSubmitted:
		return "submitted"
	case PhaseConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// PhaseOf derives the phase. lookupFailed reports whether this request
// attempted a handle lookup that did not resolve.
func PhaseOf(s State, lookupFailed bool) Phase {
	switch {
	case s.HasTx() && s.Indexed:
		return PhaseConfirmed
	case s.HasTx():
		return PhaseSubmitted
	case lookupFailed:
		return PhaseNotFound
	case s.User != nil:
		return PhaseFound
	default:
		return PhaseIdle
	}
}

type Action int

const (
	ActionNone Action = iota
	ActionFind
	ActionReset
	ActionSubmit
	ActionRefresh
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionFind:
		return "find"
	case ActionReset:
		return "reset"
	case ActionSubmit:
		return "submit"
	case ActionRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}
