// Package frame holds the gift flow state machine. A request is handled in
// two steps: Plan names the single side effect the request needs, the
// caller performs it, and Next folds the outcome into the next State.
// Neither step touches the network or keeps memory between requests.
package frame

import (
	"math/big"
	"strings"
)

// Input is what a request contributes besides the prior state.
type Input struct {
	Action Action
	// Handle is the raw text typed by the user.
	Handle string
	// TxID accompanies the callback after the client submitted the rent call.
	TxID string
	// RequesterFID is the verified FID of whoever is interacting with the
	// frame. It is nil unless the signed frame message passed validation.
	RequesterFID *big.Int
}

type Effect int

const (
	EffectNone Effect = iota
	EffectLookupHandle
	EffectLookupGiver
	EffectPoll
)

func (e Effect) String() string {
	switch e {
	case EffectLookupHandle:
		return "lookup_handle"
	case EffectLookupGiver:
		return "lookup_giver"
	case EffectPoll:
		return "poll"
	default:
		return "none"
	}
}

// Effects carries side-effect outcomes into Next. A nil profile or a false
// Indexed means the call failed or was not made.
type Effects struct {
	Found   *Profile
	Giver   *Profile
	Indexed bool
}

type Result struct {
	State State
	Phase Phase
	// Confirmed is true only on the request that flipped Indexed.
	Confirmed bool
}

// NormalizeHandle trims whitespace and one leading "@".
func NormalizeHandle(raw string) string {
	h := strings.TrimSpace(raw)
	h = strings.TrimPrefix(h, "@")
	return strings.TrimSpace(h)
}

// Plan returns the one effect the request needs. It never asks for more
// than one directory call or one poll.
func Plan(prior State, in Input) Effect {
	switch in.Action {
	case ActionFind:
		if prior.HasTx() || NormalizeHandle(in.Handle) == "" {
			return EffectNone
		}
		return EffectLookupHandle
	case ActionSubmit:
		if !canSubmit(prior, in) {
			return EffectNone
		}
		if prior.Giver == nil && in.RequesterFID != nil && in.RequesterFID.Sign() > 0 {
			return EffectLookupGiver
		}
	case ActionRefresh:
		if prior.HasTx() && !prior.Indexed {
			return EffectPoll
		}
	}
	return EffectNone
}

// Next applies one transition. prior is not modified.
func Next(prior State, in Input, fx Effects) Result {
	next := prior
	lookupFailed := false
	confirmed := false

	switch in.Action {
	case ActionFind:
		if prior.HasTx() {
			break
		}
		// a failed lookup keeps any earlier recipient but still renders not found
		if fx.Found != nil {
			next.User = fx.Found
		} else {
			lookupFailed = true
		}
	case ActionReset:
		// the recipient is frozen once a transaction exists
		if !prior.HasTx() {
			next.User = nil
			next.Giver = nil
		}
	case ActionSubmit:
		if canSubmit(prior, in) {
			tx := strings.ToLower(in.TxID)
			next.TxHash = &tx
			if next.Giver == nil {
				next.Giver = fx.Giver
			}
		}
	case ActionRefresh:
		if prior.HasTx() && !prior.Indexed && fx.Indexed {
			next.Indexed = true
			confirmed = true
		}
	}

	return Result{
		State:     next,
		Phase:     PhaseOf(next, lookupFailed),
		Confirmed: confirmed,
	}
}

// canSubmit accepts only a well-formed hash; anything else leaves the state
// as it was.
func canSubmit(prior State, in Input) bool {
	return !prior.HasTx() && prior.User != nil && ValidTxHash(in.TxID)
}
