package server

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patiee/giftstorage/frame"
	"github.com/patiee/giftstorage/server/model"
)

func alice() *frame.Profile {
	return &frame.Profile{ID: big.NewInt(12345), Handle: "alice", DisplayName: "Alice", AvatarURL: "https://img.test/alice.png"}
}

func TestScenarioFindSucceeds(t *testing.T) {
	f := newFixture(t)

	res := f.service.Advance(context.Background(), frame.State{}, frame.Input{Action: frame.ActionFind, Handle: "alice"})

	require.NotNil(t, res.State.User)
	assert.Equal(t, "12345", res.State.User.ID.String())
	assert.Nil(t, res.State.TxHash)
	assert.False(t, res.State.Indexed)
	assert.Equal(t, []string{"alice"}, f.dir.handleCalls)
	assert.Equal(t, "3", f.dir.viewers[0].String())

	out := f.service.Render(res, "tok")
	assert.Equal(t, []string{"reset", "tx"}, labels(out.Intents))
	assert.Equal(t, "https://frame.test/rent", out.Intents[1].Target)
	assert.Equal(t, "https://frame.test/refresh", out.Intents[1].PostURL)
	assert.Equal(t, "https://img.test/alice.png", out.Image.Card.AvatarURL)
}

func TestScenarioFindFails(t *testing.T) {
	f := newFixture(t)

	res := f.service.Advance(context.Background(), frame.State{}, frame.Input{Action: frame.ActionFind, Handle: "nosuchuser"})

	assert.Equal(t, frame.State{}, res.State)
	assert.Equal(t, frame.PhaseNotFound, res.Phase)

	out := f.service.Render(res, "tok")
	assert.Equal(t, []string{"text_input", "post"}, labels(out.Intents))
	assert.Equal(t, "🔍 Try again", out.Intents[1].Label)
	assert.Equal(t, "Username not found.", out.Image.Card.Title)
}

func TestFindServiceErrorLooksLikeNotFound(t *testing.T) {
	f := newFixture(t)
	f.dir.err = errBoom

	res := f.service.Advance(context.Background(), frame.State{}, frame.Input{Action: frame.ActionFind, Handle: "alice"})
	assert.Equal(t, frame.PhaseNotFound, res.Phase)
	assert.Nil(t, res.State.User)
}

func TestFindStripsAt(t *testing.T) {
	f := newFixture(t)
	res := f.service.Advance(context.Background(), frame.State{}, frame.Input{Action: frame.ActionFind, Handle: " @alice"})
	assert.Equal(t, frame.PhaseFound, res.Phase)
	assert.Equal(t, []string{"alice"}, f.dir.handleCalls)
}

func TestScenarioSubmit(t *testing.T) {
	f := newFixture(t)
	prior := frame.State{User: alice()}

	res := f.service.Advance(context.Background(), prior, frame.Input{Action: frame.ActionSubmit, TxID: txHash, RequesterFID: big.NewInt(3)})

	assert.Equal(t, txHash, res.State.Tx())
	assert.False(t, res.State.Indexed)
	require.NotNil(t, res.State.Giver)
	assert.Equal(t, "dwr", res.State.Giver.Handle)
	assert.Equal(t, []string{"3"}, f.dir.fidCalls)
	assert.Empty(t, f.poller.calls)

	out := f.service.Render(res, "tok")
	assert.Equal(t, []string{"post", "link"}, labels(out.Intents))
	assert.Equal(t, "https://frame.test/refresh", out.Intents[0].Target)
	assert.Equal(t, "https://www.onceupon.gg/"+txHash, out.Intents[1].Target)
	require.NotNil(t, out.Image.Card)
	assert.Contains(t, out.Image.Card.Title, "Broadcasting")
}

func TestFindFailureWithRecipientRendersNotFound(t *testing.T) {
	f := newFixture(t)
	prior := frame.State{User: alice()}

	res := f.service.Advance(context.Background(), prior, frame.Input{Action: frame.ActionFind, Handle: "nosuchuser"})
	assert.Equal(t, prior, res.State)
	assert.Equal(t, frame.PhaseNotFound, res.Phase)

	out := f.service.Render(res, "tok")
	assert.Equal(t, []string{"text_input", "post"}, labels(out.Intents))
	assert.Equal(t, "Username not found.", out.Image.Card.Title)
}

func TestVerifyAction(t *testing.T) {
	f := newFixture(t)

	fid, tx := f.service.VerifyAction(context.Background(), signedByDwr)
	assert.Equal(t, "3", fid.String())
	assert.Empty(t, tx)

	fid, _ = f.service.VerifyAction(context.Background(), "deadbeef")
	assert.Nil(t, fid)

	fid, _ = f.service.VerifyAction(context.Background(), "")
	assert.Nil(t, fid)
	assert.Equal(t, []string{signedByDwr, "deadbeef"}, f.validator.calls)
}

func TestVerifyActionWithoutValidator(t *testing.T) {
	f := newFixture(t)
	svc := NewService(testConfig(), f.service.logger, f.dir, nil, f.poller, f.registry, f.ann)

	fid, tx := svc.VerifyAction(context.Background(), signedByDwr)
	assert.Nil(t, fid)
	assert.Empty(t, tx)
}

func TestSubmitGiverLookupFailureStillSubmits(t *testing.T) {
	f := newFixture(t)
	res := f.service.Advance(context.Background(), frame.State{User: alice()}, frame.Input{Action: frame.ActionSubmit, TxID: txHash, RequesterFID: big.NewInt(99)})
	assert.Equal(t, txHash, res.State.Tx())
	assert.Nil(t, res.State.Giver)
}

func TestScenarioRefreshConfirms(t *testing.T) {
	f := newFixture(t)
	f.poller.indexed = true
	prior := frame.State{User: alice(), Giver: &frame.Profile{ID: big.NewInt(3), Handle: "dwr"}, TxHash: strp(txHash)}

	res := f.service.Advance(context.Background(), prior, frame.Input{Action: frame.ActionRefresh})

	assert.True(t, res.State.Indexed)
	assert.True(t, res.Confirmed)
	assert.Equal(t, []string{txHash}, f.poller.calls)

	out := f.service.Render(res, "tok")
	assert.Equal(t, "https://og.onceupon.gg/card/"+txHash, out.Image.URL)
	assert.Nil(t, out.Image.Card)

	require.Len(t, f.ann.texts, 1)
	assert.Equal(t, "@dwr gave @alice a unit of Farcaster storage 🎁", f.ann.texts[0])
	assert.Equal(t, []string{"https://www.onceupon.gg/"+txHash}, f.ann.embeds[0])
}

func TestRefreshNotYetIndexed(t *testing.T) {
	f := newFixture(t)
	prior := frame.State{User: alice(), TxHash: strp(txHash)}

	res := f.service.Advance(context.Background(), prior, frame.Input{Action: frame.ActionRefresh})
	assert.False(t, res.State.Indexed)
	assert.Equal(t, frame.PhaseSubmitted, res.Phase)
	assert.Empty(t, f.ann.texts)

	f.poller.indexed, f.poller.err = true, errBoom
	res = f.service.Advance(context.Background(), prior, frame.Input{Action: frame.ActionRefresh})
	assert.False(t, res.State.Indexed)
}

func TestScenarioRefreshWhenConfirmed(t *testing.T) {
	f := newFixture(t)
	prior := frame.State{User: alice(), TxHash: strp(txHash), Indexed: true}

	res := f.service.Advance(context.Background(), prior, frame.Input{Action: frame.ActionRefresh})

	assert.Equal(t, prior, res.State)
	assert.Empty(t, f.poller.calls)
	assert.Empty(t, f.ann.texts)
	assert.Equal(t, "https://og.onceupon.gg/card/"+txHash, f.service.Render(res, "tok").Image.URL)
}

func TestAnnouncementFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.poller.indexed = true
	f.ann.err = errBoom

	res := f.service.Advance(context.Background(), frame.State{User: alice(), TxHash: strp(txHash)}, frame.Input{Action: frame.ActionRefresh})
	assert.True(t, res.State.Indexed)
	assert.Len(t, f.ann.texts, 1)
}

func TestNoAnnouncementWithoutSigner(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.NeynarSignerUUID = "" })
	f.poller.indexed = true

	f.service.Advance(context.Background(), frame.State{User: alice(), TxHash: strp(txHash)}, frame.Input{Action: frame.ActionRefresh})
	assert.Empty(t, f.ann.texts)
	assert.Equal(t, "Someone gave @alice a unit of Farcaster storage 🎁", announcementText(frame.State{User: alice()}))
}

func TestRenderNeverMixesInputAndTxActions(t *testing.T) {
	f := newFixture(t)
	results := []frame.Result{
		{State: frame.State{}, Phase: frame.PhaseIdle},
		{State: frame.State{}, Phase: frame.PhaseNotFound},
		{State: frame.State{User: alice()}, Phase: frame.PhaseFound},
		{State: frame.State{User: alice(), TxHash: strp(txHash)}, Phase: frame.PhaseSubmitted},
		{State: frame.State{User: alice(), TxHash: strp(txHash), Indexed: true}, Phase: frame.PhaseConfirmed},
	}

	for _, res := range results {
		out := f.service.Render(res, "tok")
		for _, in := range out.Intents {
			if res.State.HasTx() {
				assert.NotEqual(t, model.IntentTextInput, in.Kind, res.Phase.String())
				assert.NotEqual(t, model.ButtonTx, in.Action, res.Phase.String())
			} else {
				assert.NotEqual(t, model.ButtonLink, in.Action, res.Phase.String())
				assert.NotContains(t, in.Target, "/refresh", res.Phase.String())
			}
		}
	}
}

func TestBuildRentRequiresRecipient(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.BuildRent(context.Background(), frame.State{})
	assert.ErrorIs(t, err, ErrNoRecipient)

	call, err := f.service.BuildRent(context.Background(), frame.State{User: alice()})
	require.NoError(t, err)
	assert.Equal(t, "12345", call.Args[0].String())
	assert.Equal(t, "1", call.Args[1].String())
}

func TestInvalidViewerFIDIgnored(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.ViewerFID = "abc" })
	f.service.Advance(context.Background(), frame.State{}, frame.Input{Action: frame.ActionFind, Handle: "alice"})
	require.Len(t, f.dir.viewers, 1)
	assert.Nil(t, f.dir.viewers[0])
}
