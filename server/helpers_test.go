package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/patiee/giftstorage/chain"
	"github.com/patiee/giftstorage/frame"
	"github.com/patiee/giftstorage/neynar"
	"github.com/patiee/giftstorage/server/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDirectory struct {
	mu          sync.Mutex
	byHandle    map[string]*frame.Profile
	byFID       map[string]*frame.Profile
	err         error
	handleCalls []string
	fidCalls    []string
	viewers     []*big.Int
}

func (f *fakeDirectory) LookupUserByUsername(_ context.Context, username string, viewerFID *big.Int) (*frame.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handleCalls = append(f.handleCalls, username)
	f.viewers = append(f.viewers, viewerFID)
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.byHandle[username]; ok {
		return p, nil
	}
	return nil, neynar.ErrUserNotFound
}

func (f *fakeDirectory) LookupUserByFID(_ context.Context, fid *big.Int) (*frame.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fidCalls = append(f.fidCalls, fid.String())
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.byFID[fid.String()]; ok {
		return p, nil
	}
	return nil, neynar.ErrUserNotFound
}

type fakeValidator struct {
	actions map[string]*neynar.FrameAction
	calls   []string
}

func (f *fakeValidator) ValidateFrameAction(_ context.Context, messageBytes string) (*neynar.FrameAction, error) {
	f.calls = append(f.calls, messageBytes)
	if a, ok := f.actions[messageBytes]; ok {
		return a, nil
	}
	return nil, neynar.ErrInvalidFrameAction
}

type fakePoller struct {
	indexed bool
	err     error
	calls   []string
}

func (f *fakePoller) Indexed(_ context.Context, txHash string) (bool, error) {
	f.calls = append(f.calls, txHash)
	return f.indexed, f.err
}

type fakeRegistry struct {
	price *big.Int
	err   error
}

func (f *fakeRegistry) BuildRent(_ context.Context, fid, units *big.Int) (*chain.RentCall, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &chain.RentCall{
		ABI:          json.RawMessage(`[]`),
		ChainID:      chain.OptimismChainID,
		FunctionName: "rent",
		Args:         []*big.Int{fid, units},
		To:           common.HexToAddress(chain.StorageRegistryAddress),
		Value:        f.price,
		Data:         []byte{0x01, 0x02},
	}, nil
}

type fakeAnnouncer struct {
	texts  []string
	embeds [][]string
	err    error
}

func (f *fakeAnnouncer) PublishCast(_ context.Context, _ string, text string, embeds ...string) (string, error) {
	f.texts = append(f.texts, text)
	f.embeds = append(f.embeds, embeds)
	return "0xcast", f.err
}

type fixture struct {
	dir       *fakeDirectory
	validator *fakeValidator
	poller    *fakePoller
	registry  *fakeRegistry
	ann       *fakeAnnouncer
	service   *Service
	server    *Server
	router    *gin.Engine
}

func testConfig() Config {
	return Config{
		PublicURL:        "https://frame.test",
		FrameSecret:      "test-secret",
		StateIssuer:      "gift-storage-frame",
		StateTTL:         time.Hour,
		NeynarSignerUUID: "signer-1",
		ViewerFID:        "3",
		TxDetailURL:      "https://www.onceupon.gg",
		TxCardURL:        "https://og.onceupon.gg/card",
	}
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		dir: &fakeDirectory{
			byHandle: map[string]*frame.Profile{
				"alice": {ID: big.NewInt(12345), Handle: "alice", DisplayName: "Alice", AvatarURL: "https://img.test/alice.png"},
			},
			byFID: map[string]*frame.Profile{
				"3": {ID: big.NewInt(3), Handle: "dwr", DisplayName: "Dan"},
			},
		},
		validator: &fakeValidator{
			actions: map[string]*neynar.FrameAction{
				signedByDwr: {InteractorFID: big.NewInt(3)},
			},
		},
		poller:   &fakePoller{},
		registry: &fakeRegistry{price: big.NewInt(2_500_000_000_000_000)},
		ann:      &fakeAnnouncer{},
	}
	f.service = NewService(cfg, logger, f.dir, f.validator, f.poller, f.registry, f.ann)
	f.server = New(logger, f.service, cfg)
	f.router = f.server.Router()
	return f
}

func (f *fixture) post(t *testing.T, path string, ud model.UntrustedData) *httptest.ResponseRecorder {
	t.Helper()
	return f.postFrame(t, path, model.FrameRequest{UntrustedData: ud})
}

// postSigned posts ud together with signed frame message bytes.
func (f *fixture) postSigned(t *testing.T, path string, ud model.UntrustedData, messageBytes string) *httptest.ResponseRecorder {
	t.Helper()
	return f.postFrame(t, path, model.FrameRequest{UntrustedData: ud, TrustedData: model.TrustedData{MessageBytes: messageBytes}})
}

func (f *fixture) postFrame(t *testing.T, path string, fr model.FrameRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(fr)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeFrame(t *testing.T, w *httptest.ResponseRecorder) model.Frame {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out model.Frame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (f *fixture) state(t *testing.T, token string) frame.State {
	t.Helper()
	st, err := f.service.DecodeState(token)
	require.NoError(t, err)
	return st
}

func (f *fixture) token(t *testing.T, st frame.State) string {
	t.Helper()
	tok, err := f.service.EncodeState(st)
	require.NoError(t, err)
	return tok
}

func labels(intents []model.Intent) []string {
	out := make([]string, 0, len(intents))
	for _, in := range intents {
		if in.Kind == model.IntentTextInput {
			out = append(out, "text_input")
			continue
		}
		out = append(out, string(in.Action))
	}
	return out
}

var errBoom = errors.New("boom")

const (
	txHash      = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
	signedByDwr = "0a4f0803"
)

func strp(s string) *string { return &s }
