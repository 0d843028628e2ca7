package server

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/patiee/giftstorage/chain"
	"github.com/patiee/giftstorage/frame"
	"github.com/patiee/giftstorage/indexer"
	"github.com/patiee/giftstorage/neynar"
	"github.com/patiee/giftstorage/server/model"
)

// Directory resolves Farcaster profiles.
type Directory interface {
	LookupUserByUsername(ctx context.Context, username string, viewerFID *big.Int) (*frame.Profile, error)
	LookupUserByFID(ctx context.Context, fid *big.Int) (*frame.Profile, error)
}

// Validator verifies signed frame messages.
type Validator interface {
	ValidateFrameAction(ctx context.Context, messageBytes string) (*neynar.FrameAction, error)
}

// Announcer publishes a public cast.
type Announcer interface {
	PublishCast(ctx context.Context, signerUUID, text string, embeds ...string) (string, error)
}

// RentBuilder builds the unsigned StorageRegistry rent call.
type RentBuilder interface {
	BuildRent(ctx context.Context, fid, units *big.Int) (*chain.RentCall, error)
}

type Service struct {
	config    Config
	logger    *logrus.Logger
	directory Directory
	validator Validator
	poller    indexer.Poller
	registry  RentBuilder
	announcer Announcer
	viewerFID *big.Int
	now       func() time.Time

	clients     map[string]map[*websocket.Conn]*widget // recipient FID -> conns
	connsToUser map[*websocket.Conn]string
	clientsMu   sync.Mutex
}

// widget serializes writes to one connection.
type widget struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewService(config Config, logger *logrus.Logger, directory Directory, validator Validator, poller indexer.Poller, registry RentBuilder, announcer Announcer) *Service {
	var viewer *big.Int
	if config.ViewerFID != "" {
		if v, ok := new(big.Int).SetString(config.ViewerFID, 10); ok {
			viewer = v
		} else {
			logger.Printf("Ignoring invalid DIRECTORY_VIEWER_FID %q", config.ViewerFID)
		}
	}
	return &Service{
		config:      config,
		logger:      logger,
		directory:   directory,
		validator:   validator,
		poller:      poller,
		registry:    registry,
		announcer:   announcer,
		viewerFID:   viewer,
		now:         time.Now,
		clients:     make(map[string]map[*websocket.Conn]*widget),
		connsToUser: make(map[*websocket.Conn]string),
	}
}

// Advance runs the single effect the request needs, then applies the
// transition. Lookup and poll failures are logged and folded in as
// negative outcomes.
func (s *Service) Advance(ctx context.Context, prior frame.State, in frame.Input) frame.Result {
	var fx frame.Effects
	effect := frame.Plan(prior, in)

	switch effect {
	case frame.EffectLookupHandle:
		handle := frame.NormalizeHandle(in.Handle)
		p, err := s.directory.LookupUserByUsername(ctx, handle, s.viewerFID)
		observeLookup("handle", err)
		if err != nil {
			s.logger.Printf("Lookup of @%s failed: %v", handle, err)
		} else {
			fx.Found = p
		}
	case frame.EffectLookupGiver:
		p, err := s.directory.LookupUserByFID(ctx, in.RequesterFID)
		observeLookup("fid", err)
		if err != nil {
			s.logger.Printf("Lookup of giver fid %s failed: %v", in.RequesterFID, err)
		} else {
			fx.Giver = p
		}
	case frame.EffectPoll:
		ok, err := s.poller.Indexed(ctx, prior.Tx())
		observePoll(ok, err)
		if err != nil {
			s.logger.Printf("Indexer poll for %s failed: %v", prior.Tx(), err)
		}
		fx.Indexed = ok && err == nil
	}

	res := frame.Next(prior, in, fx)
	transitionsTotal.WithLabelValues(in.Action.String(), res.Phase.String()).Inc()

	s.logger.WithFields(logrus.Fields{
		"action": in.Action.String(),
		"effect": effect.String(),
		"phase":  res.Phase.String(),
	}).Debug("frame transition")

	if res.Confirmed {
		s.announce(ctx, res.State)
	}
	return res
}

// BuildRent returns the rent call for the state's recipient.
func (s *Service) BuildRent(ctx context.Context, st frame.State) (*chain.RentCall, error) {
	if st.User == nil {
		return nil, ErrNoRecipient
	}
	return s.registry.BuildRent(ctx, st.User.ID, big.NewInt(rentUnits))
}

// VerifyAction validates the signed frame message and returns the verified
// requester FID and the transaction hash it reports. Both are empty when the
// message is missing, fails validation or no validator is configured.
func (s *Service) VerifyAction(ctx context.Context, messageBytes string) (*big.Int, string) {
	if s.validator == nil || messageBytes == "" {
		return nil, ""
	}
	action, err := s.validator.ValidateFrameAction(ctx, messageBytes)
	observeLookup("validate", err)
	if err != nil {
		s.logger.Printf("Frame action validation failed: %v", err)
		return nil, ""
	}
	return action.InteractorFID, action.TxHash
}

func (s *Service) TxDetailURL(txHash string) string {
	return strings.TrimRight(s.config.TxDetailURL, "/") + "/" + txHash
}

func (s *Service) TxCardURL(txHash string) string {
	return strings.TrimRight(s.config.TxCardURL, "/") + "/" + txHash
}

// announce fires once, on the request that confirmed the gift.
func (s *Service) announce(ctx context.Context, st frame.State) {
	txHash := st.Tx()
	detail := s.TxDetailURL(txHash)

	s.NotifyWidgets(model.GiftNotification{
		Type:        "GIFT",
		RecipientID: st.User.ID.String(),
		Recipient:   st.User.Handle,
		Giver:       handleOf(st.Giver),
		TxHash:      txHash,
		DetailURL:   detail,
	})

	if s.announcer == nil || s.config.NeynarSignerUUID == "" {
		return
	}

	text := announcementText(st)
	hash, err := s.announcer.PublishCast(ctx, s.config.NeynarSignerUUID, text, detail)
	if err != nil {
		announcementsTotal.WithLabelValues("error").Inc()
		s.logger.Printf("Failed to announce gift %s: %v", txHash, err)
		return
	}
	announcementsTotal.WithLabelValues("ok").Inc()
	s.logger.Printf("Announced gift %s in cast %s", txHash, hash)
}

func announcementText(st frame.State) string {
	giver := "Someone"
	if h := handleOf(st.Giver); h != "" {
		giver = "@" + h
	}
	return fmt.Sprintf("%s gave @%s a unit of Farcaster storage 🎁", giver, st.User.Handle)
}

func handleOf(p *frame.Profile) string {
	if p == nil {
		return ""
	}
	return p.Handle
}

func (s *Service) RegisterClient(conn *websocket.Conn, fid string) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if s.clients[fid] == nil {
		s.clients[fid] = make(map[*websocket.Conn]*widget)
	}
	s.clients[fid][conn] = &widget{conn: conn}
	s.connsToUser[conn] = fid
}

func (s *Service) UnregisterClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if fid, ok := s.connsToUser[conn]; ok {
		if _, exists := s.clients[fid][conn]; exists {
			delete(s.clients[fid], conn)
			if len(s.clients[fid]) == 0 {
				delete(s.clients, fid)
			}
		}
		delete(s.connsToUser, conn)
		conn.Close()
	}
}

// NotifyWidgets pushes n to every widget watching the recipient. Writes
// happen outside clientsMu so a slow widget only delays itself.
func (s *Service) NotifyWidgets(n model.GiftNotification) {
	s.clientsMu.Lock()
	targets := make([]*widget, 0, len(s.clients[n.RecipientID]))
	for _, w := range s.clients[n.RecipientID] {
		targets = append(targets, w)
	}
	s.clientsMu.Unlock()

	if len(targets) == 0 {
		return
	}
	s.logger.Printf("Broadcasting gift %s to %d widget(s) for fid %s", n.TxHash, len(targets), n.RecipientID)

	for _, w := range targets {
		if err := w.write(n); err != nil {
			s.logger.Printf("WS write error: %v", err)
			s.UnregisterClient(w.conn)
		}
	}
}

func (w *widget) write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (s *Service) widgetCount(fid string) int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients[fid])
}
