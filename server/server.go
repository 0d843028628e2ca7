package server

import (
	"bytes"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/patiee/giftstorage/frame"
	"github.com/patiee/giftstorage/server/model"
)

const (
	rentUnits = 1
	writeWait = 5 * time.Second
)

var ErrNoRecipient = errors.New("no recipient selected")

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	PublicURL   string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	CertFile    string `env:"CERT_FILE"`
	KeyFile     string `env:"KEY_FILE"`
	CORSEnabled bool   `env:"CORS_ENABLED"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	FrameSecret string        `env:"FRAME_SECRET"`
	StateIssuer string        `env:"FRAME_STATE_ISSUER" envDefault:"gift-storage-frame"`
	StateTTL    time.Duration `env:"FRAME_STATE_TTL" envDefault:"24h"`

	NeynarAPIKey     string `env:"NEYNAR_API_KEY"`
	NeynarBaseURL    string `env:"NEYNAR_BASE_URL" envDefault:"https://api.neynar.com"`
	NeynarSignerUUID string `env:"NEYNAR_SIGNER_UUID"`
	ViewerFID        string `env:"DIRECTORY_VIEWER_FID" envDefault:"3"`

	EthRPCURL              string `env:"ETH_RPC_URL" envDefault:"https://mainnet.optimism.io"`
	ChainID                string `env:"CHAIN_ID" envDefault:"eip155:10"`
	StorageRegistryAddress string `env:"STORAGE_REGISTRY_ADDRESS" envDefault:"0x00000000fcCe7f938e7aE6D3c335bD6a1a7c593D"`

	IndexerMode string `env:"INDEXER_MODE" envDefault:"http"` // http or receipt
	IndexerURL  string `env:"INDEXER_URL" envDefault:"https://api.onceupon.gg/v1/transactions"`
	TxDetailURL string `env:"TX_DETAIL_URL" envDefault:"https://www.onceupon.gg"`
	TxCardURL   string `env:"TX_CARD_URL" envDefault:"https://og.onceupon.gg/card"`

	HTTPTimeout        time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	RateLimitPerMinute int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`
}

type Server struct {
	config   Config
	logger   *logrus.Logger
	service  *Service
	limiter  *rateLimiter
	upgrader websocket.Upgrader
}

func New(logger *logrus.Logger, service *Service, config Config) *Server {
	return &Server{
		config:  config,
		logger:  logger,
		service: service,
		limiter: newRateLimiter(config.RateLimitPerMinute),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // gift widgets are embedded on third-party pages
			},
		},
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), instrument())

	config := cors.DefaultConfig()
	if s.config.CORSEnabled {
		s.logger.Println("CORS: Enabling Access-Control-Allow-Origin: *")
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = []string{"http://localhost:3000", "https://warpcast.com"}
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Accept"}
	r.Use(cors.New(config))

	// Frame routes
	r.GET("/", s.HandleEntry)
	r.POST("/", s.HandleEntry)
	r.POST("/find", s.HandleFind)
	r.POST("/rent", s.HandleRent)
	r.POST("/refresh", s.HandleRefresh)

	// Gift feed for widgets
	r.GET("/ws/:fid", s.HandleWS)

	r.GET("/healthz", s.HandleHealthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func (s *Server) Start() {
	r := s.Router()
	port := s.config.Port

	s.logger.Printf("Server starting on :%s", port)
	if s.config.CertFile != "" && s.config.KeyFile != "" {
		s.logger.Printf("Enabling HTTPS with cert: %s", s.config.CertFile)
		if err := r.RunTLS(":"+port, s.config.CertFile, s.config.KeyFile); err != nil {
			s.logger.Fatalf("Failed to start HTTPS server: %v", err)
		}
		return
	}
	if err := r.Run(":" + port); err != nil {
		s.logger.Fatalf("Failed to start server: %v", err)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()

		s.logger.WithFields(logrus.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Info("request")
	}
}

// HandleEntry renders the prompt. GET always starts a fresh flow; POST is
// the reset button and carries the prior state.
func (s *Server) HandleEntry(c *gin.Context) {
	if c.Request.Method == http.MethodGet || c.Request.ContentLength == 0 {
		s.respond(c, frame.State{}, frame.Input{Action: frame.ActionNone})
		return
	}

	req, ok := s.bindFrame(c)
	if !ok {
		return
	}
	prior := s.service.stateOrFresh(req.UntrustedData.State)
	s.respond(c, prior, frame.Input{Action: frame.ActionReset})
}

func (s *Server) HandleFind(c *gin.Context) {
	req, ok := s.bindFrame(c)
	if !ok || !s.allow(c, req) {
		return
	}

	in := frame.Input{Action: frame.ActionNone}
	if c.Query("value") == "find" {
		in.Action = frame.ActionFind
		in.Handle = req.UntrustedData.InputText
	}
	prior := s.service.stateOrFresh(req.UntrustedData.State)
	s.respond(c, prior, in)
}

// HandleRefresh receives both the post-transaction callback (transactionId
// set) and the refresh button. On the callback the giver is taken only from
// the validated frame message, never from untrustedData.fid.
func (s *Server) HandleRefresh(c *gin.Context) {
	req, ok := s.bindFrame(c)
	if !ok || !s.allow(c, req) {
		return
	}

	in := frame.Input{Action: frame.ActionRefresh}
	prior := s.service.stateOrFresh(req.UntrustedData.State)
	if txID := strings.TrimSpace(req.UntrustedData.TransactionID); txID != "" {
		in.Action = frame.ActionSubmit
		in.TxID = txID
		if frame.ValidTxHash(txID) && !prior.HasTx() && prior.User != nil {
			fid, verifiedTx := s.service.VerifyAction(c.Request.Context(), req.TrustedData.MessageBytes)
			in.RequesterFID = fid
			if verifiedTx != "" {
				in.TxID = verifiedTx
			}
		}
	}
	s.respond(c, prior, in)
}

// HandleRent returns the unsigned rent call for the recipient in state.
func (s *Server) HandleRent(c *gin.Context) {
	req, ok := s.bindFrame(c)
	if !ok || !s.allow(c, req) {
		return
	}

	st := s.service.stateOrFresh(req.UntrustedData.State)
	call, err := s.service.BuildRent(c.Request.Context(), st)
	if errors.Is(err, ErrNoRecipient) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "Find a user first"})
		return
	}
	if err != nil {
		s.logger.Printf("Failed to build rent call: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Message: "Could not read storage price"})
		return
	}

	s.logger.Printf("Built rent call for fid %s (value %s)", call.Args[0], call.Value)
	c.JSON(http.StatusOK, model.TxResponse{
		ChainID: call.ChainID,
		Method:  "eth_sendTransaction",
		Params: model.TxParams{
			ABI:   call.ABI,
			To:    call.To.Hex(),
			Data:  hexutil.Encode(call.Data),
			Value: call.Value.String(),
		},
	})
}

func (s *Server) HandleWS(c *gin.Context) {
	fid, ok := new(big.Int).SetString(c.Param("fid"), 10)
	if !ok || fid.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "Invalid fid"})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Printf("Failed to upgrade WS: %v", err)
		return
	}

	s.service.RegisterClient(conn, fid.String())
	s.logger.Printf("New gift widget connected for fid: %s", fid)

	// Keep connection alive until the widget goes away
	go func() {
		defer s.service.UnregisterClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) HandleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) bindFrame(c *gin.Context) (model.FrameRequest, bool) {
	var req model.FrameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Printf("Invalid frame request: %v", err)
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Message: "Invalid frame request"})
		return req, false
	}
	return req, true
}

// allow applies the per-requester limit, keyed by FID or client IP.
func (s *Server) allow(c *gin.Context, req model.FrameRequest) bool {
	key := "ip:" + c.ClientIP()
	if fid := req.UntrustedData.FID; fid != nil && fid.Sign() > 0 {
		key = "fid:" + fid.String()
	}
	if s.limiter.allow(key) {
		return true
	}
	rateLimitHits.WithLabelValues(c.FullPath()).Inc()
	s.logger.Printf("Rate limit exceeded for %s on %s", key, c.FullPath())
	c.JSON(http.StatusTooManyRequests, model.ErrorResponse{Message: "Slow down, try again in a moment"})
	return false
}

func (s *Server) respond(c *gin.Context, prior frame.State, in frame.Input) {
	res := s.service.Advance(c.Request.Context(), prior, in)

	token, err := s.service.EncodeState(res.State)
	if err != nil {
		s.logger.Printf("Failed to encode frame state: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Message: "Something went wrong"})
		return
	}

	f := s.service.Render(res, token)
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.JSON(http.StatusOK, f)
		return
	}

	var buf bytes.Buffer
	if err := writeFrame(&buf, f); err != nil {
		s.logger.Printf("Failed to render frame: %v", err)
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Message: "Something went wrong"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
