package http

import (
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	pulsar "github.com/psyto/pulsar"
	"github.com/psyto/pulsar/ledger"
	"github.com/psyto/pulsar/logger"
	"github.com/psyto/pulsar/risk"
)

// Endpoint prices in human units of the payment token.
var endpointPrices = map[string]string{
	"default":            "0.01",
	"rwa-risk":           "0.05",
	"liquidation-params": "0.10",
}

// RouterConfig wires the HTTP surface.
type RouterConfig struct {
	Verifier *pulsar.PaymentVerifier
	Ledger   ledger.Client
	Gate     GateConfig
	Limiter  *WalletRateLimiter
	Log      logger.Logger
}

type verifyRequest struct {
	Signature      string  `json:"signature" validate:"required"`
	ExpectedAmount string  `json:"expectedAmount" validate:"omitempty"`
	Nonce          *uint64 `json:"nonce" validate:"omitempty"`
}

// server groups handler dependencies.
type server struct {
	verifier *pulsar.PaymentVerifier
	ledger   ledger.Client
	gate     GateConfig
	log      logger.Logger
	validate *validator.Validate
	started  time.Time
}

// NewRouter assembles the gin engine: open payment endpoints plus the gated
// data endpoints behind the auth gate and rate limiter.
func NewRouter(cfg RouterConfig) *gin.Engine {
	s := &server{
		verifier: cfg.Verifier,
		ledger:   cfg.Ledger,
		gate:     cfg.Gate,
		log:      cfg.Log,
		validate: validator.New(),
		started:  time.Now(),
	}
	if s.log == nil {
		s.log = logger.NoopLogger{}
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID())

	r.GET("/health", s.health)

	payment := r.Group("/api/v1/payment")
	payment.GET("/quote", s.quote)
	payment.POST("/verify", s.verify)

	data := r.Group("/api/v1/data")
	data.Use(AuthGate(cfg.Verifier, cfg.Gate))
	if cfg.Limiter != nil {
		data.Use(WalletRateLimit(cfg.Limiter))
	}
	data.GET("/rwa-risk/:tokenMint", s.rwaRisk)
	data.GET("/liquidation-params/:tokenMint", s.liquidationParams)

	return r
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"network":   s.gate.Payment.Network,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// quote advertises the payment requirement for an endpoint and, when the
// ledger is reachable, a recent blockhash the client can build its
// transaction against.
func (s *server) quote(c *gin.Context) {
	endpoint := c.Query("endpoint")
	price, ok := endpointPrices[endpoint]
	if !ok {
		endpoint = "default"
		price = endpointPrices["default"]
	}

	resp := gin.H{
		"endpoint":  endpoint,
		"amount":    price,
		"currency":  s.gate.Payment.Currency,
		"recipient": s.gate.Payment.Recipient,
		"network":   s.gate.Payment.Network,
		"programId": s.gate.Payment.ProgramID,
	}

	if bh, err := s.ledger.GetLatestBlockhash(c.Request.Context()); err == nil {
		resp["recentBlockhash"] = gin.H{
			"hash":                 bh.Hash,
			"lastValidBlockHeight": bh.LastValidBlockHeight,
		}
	} else {
		s.log.Warn("blockhash fetch failed", map[string]any{"error": err.Error()})
	}

	c.JSON(http.StatusOK, resp)
}

// verify checks a payment signature on demand, outside the auth gate.
func (s *server) verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": "malformed request body",
		})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Bad Request",
			"message": err.Error(),
		})
		return
	}

	var expectedAmount *decimal.Decimal
	if req.ExpectedAmount != "" {
		amt, err := decimal.NewFromString(req.ExpectedAmount)
		if err != nil || amt.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Bad Request",
				"message": "expectedAmount must be a non-negative decimal",
			})
			return
		}
		expectedAmount = &amt
	}

	verdict := s.verifier.Verify(c.Request.Context(), req.Signature, expectedAmount, req.Nonce)
	if !verdict.Verified {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"verified": false,
			"reason":   verdict.FailureReason,
			"payment":  s.gate.Payment,
		})
		return
	}

	human := decimal.NewFromBigInt(new(big.Int).SetUint64(verdict.Amount), -s.gate.TokenDecimals)
	c.JSON(http.StatusOK, gin.H{
		"verified":  true,
		"signature": verdict.Signature,
		"payer":     verdict.Payer,
		"amount":    human.String(),
		"nonce":     verdict.Nonce,
		"timestamp": time.Unix(verdict.ObservedAt, 0).UTC().Format(time.RFC3339),
	})
}

func (s *server) rwaRisk(c *gin.Context) {
	tokenMint := c.Param("tokenMint")
	now := time.Now().UTC()

	metrics := risk.DefaultMetrics(tokenMint, now)
	dist := &risk.Distribution{TotalHolders: 1500, Concentration: 0.35}
	score := risk.Score(metrics, dist)

	c.JSON(http.StatusOK, gin.H{
		"tokenMint":    tokenMint,
		"timestamp":    now.Format(time.RFC3339),
		"metrics":      metrics,
		"distribution": dist,
		"riskScore":    score,
		"riskRating":   risk.RatingFromScore(score),
		"requestedBy":  c.GetString(ContextPayer),
	})
}

func (s *server) liquidationParams(c *gin.Context) {
	tokenMint := c.Param("tokenMint")
	now := time.Now().UTC()

	metrics := risk.DefaultMetrics(tokenMint, now)
	dist := &risk.Distribution{TotalHolders: 1500, Concentration: 0.35}
	params := risk.CalculateLiquidationParams(metrics, dist, tokenMint, 0)

	c.JSON(http.StatusOK, gin.H{
		"tokenMint":   tokenMint,
		"timestamp":   now.Format(time.RFC3339),
		"parameters":  params,
		"requestedBy": c.GetString(ContextPayer),
	})
}
