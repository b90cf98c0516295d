package geoquest

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/minus-twelve/geoquest/token"
)

const (
	tokenContextKey     = "geoquest.token"
	requestIDContextKey = "geoquest.request_id"

	limiterIdleTTL = 5 * time.Minute
)

// Server exposes a Challenge over HTTP.
type Server struct {
	challenge      *Challenge
	rateLimiter    *RateLimiter
	trustedProxies []net.IPNet
	logger         *slog.Logger
	engine         *gin.Engine
}

type verifyRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"required,min=-180,max=180"`
}

func NewServer(challenge *Challenge, security SecurityConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	trustedNetworks := make([]net.IPNet, 0, len(security.TrustedProxies))
	for _, proxy := range security.TrustedProxies {
		proxy = strings.TrimSpace(proxy)
		_, ipnet, err := net.ParseCIDR(proxy)
		if err != nil {
			ip := net.ParseIP(proxy)
			if ip == nil {
				logger.Warn("ignoring invalid trusted proxy", "proxy", proxy)
				continue
			}
			mask := net.IPv4Mask(255, 255, 255, 255)
			if ip.To4() == nil {
				mask = net.CIDRMask(128, 128)
			}
			ipnet = &net.IPNet{IP: ip, Mask: mask}
		}
		trustedNetworks = append(trustedNetworks, *ipnet)
	}

	s := &Server{
		challenge:      challenge,
		trustedProxies: trustedNetworks,
		logger:         logger,
	}
	if security.RateLimitRPS > 0 {
		s.rateLimiter = NewRateLimiter(security.RateLimitRPS, security.RateLimitBurst)
	}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(s.recovery(), requestID(), s.requestLogger(), cors())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", s.RateLimitMiddleware())
	api.POST("/start-challenge", s.startChallenge)

	authed := api.Group("", s.AuthMiddleware())
	authed.GET("/challenge-status", s.challengeStatus)
	authed.POST("/verify-location", s.verifyLocation)

	return r
}

func (s *Server) startChallenge(c *gin.Context) {
	result, err := s.challenge.Start(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) challengeStatus(c *gin.Context) {
	result, err := s.challenge.Status(c.Request.Context(), c.GetString(tokenContextKey))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) verifyLocation(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortWithError(c, wrapError(CodeInvalidInput, "latitude and longitude are required and must be valid coordinates", err))
		return
	}

	result, err := s.challenge.Verify(c.Request.Context(), c.GetString(tokenContextKey), *req.Latitude, *req.Longitude)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AuthMiddleware requires an Authorization: Bearer header and stores the
// token for the handler. Signature checks happen in the Challenge.
func (s *Server) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := token.BearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			s.abortWithError(c, newError(CodeTokenMissing, "Access token required"))
			return
		}
		c.Set(tokenContextKey, raw)
		c.Next()
	}
}

func (s *Server) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.rateLimiter == nil {
			c.Next()
			return
		}
		ip := s.GetClientIP(c.Request)
		if !s.rateLimiter.Allow(ip) {
			s.abortWithError(c, newError(CodeRateLimited, "rate limit exceeded"))
			return
		}
		c.Next()
	}
}

// GetClientIP returns the peer address, or the first X-Forwarded-For entry
// when the peer is a trusted proxy.
func (s *Server) GetClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return ip
	}
	peer := net.ParseIP(ip)
	if peer == nil {
		return ip
	}
	for _, trusted := range s.trustedProxies {
		if trusted.Contains(peer) {
			if ips := splitIPs(forwarded); len(ips) > 0 && ips[0] != "" {
				return ips[0]
			}
		}
	}
	return ip
}

// RunLimiterCleanup prunes idle rate limiter entries until ctx is done.
func (s *Server) RunLimiterCleanup(ctx context.Context) {
	if s.rateLimiter == nil {
		return
	}
	ticker := time.NewTicker(limiterIdleTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.rateLimiter.Prune(limiterIdleTTL)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) abortWithError(c *gin.Context, err error) {
	code := ErrorCode(err)
	status := code.HTTPStatus()

	message := "internal server error"
	var coded *Error
	if errors.As(err, &coded) {
		message = coded.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", c.Request.URL.Path,
			"code", code,
			"error", err,
			"request_id", c.GetString(requestIDContextKey),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": CodeInternal})
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDContextKey),
			"client_ip", s.GetClientIP(c.Request),
		)
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.New().String()[:8]
		c.Set(requestIDContextKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// cors allows any origin and answers preflight requests directly.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func splitIPs(forwarded string) []string {
	ips := strings.Split(forwarded, ",")
	for i := range ips {
		ips[i] = strings.TrimSpace(ips[i])
	}
	return ips
}
