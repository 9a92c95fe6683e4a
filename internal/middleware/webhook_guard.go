package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
)

// WebhookGuard gates inbound gateway callbacks on method and source address
type WebhookGuard struct {
	enforceOrigin bool
	allowed       []netip.Prefix
	logger        *slog.Logger
}

// NewWebhookGuard creates a guard. The origin check only runs when enforceOrigin
// is set; entries in allowedIPs are single addresses or CIDR prefixes.
func NewWebhookGuard(enforceOrigin bool, allowedIPs []string, logger *slog.Logger) (*WebhookGuard, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := &WebhookGuard{enforceOrigin: enforceOrigin, logger: logger}
	for _, entry := range allowedIPs {
		prefix, err := parseAllowEntry(entry)
		if err != nil {
			return nil, err
		}
		g.allowed = append(g.allowed, prefix)
	}
	return g, nil
}

func parseAllowEntry(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid allow-list prefix %q: %w", entry, err)
		}
		return prefix.Masked(), nil
	}

	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid allow-list address %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Allowed reports whether ip is on the allow-list
func (g *WebhookGuard) Allowed(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range g.allowed {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Middleware rejects non-POST calls with 405 and, when enforced, callers outside
// the allow-list with 403. It runs before the body is read.
func (g *WebhookGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			g.logger.Warn("webhook rejected: method not allowed",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			c.Header("Allow", http.MethodPost)
			c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{
				"ResultCode": mpesa.ResultRejected,
				"ResultDesc": "Method not allowed",
			})
			return
		}

		if g.enforceOrigin {
			ip := c.ClientIP()
			if !g.Allowed(ip) {
				g.logger.Warn("webhook rejected: address not allowed",
					"ip", ip,
					"path", c.Request.URL.Path,
				)
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"ResultCode": mpesa.ResultRejected,
					"ResultDesc": "Forbidden",
				})
				return
			}
		}

		c.Next()
	}
}
