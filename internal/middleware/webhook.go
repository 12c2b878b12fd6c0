package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"go.uber.org/zap"
)

// YooKassaNetworks содержит адреса, с которых ЮKassa отправляет уведомления.
var YooKassaNetworks = []netip.Prefix{
	netip.MustParsePrefix("185.71.76.0/27"),
	netip.MustParsePrefix("185.71.77.0/27"),
	netip.MustParsePrefix("77.75.153.0/25"),
	netip.MustParsePrefix("77.75.156.11/32"),
	netip.MustParsePrefix("77.75.156.35/32"),
	netip.MustParsePrefix("77.75.154.128/25"),
	netip.MustParsePrefix("2a02:5180::/32"),
}

// IPAllowlist пропускает только запросы с адресов из networks.
// Адрес клиента берётся из X-Forwarded-For (первый адрес), X-Real-IP или RemoteAddr.
func IPAllowlist(networks []netip.Prefix, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr, ok := clientAddr(r)
			if !ok || !allowed(networks, addr) {
				logger.Warn("request from disallowed address",
					zap.String("remoteAddr", r.RemoteAddr),
					zap.String("forwardedFor", r.Header.Get("X-Forwarded-For")),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","message":"Недоверенный источник уведомления"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowed(networks []netip.Prefix, addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range networks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func clientAddr(r *http.Request) (netip.Addr, bool) {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr, true
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(realIP)); err == nil {
			return addr, true
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
