package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"net/netip"

	"github.com/go-chi/chi/v5"
)

// RegisterPprof mounts the runtime profiler under /debug/pprof, reachable
// only from the allowed networks. With no usable prefix it stays closed.
func RegisterPprof(r chi.Router, allowedCIDRs []string, logger *slog.Logger) {
	debug := chi.NewRouter()
	debug.Use(IPAllowlist(allowedCIDRs, logger))
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.HandleFunc("/*", pprof.Index)
	r.Mount("/debug/pprof", debug)
}

// IPAllowlist answers 403 unless the peer address falls inside one of the
// prefixes. Forwarding headers are ignored.
func IPAllowlist(cidrs []string, logger *slog.Logger) func(http.Handler) http.Handler {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			logger.Warn("ignoring invalid allowlist entry",
				slog.String("cidr", cidr),
				slog.String("error", err.Error()),
			)
			continue
		}
		prefixes = append(prefixes, p.Masked())
	}

	allowed := func(remote string) bool {
		addr, err := netip.ParseAddrPort(remote)
		var ip netip.Addr
		if err == nil {
			ip = addr.Addr()
		} else if ip, err = netip.ParseAddr(remote); err != nil {
			return false
		}
		ip = ip.Unmap()
		for _, p := range prefixes {
			if p.Contains(ip) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed(r.RemoteAddr) {
				next.ServeHTTP(w, r)
				return
			}
			logger.WarnContext(r.Context(), "debug endpoint denied",
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("path", r.URL.Path),
			)
			writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "debug endpoints are restricted")
		})
	}
}
