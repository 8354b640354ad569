package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mintel/lpipe/component"
	"github.com/mintel/lpipe/observability"
	"github.com/mintel/lpipe/route"
	"github.com/mintel/lpipe/transport"
)

// InfrastructureInfo describes a started component.
type InfrastructureInfo struct {
	Name    string
	Type    string // e.g. "server", "kafka", "redis"
	Details string
	Port    int
}

// RouteInfo represents a registered HTTP route.
type RouteInfo struct {
	Method  string
	Path    string
	Handler string
}

// PathInfo describes one routed path of the dispatch table.
type PathInfo struct {
	Path string
	// Level is the depth of the path in the static graph; 0 for entry paths.
	Level    int
	Handlers []string
	Queues   []string
}

// Summary collects what the application started with and renders it as a
// tree.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	infrastructure  []InfrastructureInfo
	routes          []RouteInfo
	transports      []string
	paths           []PathInfo
	levels          int
	fingerprint     string
	health          []observability.Health
}

// NewSummary creates a new bootstrap summary tracker.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// TrackInfrastructure adds an infrastructure component.
func (s *Summary) TrackInfrastructure(name, componentType, details string, port int) {
	s.infrastructure = append(s.infrastructure, InfrastructureInfo{
		Name:    name,
		Type:    componentType,
		Details: details,
		Port:    port,
	})
}

// TrackRoute records an HTTP route.
func (s *Summary) TrackRoute(method, path, handler string) {
	s.routes = append(s.routes, RouteInfo{Method: method, Path: path, Handler: handler})
}

// Collect replaces the tracked state with what registry, router and table
// currently hold, including live component health.
func (s *Summary) Collect(ctx context.Context, registry *component.Registry, router *transport.Router, table *route.Table) {
	s.infrastructure = s.infrastructure[:0]
	s.routes = s.routes[:0]
	s.transports = s.transports[:0]
	s.paths = s.paths[:0]
	s.levels, s.fingerprint = 0, ""
	s.health = nil

	if registry != nil {
		for _, c := range registry.All() {
			if d, ok := c.(component.Describable); ok {
				desc := d.Describe()
				s.TrackInfrastructure(desc.Name, desc.Type, desc.Details, desc.Port)
			}
			if rp, ok := c.(component.RouteProvider); ok {
				for _, r := range rp.Routes() {
					s.TrackRoute(r.Method, r.Path, r.Handler)
				}
			}
		}
		s.health = registry.Health(ctx, s.serviceName, s.version).Components
	}
	if router != nil {
		for _, kind := range router.Transports() {
			s.transports = append(s.transports, kind.String())
		}
	}
	if table != nil {
		level := map[route.Path]int{}
		levels := table.Levels()
		for i, l := range levels {
			for _, p := range l {
				level[p] = i
			}
		}
		s.levels = len(levels)
		s.fingerprint = shortFingerprint(table.Fingerprint())
		for _, p := range table.Paths() {
			info := PathInfo{Path: p.String(), Level: level[p]}
			nodes, _ := table.Lookup(p)
			for _, n := range nodes {
				for _, h := range n.Handlers {
					info.Handlers = append(info.Handlers, h.Name)
				}
				for _, np := range n.Paths {
					info.Handlers = append(info.Handlers, "→ "+np.Name())
				}
				for _, q := range n.Queues {
					info.Queues = append(info.Queues, q.Transport.String()+":"+q.Resource())
				}
			}
			s.paths = append(s.paths, info)
		}
	}
}

// Write renders the summary to w.
func (s *Summary) Write(w io.Writer) {
	fmt.Fprintf(w, "\n🚀 %s v%s started in %.2fs\n\n", s.serviceName, s.version, s.startupDuration.Seconds())

	fmt.Fprintf(w, "📊 Infrastructure\n")
	if len(s.infrastructure) == 0 {
		fmt.Fprintf(w, "   └── No components registered\n")
	}
	for i, inf := range s.infrastructure {
		details := inf.Details
		if inf.Port > 0 && !strings.Contains(details, fmt.Sprintf(":%d", inf.Port)) {
			details = fmt.Sprintf("%s (:%d)", details, inf.Port)
		}
		fmt.Fprintf(w, "   %s %s [%s]: %s\n", treePrefix(i, len(s.infrastructure)), inf.Name, inf.Type, details)
	}

	if len(s.transports) > 0 {
		fmt.Fprintf(w, "\n📨 Transports: %s\n", strings.Join(s.transports, ", "))
	}

	if len(s.paths) > 0 {
		fmt.Fprintf(w, "\n🧭 Paths (%d in %d level(s), fingerprint %s)\n", len(s.paths), s.levels, s.fingerprint)
		for i, p := range s.paths {
			line := fmt.Sprintf("[%d] %s", p.Level, p.Path)
			if len(p.Handlers) > 0 {
				line += " → " + strings.Join(p.Handlers, ", ")
			}
			if len(p.Queues) > 0 {
				line += " ⇢ " + strings.Join(p.Queues, ", ")
			}
			fmt.Fprintf(w, "   %s %s\n", treePrefix(i, len(s.paths)), line)
		}
	}

	if len(s.routes) > 0 {
		fmt.Fprintf(w, "\n🌐 Routes (%d)\n", len(s.routes))
		for i, r := range s.routes {
			fmt.Fprintf(w, "   %s %-7s %s → %s\n", treePrefix(i, len(s.routes)), r.Method, r.Path, r.Handler)
		}
	}

	if len(s.health) > 0 {
		fmt.Fprintf(w, "\n🏥 Health Check\n")
		for i, h := range s.health {
			msg := ""
			if h.Message != "" {
				msg = " (" + h.Message + ")"
			}
			fmt.Fprintf(w, "   %s %s %s: %s%s\n", treePrefix(i, len(s.health)), healthStatusIcon(h.Status), h.Name, h.Status, msg)
		}
	}
	fmt.Fprintln(w)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func treePrefix(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func healthStatusIcon(status observability.HealthStatus) string {
	switch status {
	case observability.HealthStatusUp:
		return "✅"
	case observability.HealthStatusDegraded:
		return "⚠️"
	case observability.HealthStatusDown:
		return "❌"
	default:
		return "❓"
	}
}
