package version

import (
	"runtime/debug"
	"sync"
	"time"
)

// Version contains the application version information.
// This should be set via build-time ldflags in production:
// go build -ldflags "-X git.home.luguber.info/inful/ordprovider/internal/version.Version=v1.2.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Service resolves the effective version string and caches it with a TTL so
// module build info is not re-read on every request header.
type Service struct {
	mu      sync.Mutex
	ttl     time.Duration
	value   string
	expires time.Time
}

// NewService creates a version service. A non-positive ttl defaults to one hour.
func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{ttl: ttl}
}

// Current returns the cached version, re-resolving after the TTL elapses.
func (s *Service) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.value != "" && now.Before(s.expires) {
		return s.value
	}
	s.value = resolve()
	s.expires = now.Add(s.ttl)
	return s.value
}

// Invalidate drops the cached value; the next Current call re-resolves.
func (s *Service) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = ""
	s.expires = time.Time{}
}

func resolve() string {
	if Version != "" && Version != "unknown" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "unknown"
}
