package featureflags

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hrtlevels/hrtlevels/internal/pk"
)

// DefaultCacheTTL is how long flags are served from memory.
const DefaultCacheTTL = time.Minute

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration
	DefaultFlags map[string]*Flag
}

// Service evaluates feature flags from a repository, with an in-memory
// cache and a fallback to defaults when the repository is unavailable.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag

	mu          sync.RWMutex
	cache       map[string]*Flag
	cacheExpiry time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.DefaultFlags == nil {
		cfg.DefaultFlags = DefaultFlags()
	}
	return &Service{
		repo:         cfg.Repository,
		logger:       cfg.Logger,
		cacheTTL:     cfg.CacheTTL,
		defaultFlags: cfg.DefaultFlags,
		cache:        make(map[string]*Flag),
	}
}

// GetFlag returns the flag for key, or nil if it is neither stored nor
// defaulted.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag := s.getCached(key); flag != nil {
		return flag
	}

	flag, err := s.repo.GetFlag(ctx, key)
	if err == nil {
		s.setCached(key, flag)
		return flag
	}
	if !errors.Is(err, ErrFlagNotFound) {
		s.logger.Warn().Err(err).Str("flag", key).Msg("failed to get feature flag from repository")
	}
	return s.defaultFlags[key]
}

// GetAllFlags returns stored flags merged over the defaults.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	result := maps.Clone(s.defaultFlags)

	flags, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get feature flags from repository, using defaults")
		return result
	}
	maps.Copy(result, flags)

	s.mu.Lock()
	s.cache = flags
	s.cacheExpiry = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()

	return result
}

// List returns every flag ordered by key.
func (s *Service) List(ctx context.Context) FlagList {
	all := s.GetAllFlags(ctx)
	list := FlagList{Items: make([]Flag, 0, len(all))}
	for _, key := range slices.Sorted(maps.Keys(all)) {
		list.Items = append(list.Items, *all[key])
	}
	return list
}

// SetFlag stores a single flag.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	flag.UpdatedAt = time.Now()
	if err := s.repo.SetFlag(ctx, flag); err != nil {
		return err
	}
	s.setCached(flag.Key, flag)
	return nil
}

// SetFlags stores several flags atomically.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	now := time.Now()
	for _, flag := range flags {
		flag.UpdatedAt = now
	}
	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return err
	}

	s.mu.Lock()
	for _, flag := range flags {
		s.cache[flag.Key] = flag
	}
	s.mu.Unlock()
	return nil
}

// Apply validates every update in req and stores them together. Nothing is
// written if any update is invalid; the returned error is an *UpdateError.
func (s *Service) Apply(ctx context.Context, req FlagUpdateRequest) error {
	if len(req.Updates) == 0 {
		return fmt.Errorf("%w: no updates", ErrInvalidValue)
	}

	flags := make([]*Flag, len(req.Updates))
	for i, u := range req.Updates {
		if err := ValidateUpdate(u); err != nil {
			return &UpdateError{Index: i, Key: u.Key, Err: err}
		}
		flags[i] = &Flag{Key: u.Key, Value: u.Value}
	}
	if err := s.SetFlags(ctx, flags); err != nil {
		return fmt.Errorf("storing flags: %w", err)
	}

	keys := make([]string, len(flags))
	for i, f := range flags {
		keys[i] = f.Key
	}
	s.logger.Info().
		Str("flags", strings.Join(keys, ",")).
		Str("reason", req.Reason).
		Msg("feature flags updated")
	return nil
}

// Reset removes the stored value for key so the default applies again.
func (s *Service) Reset(ctx context.Context, key string) error {
	if _, ok := s.defaultFlags[key]; !ok {
		return ErrUnknownFlag
	}
	if err := s.repo.DeleteFlag(ctx, key); err != nil && !errors.Is(err, ErrFlagNotFound) {
		return fmt.Errorf("deleting flag: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	s.logger.Info().Str("flag", key).Msg("feature flag reset to default")
	return nil
}

// InvalidateCache drops cached flags so the next read hits the repository.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Flag)
	s.cacheExpiry = time.Time{}
}

// IsEnabled reports whether the boolean flag key is set.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

func (s *Service) getCached(key string) *Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if time.Now().After(s.cacheExpiry) {
		return nil
	}
	return s.cache[key]
}

func (s *Service) setCached(key string, flag *Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = flag
	if s.cacheExpiry.Before(time.Now()) {
		s.cacheExpiry = time.Now().Add(s.cacheTTL)
	}
}

// RouteEnabled reports whether new doses may use route r.
func (s *Service) RouteEnabled(ctx context.Context, r pk.Route) bool {
	switch r {
	case pk.Gel:
		return s.IsEnabled(ctx, FlagEnableGelRoute)
	case pk.Patch:
		return !s.IsEnabled(ctx, FlagDisablePatchRoute)
	default:
		return true
	}
}

// MaxSimulationSamples returns the sample cap for a single simulation.
func (s *Service) MaxSimulationSamples(ctx context.Context) int {
	n := s.GetFlag(ctx, FlagMaxSimulationSamples).IntValue(DefaultMaxSimulationSamples)
	if n < MinSimulationSamples || n > pk.MaxGridSamples {
		return DefaultMaxSimulationSamples
	}
	return n
}

// SnapshotsEnabled reports whether the worker should refresh level snapshots.
func (s *Service) SnapshotsEnabled(ctx context.Context) bool {
	return s.GetFlag(ctx, FlagLevelSnapshotsEnabled).BoolValue(true)
}

// DegradationFlags lists the flags currently switched away from their
// defaults in a way that reduces functionality.
func (s *Service) DegradationFlags(ctx context.Context) []string {
	var out []string
	if s.IsEnabled(ctx, FlagDisablePatchRoute) {
		out = append(out, FlagDisablePatchRoute)
	}
	if !s.SnapshotsEnabled(ctx) {
		out = append(out, FlagLevelSnapshotsEnabled)
	}
	return out
}
