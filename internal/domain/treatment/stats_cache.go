package treatment

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/johaanq/oncontrol-backend/internal/platform/db"
)

// StatsCache stores computed statistics between requests. Each doctor has
// a generation counter that every write bumps; entries are stored under the
// generation read before computing, so a snapshot taken across a write is
// never served.
type StatsCache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
}

const defaultStatsTTL = 5 * time.Minute

func WithStatsCache(c StatsCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
		if s.cacheTTL <= 0 {
			s.cacheTTL = defaultStatsTTL
		}
	}
}

func statsKey(ctx context.Context, doctorID uuid.UUID) string {
	tenant := db.TenantFromContext(ctx)
	if tenant == "" {
		tenant = "default"
	}
	return "oncontrol:stats:" + tenant + ":" + doctorID.String()
}

func generationKey(key string) string {
	return key + ":gen"
}

func entryKey(key string, gen int64) string {
	return key + ":" + strconv.FormatInt(gen, 10)
}

// statsEntry names the cache slot for the doctor's current generation. An
// empty result disables caching for this call.
func (s *Service) statsEntry(ctx context.Context, doctorID uuid.UUID) string {
	if s.cache == nil {
		return ""
	}
	key := statsKey(ctx, doctorID)
	gen, err := s.cache.Counter(ctx, generationKey(key))
	if err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("stats cache generation read failed")
		return ""
	}
	return entryKey(key, gen)
}

func (s *Service) cachedStats(ctx context.Context, entry string) (*Stats, bool) {
	if entry == "" {
		return nil, false
	}
	var st Stats
	ok, err := s.cache.GetJSON(ctx, entry, &st)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", entry).Msg("stats cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if st.ByType == nil {
		st.ByType = make(map[Type]int)
	}
	return &st, true
}

func (s *Service) storeStats(ctx context.Context, entry string, st *Stats) {
	if entry == "" {
		return
	}
	if err := s.cache.SetJSON(ctx, entry, st, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", entry).Msg("stats cache write failed")
	}
}

// invalidateStats moves the doctor to a new generation; older entries are
// left to expire.
func (s *Service) invalidateStats(ctx context.Context, doctorID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, generationKey(statsKey(ctx, doctorID))); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("stats cache invalidation failed")
	}
}
