package directory

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
	"github.com/Dhoini/premium-billing-reconciler/pkg/logger"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// CachedDirectory кеширует найденные профили и отсутствующие ID.
// Одновременные запросы одного ID объединяются в один вызов каталога.
type CachedDirectory struct {
	next     Directory
	cache    *gocache.Cache
	group    singleflight.Group
	notFound time.Duration
	log      *logger.Logger
}

type cachedLookup struct {
	profile domain.Profile
	found   bool
}

// NewCachedDirectory оборачивает каталог кешем с заданным TTL.
// Отсутствующие ID кешируются на меньший срок.
func NewCachedDirectory(next Directory, ttl time.Duration, log *logger.Logger) *CachedDirectory {
	return &CachedDirectory{
		next:     next,
		cache:    gocache.New(ttl, 2*ttl),
		notFound: ttl / 10,
		log:      log,
	}
}

func (d *CachedDirectory) LookupByExternalID(ctx context.Context, id string) (domain.Profile, error) {
	if v, ok := d.cache.Get(id); ok {
		return unpack(id, v.(cachedLookup))
	}

	v, err, shared := d.group.Do(id, func() (interface{}, error) {
		profile, err := d.next.LookupByExternalID(ctx, id)
		switch {
		case err == nil:
			entry := cachedLookup{profile: profile, found: true}
			d.cache.Set(id, entry, gocache.DefaultExpiration)
			return entry, nil
		case errors.Is(err, domain.ErrNotFound):
			entry := cachedLookup{}
			d.cache.Set(id, entry, d.notFound)
			return entry, nil
		default:
			return nil, err
		}
	})
	if err != nil {
		return domain.Profile{}, err
	}
	if shared {
		d.log.Debugw("Directory lookup shared", "externalID", id)
	}
	return unpack(id, v.(cachedLookup))
}

func unpack(id string, entry cachedLookup) (domain.Profile, error) {
	if !entry.found {
		return domain.Profile{}, domain.NewNotFoundError("user", id)
	}
	return entry.profile, nil
}
