package directory

import (
	"context"

	"github.com/Dhoini/premium-billing-reconciler/internal/domain"
)

// StaticDirectory каталог с фиксированным списком ID для локального запуска
type StaticDirectory struct {
	ids map[string]struct{}
}

// NewStaticDirectory создает каталог из списка ID
func NewStaticDirectory(ids ...string) *StaticDirectory {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &StaticDirectory{ids: set}
}

func (d *StaticDirectory) LookupByExternalID(ctx context.Context, id string) (domain.Profile, error) {
	if _, ok := d.ids[id]; !ok {
		return domain.Profile{}, domain.NewNotFoundError("user", id)
	}
	return domain.Profile{ExternalID: id}, nil
}
