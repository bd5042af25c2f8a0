package todo

import (
	"context"
	"strings"
	"time"

	"github.com/mycelian/mycelian-todo/internal/actor"
	"github.com/mycelian/mycelian-todo/internal/model"
)

// Service is the facade the HTTP layer and the CLI talk to.
type Service struct {
	dir *actor.Directory[*List]
	now func() time.Time
}

// NewService wraps dir.
func NewService(dir *actor.Directory[*List]) *Service {
	return &Service{dir: dir, now: func() time.Time { return time.Now().UTC() }}
}

// ListItems returns the items for key. found is false for a key that never received AddItem.
func (s *Service) ListItems(ctx context.Context, key string) (items []model.ListItem, found bool, err error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, model.NewValidationError("key", "must not be empty")
	}
	err = s.dir.Get(key).Invoke(ctx, func(ctx context.Context, l *List) error {
		items, found, err = l.Items(ctx)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return items, found, nil
}

// AddItem appends a new unfinished item stamped with the current time.
func (s *Service) AddItem(ctx context.Context, key, description string) error {
	if strings.TrimSpace(key) == "" {
		return model.NewValidationError("key", "must not be empty")
	}
	if strings.TrimSpace(description) == "" {
		return model.NewValidationError("description", "must not be empty")
	}
	item := model.ListItem{Description: description, AddedAt: s.now(), Finished: false}
	return s.dir.Get(key).Invoke(ctx, func(ctx context.Context, l *List) error {
		return l.Add(ctx, item)
	})
}

// Close stops every resident list.
func (s *Service) Close() error { return s.dir.Close() }
