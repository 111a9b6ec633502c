package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/docstore"
	"github.com/spec-kit/handover-bot/internal/domain"
	"github.com/spec-kit/handover-bot/internal/observability"
)

// Directory maps user IDs to display names and roles.
type Directory interface {
	Get(ctx context.Context, userID int64) (domain.User, bool, error)
	GetRole(ctx context.Context, userID int64) (domain.Role, error)
	SetRole(ctx context.Context, userID int64, role domain.Role) error
	ListAdmins(ctx context.Context) ([]domain.User, error)
	Touch(ctx context.Context, userID int64, displayName string) (domain.User, error)
}

type directoryEntry struct {
	UserNick string `json:"user_nick"`
	Role     string `json:"role"`
}

type directory struct {
	doc document
}

// NewDirectory returns a Directory persisted in the named document.
func NewDirectory(store docstore.Backend, name string, logger *zap.Logger, metrics *observability.Metrics) Directory {
	return &directory{doc: document{store: store, name: name, logger: logger, metrics: metrics}}
}

func (r *directory) decode(data []byte) map[string]directoryEntry {
	entries := map[string]directoryEntry{}
	if data == nil {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		r.doc.malformed(err)
		return map[string]directoryEntry{}
	}
	for key := range entries {
		if _, err := strconv.ParseInt(key, 10, 64); err != nil {
			r.doc.malformed(fmt.Errorf("non-numeric user id %q", key))
			delete(entries, key)
		}
	}
	return entries
}

func (r *directory) snapshot(ctx context.Context) (map[string]directoryEntry, error) {
	data, err := r.doc.load(ctx)
	if err != nil {
		return nil, err
	}
	return r.decode(data), nil
}

func (r *directory) mutate(ctx context.Context, fn func(entries map[string]directoryEntry) bool) error {
	return r.doc.update(ctx, func(current []byte) ([]byte, bool, error) {
		entries := r.decode(current)
		if !fn(entries) {
			return nil, false, nil
		}
		next, err := json.Marshal(entries)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
}

func key(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func toUser(id int64, e directoryEntry) domain.User {
	return domain.User{ID: id, DisplayName: e.UserNick, Role: domain.ParseRole(e.Role)}
}

func (r *directory) Get(ctx context.Context, userID int64) (domain.User, bool, error) {
	entries, err := r.snapshot(ctx)
	if err != nil {
		return domain.User{}, false, err
	}
	entry, ok := entries[key(userID)]
	if !ok {
		return domain.User{ID: userID, Role: domain.RoleUnknown}, false, nil
	}
	return toUser(userID, entry), true, nil
}

func (r *directory) GetRole(ctx context.Context, userID int64) (domain.Role, error) {
	user, _, err := r.Get(ctx, userID)
	if err != nil {
		return domain.RoleUnknown, err
	}
	return user.Role, nil
}

func (r *directory) SetRole(ctx context.Context, userID int64, role domain.Role) error {
	return r.mutate(ctx, func(entries map[string]directoryEntry) bool {
		entry, exists := entries[key(userID)]
		if exists && entry.Role == string(role) {
			return false
		}
		entry.Role = string(role)
		entries[key(userID)] = entry
		return true
	})
}

func (r *directory) ListAdmins(ctx context.Context) ([]domain.User, error) {
	entries, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	admins := make([]domain.User, 0)
	for k, entry := range entries {
		if domain.ParseRole(entry.Role) != domain.RoleAdmin {
			continue
		}
		id, _ := strconv.ParseInt(k, 10, 64)
		admins = append(admins, toUser(id, entry))
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].ID < admins[j].ID })
	return admins, nil
}

func (r *directory) Touch(ctx context.Context, userID int64, displayName string) (domain.User, error) {
	var user domain.User
	err := r.mutate(ctx, func(entries map[string]directoryEntry) bool {
		entry, exists := entries[key(userID)]
		if exists && (displayName == "" || entry.UserNick == displayName) {
			user = toUser(userID, entry)
			return false
		}
		if !exists {
			entry.Role = string(domain.RoleUser)
		}
		if displayName != "" {
			entry.UserNick = displayName
		}
		entries[key(userID)] = entry
		user = toUser(userID, entry)
		return true
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}
