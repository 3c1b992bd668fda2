// Package avatars stores profile pictures for organization members.
package avatars

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/go-roster/internal/apperr"
	"github.com/hugh/go-roster/internal/database/models"
	"github.com/hugh/go-roster/internal/store"
)

// MaxSize is the largest accepted avatar in bytes.
const MaxSize = 2 << 20

var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// ObjectStore persists an object and returns its public URL.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type Service struct {
	store   *store.Store
	objects ObjectStore
	logger  *slog.Logger
}

func NewService(st *store.Store, objects ObjectStore, logger *slog.Logger) *Service {
	return &Service{store: st, objects: objects, logger: logger}
}

// Key is the object key of a user's avatar.
func Key(orgID, userID uuid.UUID) string {
	return fmt.Sprintf("avatars/%s/%s", orgID, userID)
}

// Upload replaces userID's avatar. Users may set their own; the owner may
// set anyone's in the organization.
func (s *Service) Upload(ctx context.Context, actorID, userID uuid.UUID, contentType string, body io.Reader) (*models.User, error) {
	if s.objects == nil {
		return nil, apperr.New(apperr.KindUnexpected, "Avatar storage is not configured")
	}

	actor, err := s.store.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	target, err := s.store.GetUserInOrg(ctx, actor.OrgID(), userID)
	if err != nil {
		return nil, err
	}
	if actor.ID != target.ID && actor.Role != models.RoleOwner {
		return nil, apperr.Forbidden("You can only change your own avatar")
	}

	contentType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if !allowedTypes[contentType] {
		return nil, apperr.Validation("Avatar must be a PNG, JPEG or WebP image")
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxSize+1))
	if err != nil {
		return nil, apperr.Wrap(err, "reading avatar")
	}
	if len(data) == 0 {
		return nil, apperr.Validation("Avatar is empty")
	}
	if len(data) > MaxSize {
		return nil, apperr.Validation("Avatar must be at most 2 MiB")
	}
	if sniffed := http.DetectContentType(data); sniffed != contentType {
		return nil, apperr.Validation("Avatar content does not match its type")
	}

	url, err := s.objects.Put(ctx, Key(actor.OrgID(), target.ID), contentType, data)
	if err != nil {
		return nil, apperr.Wrap(err, "storing avatar")
	}

	if err := s.store.DB(ctx).Model(target).Update("avatar_url", url).Error; err != nil {
		return nil, apperr.Wrap(err, "saving avatar url")
	}
	target.AvatarURL = url

	s.logger.Info("avatar updated", "org_id", actor.OrgID(), "user_id", target.ID, "by", actor.ID, "bytes", len(data))
	return target, nil
}
