package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/handover-bot/internal/auth"
	"github.com/spec-kit/handover-bot/internal/domain"
	"github.com/spec-kit/handover-bot/internal/events"
	"github.com/spec-kit/handover-bot/internal/observability"
	"github.com/spec-kit/handover-bot/internal/repository"
	apperrors "github.com/spec-kit/handover-bot/pkg/util/errorutil"
)

// DirectoryService manages who is a user and who is an admin.
type DirectoryService struct {
	directory  repository.Directory
	verifier   *auth.SecretVerifier
	limiter    *auth.AttemptLimiter
	tokens     *auth.TokenManager
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// DirectoryDependencies bundles collaborators.
type DirectoryDependencies struct {
	Directory  repository.Directory
	Verifier   *auth.SecretVerifier
	Limiter    *auth.AttemptLimiter
	Tokens     *auth.TokenManager
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewDirectoryService creates the service.
func NewDirectoryService(deps DirectoryDependencies) *DirectoryService {
	return &DirectoryService{
		directory:  deps.Directory,
		verifier:   deps.Verifier,
		limiter:    deps.Limiter,
		tokens:     deps.Tokens,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger.Named("directory"),
		metrics:    deps.Metrics,
	}
}

// Register records first contact and refreshes the display name. Existing roles are kept.
func (s *DirectoryService) Register(ctx context.Context, userID int64, name string) (domain.User, error) {
	return s.directory.Touch(ctx, userID, name)
}

// Role returns the current role of userID.
func (s *DirectoryService) Role(ctx context.Context, userID int64) (domain.Role, error) {
	return s.directory.GetRole(ctx, userID)
}

// Admins lists every admin.
func (s *DirectoryService) Admins(ctx context.Context) ([]domain.User, error) {
	return s.directory.ListAdmins(ctx)
}

// checkSecret applies the attempt limit, then the shared secret.
func (s *DirectoryService) checkSecret(userID int64, secret string) error {
	if s.limiter != nil && !s.limiter.Allow(userID) {
		s.metrics.RecordAdminRegistration("rate_limited")
		s.logger.Warn("admin secret attempts throttled", zap.Int64("user_id", userID))
		return apperrors.NewRateLimited("too many attempts")
	}
	if !s.verifier.Verify(secret) {
		s.metrics.RecordAdminRegistration("rejected")
		s.logger.Warn("admin secret rejected", zap.Int64("user_id", userID))
		return apperrors.NewUnauthorizedRoleChange()
	}
	return nil
}

// RegisterAdmin grants the admin role when secret matches.
func (s *DirectoryService) RegisterAdmin(ctx context.Context, userID int64, secret string) error {
	if err := s.checkSecret(userID, secret); err != nil {
		return err
	}
	if err := s.directory.SetRole(ctx, userID, domain.RoleAdmin); err != nil {
		return err
	}
	s.metrics.RecordAdminRegistration("granted")
	s.logger.Info("admin registered", zap.Int64("user_id", userID))
	if s.dispatcher != nil {
		event := events.New(events.EventAdminRegistered, userID, events.AdminRegisteredPayload{UserID: userID})
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return nil
}

// IssueToken returns an ops API token for an existing admin who knows the secret.
func (s *DirectoryService) IssueToken(ctx context.Context, userID int64, secret string) (string, time.Time, error) {
	if err := s.checkSecret(userID, secret); err != nil {
		return "", time.Time{}, err
	}
	role, err := s.directory.GetRole(ctx, userID)
	if err != nil {
		return "", time.Time{}, err
	}
	if role != domain.RoleAdmin {
		return "", time.Time{}, apperrors.NewForbidden("admin role required")
	}
	return s.tokens.GenerateToken(userID, role)
}
