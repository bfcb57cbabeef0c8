package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"possales/internal/access"
	"possales/internal/apierror"
	"possales/internal/config"
	"possales/internal/dto"
	"possales/internal/model"
	"possales/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 12

type AuthService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error)
	Me(ctx context.Context, p access.Principal) (*dto.UserResponse, error)
	CreateUser(ctx context.Context, req dto.CreateUserRequest) (*dto.UserResponse, error)
	ListUsers(ctx context.Context) ([]dto.UserResponse, error)
	UpdateUser(ctx context.Context, id uint, req dto.UpdateUserRequest) (*dto.UserResponse, error)
	DeleteUser(ctx context.Context, actor access.Principal, id uint) error
	// EnsureAdmin creates an admin account with the given credentials when
	// no admin exists yet.
	EnsureAdmin(ctx context.Context, username, password string) error
}

type authService struct {
	repo repository.UserRepository
	cfg  *config.Config
}

func NewAuthService(repo repository.UserRepository, cfg *config.Config) AuthService {
	return &authService{repo: repo, cfg: cfg}
}

var errBadCredentials = apierror.Unauthenticated("invalid username or password")

func (s *authService) Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	user, err := s.repo.FindByUsername(ctx, req.Username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}
	log.Info().Uint("user_id", user.ID).Str("username", user.Username).Msg("login")
	return s.issue(user)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.LoginResponse, error) {
	claims, err := access.ParseToken(refreshToken, s.cfg.JWTSecret)
	if err != nil || claims.TokenType != access.TokenRefresh {
		return nil, apierror.Unauthenticated("refresh token invalid or expired")
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.Unauthenticated("user no longer exists")
	}
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	return s.issue(user)
}

func (s *authService) Me(ctx context.Context, p access.Principal) (*dto.UserResponse, error) {
	if !p.Authenticated() {
		return nil, apierror.Unauthenticated("authentication required")
	}
	user, err := s.find(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	resp := userToResponse(user)
	return &resp, nil
}

func (s *authService) issue(user *model.User) (*dto.LoginResponse, error) {
	accessToken, err := s.generateToken(user, access.TokenAccess, time.Duration(s.cfg.JWTExpirationHours)*time.Hour)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.generateToken(user, access.TokenRefresh, time.Duration(s.cfg.JWTRefreshHours)*time.Hour)
	if err != nil {
		return nil, err
	}
	return &dto.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresIn:    s.cfg.JWTExpirationHours * 3600,
		User:         userToResponse(user),
	}, nil
}

func (s *authService) generateToken(user *model.User, typ string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := access.Claims{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      access.Role(user.Role),
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

// ── Users ─────────────────────────────────────────────────────────────────────

func (s *authService) CreateUser(ctx context.Context, req dto.CreateUserRequest) (*dto.UserResponse, error) {
	username := strings.TrimSpace(req.Username)
	if !access.Role(req.Role).Valid() {
		return nil, apierror.InvalidArgument("unknown role %q", req.Role)
	}
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil, apierror.Conflict("username already taken", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, repository.ClassifyError(err)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u := &model.User{Username: username, PasswordHash: hash, Role: req.Role}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, repository.ClassifyError(err)
	}
	log.Info().Uint("user_id", u.ID).Str("role", u.Role).Msg("user created")
	resp := userToResponse(u)
	return &resp, nil
}

func (s *authService) ListUsers(ctx context.Context) ([]dto.UserResponse, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, userToResponse(&users[i]))
	}
	return out, nil
}

func (s *authService) UpdateUser(ctx context.Context, id uint, req dto.UpdateUserRequest) (*dto.UserResponse, error) {
	u, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Username != nil {
		username := strings.TrimSpace(*req.Username)
		if username != u.Username {
			if other, err := s.repo.FindByUsername(ctx, username); err == nil && other.ID != id {
				return nil, apierror.Conflict("username already taken", nil)
			}
			u.Username = username
		}
	}
	if req.Role != nil {
		if !access.Role(*req.Role).Valid() {
			return nil, apierror.InvalidArgument("unknown role %q", *req.Role)
		}
		u.Role = *req.Role
	}
	if req.Password != nil {
		hash, err := HashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, repository.ClassifyError(err)
	}
	resp := userToResponse(u)
	return &resp, nil
}

func (s *authService) DeleteUser(ctx context.Context, actor access.Principal, id uint) error {
	if actor.UserID == id {
		return apierror.InvalidArgument("you cannot delete your own account")
	}
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return apierror.NotFound("user %d not found", id)
	}
	if err != nil {
		return repository.ClassifyError(err)
	}
	log.Info().Uint("user_id", id).Uint("deleted_by", actor.UserID).Msg("user deleted")
	return nil
}

func (s *authService) EnsureAdmin(ctx context.Context, username, password string) error {
	users, err := s.repo.List(ctx)
	if err != nil {
		return repository.ClassifyError(err)
	}
	for _, u := range users {
		if u.Role == string(access.RoleAdmin) {
			return nil
		}
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, &model.User{Username: username, PasswordHash: hash, Role: string(access.RoleAdmin)}); err != nil {
		return repository.ClassifyError(err)
	}
	log.Warn().Str("username", username).Msg("bootstrap admin account created, change its password")
	return nil
}

func (s *authService) find(ctx context.Context, id uint) (*model.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apierror.NotFound("user %d not found", id)
	}
	if err != nil {
		return nil, repository.ClassifyError(err)
	}
	return u, nil
}

// HashPassword returns the bcrypt hash stored for a user.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
