package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/dto"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrStaleRefreshToken means the presented refresh token no longer
	// matches the stored value: it was rotated away or cleared by logout.
	// The JWT itself may still verify; equality with the stored value is
	// what keeps rotation and logout effective.
	ErrStaleRefreshToken = errors.New("refresh token is no longer valid")
)

type userRepository interface {
	Create(ctx context.Context, user *entity.User) error
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*entity.User, error)
	UpdateRefreshToken(ctx context.Context, userID uint64, token string) error
	RotateRefreshToken(ctx context.Context, userID uint64, oldToken, newToken string) (int64, error)
	ClearRefreshToken(ctx context.Context, userID uint64) error
}

type tokenIssuer interface {
	IssueAccessToken(user *entity.User) (string, error)
	IssueRefreshToken(user *entity.User) (string, error)
	VerifyRefreshToken(tokenString string) (*RefreshClaims, error)
}

type mediaUploader interface {
	Upload(ctx context.Context, prefix string, file *dto.FileUpload) (string, error)
}

type UserAuthService interface {
	Register(ctx context.Context, input *dto.RegisterInput, avatar, cover *dto.FileUpload) (*entity.User, error)
	Login(ctx context.Context, input *dto.LoginInput) (*dto.LoginResult, error)
	Logout(ctx context.Context, userID uint64) error
	Refresh(ctx context.Context, refreshToken string) (*dto.TokenPair, error)
	GetUserByID(ctx context.Context, userID uint64) (*entity.User, error)
}

type userAuthService struct {
	userRepo userRepository
	tokens   tokenIssuer
	media    mediaUploader
}

func NewUserAuthService(userRepo userRepository, tokens tokenIssuer, media mediaUploader) UserAuthService {
	return &userAuthService{
		userRepo: userRepo,
		tokens:   tokens,
		media:    media,
	}
}

func (s *userAuthService) Register(ctx context.Context, input *dto.RegisterInput, avatar, cover *dto.FileUpload) (*entity.User, error) {
	var missing []string
	for _, field := range []struct {
		name  string
		value string
	}{
		{"fullName", input.FullName},
		{"email", input.Email},
		{"username", input.Username},
		{"password", input.Password},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}

	email := strings.TrimSpace(input.Email)
	username := strings.ToLower(strings.TrimSpace(input.Username))

	existing, err := s.userRepo.FindByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}

	// The avatar check runs before any upload so a missing file costs no
	// media round trip.
	if avatar == nil {
		return nil, fmt.Errorf("%w: avatar image is required", ErrValidation)
	}

	avatarURL, err := s.media.Upload(ctx, "avatars", avatar)
	if err != nil {
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}

	// Cover image is optional; a failed upload degrades to an empty URL
	// instead of failing the registration.
	coverImageURL := ""
	if cover != nil {
		coverImageURL, err = s.media.Upload(ctx, "covers", cover)
		if err != nil {
			logrus.WithError(err).Warn("Cover image upload failed, continuing without it")
			coverImageURL = ""
		}
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &entity.User{
		Username:      username,
		Email:         email,
		FullName:      strings.TrimSpace(input.FullName),
		PasswordHash:  string(hashedPassword),
		AvatarURL:     avatarURL,
		CoverImageURL: coverImageURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err = s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	// Read the row back as a consistency check on the insert.
	created, err := s.userRepo.FindByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, fmt.Errorf("user %d not found after registration", user.ID)
	}

	return created, nil
}

func (s *userAuthService) Login(ctx context.Context, input *dto.LoginInput) (*dto.LoginResult, error) {
	email := strings.TrimSpace(input.Email)
	username := strings.ToLower(strings.TrimSpace(input.Username))
	if email == "" && username == "" {
		return nil, fmt.Errorf("%w: email or username required", ErrValidation)
	}

	user, err := s.userRepo.FindByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issueAndStoreTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	return &dto.LoginResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// Logout clears the stored refresh token. Calling it for a user who is
// already logged out is a no-op, so it is safe to repeat.
func (s *userAuthService) Logout(ctx context.Context, userID uint64) error {
	return s.userRepo.ClearRefreshToken(ctx, userID)
}

func (s *userAuthService) Refresh(ctx context.Context, refreshToken string) (*dto.TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrInvalidToken
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	if !user.RefreshToken.Valid || user.RefreshToken.String != refreshToken {
		return nil, ErrStaleRefreshToken
	}

	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	newRefreshToken, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}

	// Compare-and-swap so two refreshes racing on the same stale token
	// cannot both rotate; the loser sees zero rows and gets a 401.
	rows, err := s.userRepo.RotateRefreshToken(ctx, user.ID, refreshToken, newRefreshToken)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrStaleRefreshToken
	}

	return &dto.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
	}, nil
}

func (s *userAuthService) GetUserByID(ctx context.Context, userID uint64) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *userAuthService) issueAndStoreTokens(ctx context.Context, user *entity.User) (*dto.TokenPair, error) {
	accessToken, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return nil, err
	}

	if err = s.userRepo.UpdateRefreshToken(ctx, user.ID, refreshToken); err != nil {
		return nil, err
	}

	return &dto.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
