package controller

import (
	"errors"
	"net/http"
	"time"

	appdto "github.com/vibast-solutions/ms-go-accounts/app/dto"
	dto "github.com/vibast-solutions/ms-go-accounts/app/dto/http"
	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

type UserAuthController struct {
	userAuthService service.UserAuthService
	cfg             *config.Config
}

func NewUserAuthController(userAuthService service.UserAuthService, cfg *config.Config) *UserAuthController {
	return &UserAuthController{userAuthService: userAuthService, cfg: cfg}
}

func (c *UserAuthController) Register(ctx echo.Context) error {
	input := &appdto.RegisterInput{
		FullName: ctx.FormValue("fullName"),
		Email:    ctx.FormValue("email"),
		Username: ctx.FormValue("username"),
		Password: ctx.FormValue("password"),
	}

	avatar, avatarClose, err := formFile(ctx, "avatar")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid avatar upload"})
	}
	if avatarClose != nil {
		defer avatarClose()
	}

	cover, coverClose, err := formFile(ctx, "coverImage")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid cover image upload"})
	}
	if coverClose != nil {
		defer coverClose()
	}

	logrus.WithField("email", input.Email).Info("Register request received")
	user, err := c.userAuthService.Register(ctx.Request().Context(), input, avatar, cover)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			logrus.WithField("email", input.Email).Debug("Register validation failed")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		if errors.Is(err, service.ErrUserExists) {
			logrus.WithField("email", input.Email).Warn("Register failed: user already exists")
			return ctx.JSON(http.StatusConflict, dto.ErrorResponse{Error: "user already exists"})
		}
		logrus.WithError(err).WithField("email", input.Email).Error("Register failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User registered")

	return ctx.JSON(http.StatusCreated, dto.NewUserResponse(user))
}

func (c *UserAuthController) Login(ctx echo.Context) error {
	var req dto.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	result, err := c.userAuthService.Login(ctx.Request().Context(), &appdto.LoginInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			logrus.Debug("Login validation failed")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		if errors.Is(err, service.ErrUserNotFound) {
			logrus.WithField("email", req.Email).Warn("Login failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user does not exist"})
		}
		if errors.Is(err, service.ErrInvalidCredentials) {
			logrus.WithField("email", req.Email).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid credentials"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	c.setSessionCookies(ctx, result.AccessToken, result.RefreshToken)

	logrus.WithField("user_id", result.User.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, dto.LoginResponse{
		User:         dto.NewUserResponse(result.User),
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

func (c *UserAuthController) Logout(ctx echo.Context) error {
	userID, ok := ctx.Get("user_id").(uint64)
	if !ok {
		logrus.Warn("Logout failed: missing user_id in context")
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	if err := c.userAuthService.Logout(ctx.Request().Context(), userID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Logout failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	c.clearSessionCookies(ctx)

	logrus.WithField("user_id", userID).Info("Logout successful")
	return ctx.JSON(http.StatusOK, dto.LogoutResponse{Message: "logged out successfully"})
}

func (c *UserAuthController) RefreshToken(ctx echo.Context) error {
	refreshToken := ""
	if cookie, err := ctx.Cookie(refreshTokenCookie); err == nil {
		refreshToken = cookie.Value
	}
	if refreshToken == "" {
		var req dto.RefreshTokenRequest
		if err := ctx.Bind(&req); err == nil {
			refreshToken = req.RefreshToken
		}
	}

	pair, err := c.userAuthService.Refresh(ctx.Request().Context(), refreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrStaleRefreshToken) {
			logrus.Warn("Refresh token failed: invalid or stale token")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "invalid or expired refresh token"})
		}
		logrus.WithError(err).Error("Refresh token failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	c.setSessionCookies(ctx, pair.AccessToken, pair.RefreshToken)

	logrus.Info("Refresh token successful")
	return ctx.JSON(http.StatusOK, dto.RefreshTokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (c *UserAuthController) Me(ctx echo.Context) error {
	user, ok := ctx.Get("user").(*entity.User)
	if !ok {
		logrus.Warn("Me failed: missing user in context")
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	return ctx.JSON(http.StatusOK, dto.NewUserResponse(user))
}

func (c *UserAuthController) setSessionCookies(ctx echo.Context, accessToken, refreshToken string) {
	ctx.SetCookie(sessionCookie(accessTokenCookie, accessToken, c.cfg.AccessTokenTTL))
	ctx.SetCookie(sessionCookie(refreshTokenCookie, refreshToken, c.cfg.RefreshTokenTTL))
}

func (c *UserAuthController) clearSessionCookies(ctx echo.Context) {
	ctx.SetCookie(expiredCookie(accessTokenCookie))
	ctx.SetCookie(expiredCookie(refreshTokenCookie))
}

func sessionCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func expiredCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// formFile opens one optional multipart file part. A missing part is not an
// error; the caller decides whether the file is required.
func formFile(ctx echo.Context, name string) (*appdto.FileUpload, func(), error) {
	header, err := ctx.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	file, err := header.Open()
	if err != nil {
		return nil, nil, err
	}

	return &appdto.FileUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	}, func() { _ = file.Close() }, nil
}
