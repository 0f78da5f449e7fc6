package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"speaktoheaven/logger"
	"speaktoheaven/models"
)

const (
	DefaultSignupBonus = 10
	DefaultTokenTTL    = 7 * 24 * time.Hour
	MinPasswordLength  = 8

	SystemUserEmail = "system@speaktoheaven.internal"
)

type Claims struct {
	UserID string
	Email  string
}

type AuthService struct {
	log         *logger.Logger
	accounts    AccountStore
	secret      []byte
	ttl         time.Duration
	signupBonus int
	now         func() time.Time
}

func NewAuthService(log *logger.Logger, accounts AccountStore, secret string, signupBonus int) *AuthService {
	if signupBonus < 0 {
		signupBonus = 0
	}
	return &AuthService{
		log:         log.With("service", "AuthService"),
		accounts:    accounts,
		secret:      []byte(secret),
		ttl:         DefaultTokenTTL,
		signupBonus: signupBonus,
		now:         time.Now,
	}
}

// Signup creates the account with the signup bonus and returns a session token.
func (a *AuthService) Signup(ctx context.Context, email, password string) (models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, "", fmt.Errorf("email: %w", ErrInvalidRequest)
	}
	if len(password) < MinPasswordLength {
		return models.User{}, "", fmt.Errorf("password shorter than %d: %w", MinPasswordLength, ErrInvalidRequest)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	u, err := a.accounts.CreateUser(ctx, email, string(hash), a.signupBonus)
	if err != nil {
		return models.User{}, "", err
	}
	token, err := a.IssueToken(u)
	if err != nil {
		return models.User{}, "", err
	}
	a.log.Info("User signed up", "user_id", u.ID, "credits", u.Credits)
	return u, token, nil
}

func (a *AuthService) Login(ctx context.Context, email, password string) (models.User, string, error) {
	u, err := a.accounts.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return models.User{}, "", ErrBadCredentials
	}
	if err != nil {
		return models.User{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return models.User{}, "", ErrBadCredentials
	}
	token, err := a.IssueToken(u)
	if err != nil {
		return models.User{}, "", err
	}
	return u, token, nil
}

func (a *AuthService) IssueToken(u models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"email":   u.Email,
		"exp":     a.now().Add(a.ttl).Unix(),
	})
	return token.SignedString(a.secret)
}

// ParseToken validates signature and expiry.
func (a *AuthService) ParseToken(raw string) (Claims, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("invalid token: %w", err)
	}
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid token claims")
	}
	id, _ := mc["user_id"].(string)
	if id == "" {
		return Claims{}, errors.New("token has no user_id")
	}
	email, _ := mc["email"].(string)
	return Claims{UserID: id, Email: email}, nil
}

// SystemUser returns the shared account used when authentication is switched
// off, creating it on first use.
func (a *AuthService) SystemUser(ctx context.Context) (models.User, error) {
	u, err := a.accounts.GetUserByEmail(ctx, SystemUserEmail)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return models.User{}, err
	}
	u, err = a.accounts.CreateUser(ctx, SystemUserEmail, "", a.signupBonus)
	if errors.Is(err, ErrEmailTaken) {
		return a.accounts.GetUserByEmail(ctx, SystemUserEmail)
	}
	return u, err
}
