package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for bcrypt hashing
const BcryptCost = 10

var (
	ErrInvalidCredentials    = fmt.Errorf("%w: invalid email/phone or password", domain.ErrInvalidCredentials)
	ErrInvalidEmail          = fmt.Errorf("%w: email is not valid", domain.ErrInvalidInput)
	ErrPasswordResetDisabled = fmt.Errorf("%w: password reset is disabled", domain.ErrForbidden)
)

// UserService defines the interface for user business logic
type UserService interface {
	Register(ctx context.Context, email, password, firstName, lastName, phone string) (*domain.User, error)
	Login(ctx context.Context, emailOrPhone, password string) (token string, user *domain.User, err error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*domain.User, error)
	ResetPassword(ctx context.Context, emailOrPhone, newPassword string) error
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

// Claims represents the JWT claims. AuthMiddleware reads user_id and role back out of them.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// ProfileUpdate carries the profile fields to change. Nil fields are left as they are.
type ProfileUpdate struct {
	Email         *string
	FirstName     *string
	LastName      *string
	Phone         *string
	Address       *string
	City          *string
	Province      *string
	PostalCode    *string
	PaymentMethod *string
}

type userService struct {
	store  repository.Store
	jwt    config.JWTConfig
	auth   config.AuthConfig
	logger *zap.Logger
}

// NewUserService creates a new instance of UserService
func NewUserService(store repository.Store, jwtCfg config.JWTConfig, authCfg config.AuthConfig, logger *zap.Logger) UserService {
	return &userService{
		store:  store,
		jwt:    jwtCfg,
		auth:   authCfg,
		logger: logger,
	}
}

func validateEmail(email string) error {
	if err := domain.ValidateVar(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// Register creates a new user account with a hashed password
func (s *userService) Register(ctx context.Context, email, password, firstName, lastName, phone string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(phone) == "" {
		return nil, fmt.Errorf("%w: phone is required", domain.ErrInvalidInput)
	}

	hashedPassword, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := domain.RoleUser
	for _, admin := range s.auth.AdminEmails {
		if strings.EqualFold(admin, email) {
			role = domain.RoleAdmin
		}
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
		FirstName:    firstName,
		LastName:     lastName,
		Phone:        strings.TrimSpace(phone),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.FromContext(ctx, s.logger).Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", user.Role),
	)

	return user, nil
}

// Login authenticates by email or phone and returns a signed bearer token.
// Unknown identity and wrong password produce the same error.
func (s *userService) Login(ctx context.Context, emailOrPhone, password string) (string, *domain.User, error) {
	user, err := s.store.Users().FindByIdentifier(ctx, strings.TrimSpace(emailOrPhone))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return token, user, nil
}

// GetProfile retrieves a user by ID
func (s *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateProfile applies a partial update. Email and phone changes are checked
// for uniqueness against other users.
func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, update ProfileUpdate) (*domain.User, error) {
	var user *domain.User

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		user, err = tx.Users().FindByID(ctx, userID)
		if err != nil {
			return err
		}

		if update.Email != nil {
			email := strings.TrimSpace(*update.Email)
			if err := validateEmail(email); err != nil {
				return err
			}
			user.Email = email
		}
		if update.Phone != nil {
			phone := strings.TrimSpace(*update.Phone)
			if phone == "" {
				return fmt.Errorf("%w: phone cannot be empty", domain.ErrInvalidInput)
			}
			user.Phone = phone
		}
		if update.PaymentMethod != nil {
			method := domain.PaymentMethod(*update.PaymentMethod)
			if method != "" && !method.Valid() {
				return fmt.Errorf("%w: unsupported payment method %q", domain.ErrInvalidInput, method)
			}
			user.PaymentMethod = method
		}
		setIfPresent(&user.FirstName, update.FirstName)
		setIfPresent(&user.LastName, update.LastName)
		setIfPresent(&user.Address, update.Address)
		setIfPresent(&user.City, update.City)
		setIfPresent(&user.Province, update.Province)
		setIfPresent(&user.PostalCode, update.PostalCode)

		return tx.Users().Update(ctx, user)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return user, nil
}

func setIfPresent(dst *string, value *string) {
	if value != nil {
		*dst = *value
	}
}

// ResetPassword overwrites the password of the user matching emailOrPhone.
// Knowing the identifier is enough, so every reset is logged at warn level.
func (s *userService) ResetPassword(ctx context.Context, emailOrPhone, newPassword string) error {
	if !s.auth.PasswordResetEnabled {
		return ErrPasswordResetDisabled
	}
	if newPassword == "" {
		return fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}

	user, err := s.store.Users().FindByIdentifier(ctx, strings.TrimSpace(emailOrPhone))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to find user: %w", err)
	}

	hashedPassword, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.store.Users().UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	logger.FromContext(ctx, s.logger).Warn("Password reset without proof of ownership",
		zap.String("user_id", user.ID.String()),
	)

	return nil
}

// ListUsers returns every account, newest first
func (s *userService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	users, err := s.store.Users().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// hashPassword hashes a password using bcrypt with cost factor 10
func (s *userService) hashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// verifyPassword verifies a password against a bcrypt hash
func (s *userService) verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// generateToken signs an HS256 token carrying the user ID and role
func (s *userService) generateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwt.Expiry())),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwt.Secret))
}
