package auth

import (
	"context"
	"fmt"
	"strings"

	"circlenet/backend/internal/graph"
	"circlenet/backend/internal/store"
	apperrors "circlenet/backend/pkg/errors"
	"circlenet/backend/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OTP purposes
const (
	PurposeVerify = "verify"
	PurposeReset  = "reset"
)

// AccountStore is the relational side of a user
type AccountStore interface {
	CreateAccount(ctx context.Context, a *store.Account) error
	GetAccountByID(ctx context.Context, id string) (*store.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*store.Account, error)
	GetAccountByIdentifier(ctx context.Context, identifier string) (*store.Account, error)
	IdentityTaken(ctx context.Context, username, email string) (bool, bool, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	MarkVerified(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string) error
	DeleteAccount(ctx context.Context, id string) error
}

// UserGraph is the graph side of a user
type UserGraph interface {
	CreateUser(ctx context.Context, user *graph.User) error
	DeleteUserGraph(ctx context.Context, uid string) error
	GetProfile(ctx context.Context, userUID string) (*graph.Profile, error)
}

// CodeStore keeps one-time codes
type CodeStore interface {
	Issue(ctx context.Context, purpose, email, code string) error
	Verify(ctx context.Context, purpose, email, code string) error
}

// SignupInput holds the fields of a new account
type SignupInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Me is the signed-in user's account with their profile
type Me struct {
	Account *store.Account `json:"account"`
	Profile *graph.Profile `json:"profile"`
}

// Service implements signup, login and account recovery
type Service struct {
	accounts AccountStore
	graph    UserGraph
	codes    CodeStore
	mailer   Mailer
	tokens   *TokenManager
	logger   *zap.Logger
}

// NewService wires the auth service
func NewService(accounts AccountStore, users UserGraph, codes CodeStore, mailer Mailer, tokens *TokenManager) *Service {
	return &Service{
		accounts: accounts,
		graph:    users,
		codes:    codes,
		mailer:   mailer,
		tokens:   tokens,
		logger:   logger.Named("auth"),
	}
}

// Tokens exposes the token manager for the HTTP middleware
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// Signup creates the account row and the graph user. The graph write is
// compensated by deleting the row when it fails.
func (s *Service) Signup(ctx context.Context, in SignupInput) (string, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	if err := ValidateUsername(in.Username); err != nil {
		return "", err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return "", err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return "", err
	}

	usernameTaken, emailTaken, err := s.accounts.IdentityTaken(ctx, in.Username, in.Email)
	if err != nil {
		return "", err
	}
	if usernameTaken {
		return "", apperrors.Conflict("username already taken")
	}
	if emailTaken {
		return "", apperrors.Conflict("email already registered")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return "", err
	}

	account := &store.Account{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return "", err
	}

	user := &graph.User{
		UID:       account.ID,
		Username:  account.Username,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
	}
	if err := s.graph.CreateUser(ctx, user); err != nil {
		s.logger.Error("Graph user creation failed, rolling back account",
			zap.String("user_id", account.ID),
			zap.Error(err),
		)
		if delErr := s.accounts.DeleteAccount(ctx, account.ID); delErr != nil {
			s.logger.Error("Failed to roll back account",
				zap.String("user_id", account.ID),
				zap.Error(delErr),
			)
		}
		return "", err
	}

	if err := s.SendOTP(ctx, account.Email, PurposeVerify); err != nil {
		// The account exists; the user can request another code.
		s.logger.Warn("Failed to send verification code",
			zap.String("user_id", account.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("User signed up", zap.String("user_id", account.ID), zap.String("username", account.Username))
	return account.ID, nil
}

// Login checks credentials by username or email and issues tokens
func (s *Service) Login(ctx context.Context, identifier, password string) (*TokenPair, *store.Account, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, nil, apperrors.Validation("identifier and password are required")
	}

	account, err := s.accounts.GetAccountByIdentifier(ctx, identifier)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
			return nil, nil, apperrors.Unauthorized("invalid credentials")
		}
		return nil, nil, err
	}
	if !CheckPassword(account.PasswordHash, password) {
		return nil, nil, apperrors.Unauthorized("invalid credentials")
	}

	if err := s.accounts.TouchLastLogin(ctx, account.ID); err != nil {
		s.logger.Warn("Failed to record last login", zap.String("user_id", account.ID), zap.Error(err))
	}

	pair, err := s.tokens.Issue(account.ID, account.Username)
	if err != nil {
		return nil, nil, err
	}
	return pair, account, nil
}

// Refresh exchanges a refresh token for a new pair
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Validate(refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	account, err := s.accounts.GetAccountByID(ctx, claims.UserID)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
			return nil, apperrors.Unauthorized("account no longer exists")
		}
		return nil, err
	}
	return s.tokens.Issue(account.ID, account.Username)
}

// SendOTP issues and mails a code for purpose. Unknown emails get the same
// response as known ones.
func (s *Service) SendOTP(ctx context.Context, email, purpose string) error {
	email = normalizeEmail(email)
	if purpose != PurposeVerify && purpose != PurposeReset {
		return apperrors.Validation("purpose must be %q or %q", PurposeVerify, PurposeReset)
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}

	if _, err := s.accounts.GetAccountByEmail(ctx, email); err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
			s.logger.Debug("OTP requested for unknown email", zap.String("purpose", purpose))
			return nil
		}
		return err
	}

	code, err := NewCode()
	if err != nil {
		return err
	}
	if err := s.codes.Issue(ctx, purpose, email, code); err != nil {
		return err
	}

	subject, body := otpMessage(purpose, code)
	if err := s.mailer.Send(ctx, email, subject, body); err != nil {
		s.logger.Error("Failed to mail code", zap.String("purpose", purpose), zap.Error(err))
		return fmt.Errorf("deliver %s code: %w", purpose, err)
	}
	return nil
}

func otpMessage(purpose, code string) (string, string) {
	if purpose == PurposeReset {
		return "Reset your circlenet password",
			fmt.Sprintf("Your password reset code is %s. It expires shortly; ignore this email if you did not ask for it.", code)
	}
	return "Verify your circlenet account",
		fmt.Sprintf("Your verification code is %s.", code)
}

// VerifyOTP consumes a verify code and marks the account verified
func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
			return apperrors.Validation("verification code expired or was never requested")
		}
		return err
	}
	if err := s.codes.Verify(ctx, PurposeVerify, email, strings.TrimSpace(code)); err != nil {
		return err
	}
	if err := s.accounts.MarkVerified(ctx, account.ID); err != nil {
		return err
	}
	s.logger.Info("Account verified", zap.String("user_id", account.ID))
	return nil
}

// ResetPassword consumes a reset code and stores a new password hash
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = normalizeEmail(email)
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
			return apperrors.Validation("verification code expired or was never requested")
		}
		return err
	}
	if err := s.codes.Verify(ctx, PurposeReset, email, strings.TrimSpace(code)); err != nil {
		return err
	}
	return s.setPassword(ctx, account.ID, newPassword)
}

// ChangePassword replaces the password of a signed-in user
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	account, err := s.accounts.GetAccountByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(account.PasswordHash, oldPassword) {
		return apperrors.Unauthorized("current password is incorrect")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	if oldPassword == newPassword {
		return apperrors.Validation("new password must differ from the current one")
	}
	return s.setPassword(ctx, userID, newPassword)
}

func (s *Service) setPassword(ctx context.Context, userID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.accounts.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return err
	}
	s.logger.Info("Password updated", zap.String("user_id", userID))
	return nil
}

// DeleteAccount removes the user's graph subtree, then the account row
func (s *Service) DeleteAccount(ctx context.Context, userID, password string) error {
	account, err := s.accounts.GetAccountByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(account.PasswordHash, password) {
		return apperrors.Unauthorized("password is incorrect")
	}
	if err := s.graph.DeleteUserGraph(ctx, userID); err != nil && !apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound) {
		return err
	}
	if err := s.accounts.DeleteAccount(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("Account deleted", zap.String("user_id", userID))
	return nil
}

// Me returns the account with its profile
func (s *Service) Me(ctx context.Context, userID string) (*Me, error) {
	account, err := s.accounts.GetAccountByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.graph.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Me{Account: account, Profile: profile}, nil
}
