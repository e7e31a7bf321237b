package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/trainhub/tms/apperr"
	"github.com/trainhub/tms/models"
	"golang.org/x/crypto/bcrypt"
)

// AccountStore is the persistence surface the auth service needs.
// Satisfied by *repository.GORMRepository.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	SetRefreshToken(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, accountID, presentedHash, newHash string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, accountID string) error
}

type AuthService struct {
	accounts      AccountStore
	notifier      Notifier
	jwtSecret     []byte
	issuer        string
	audience      string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

type AccessClaims struct {
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func NewAuthService(accounts AccountStore, notifier Notifier, cfg JWTConfig) *AuthService {
	accessTTL := time.Duration(cfg.AccessTTLMinutes) * time.Minute
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &AuthService{
		accounts:      accounts,
		notifier:      notifier,
		jwtSecret:     []byte(cfg.Secret),
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		accessExpiry:  accessTTL,
		refreshExpiry: 7 * 24 * time.Hour, // 7 days
	}
}

// generateSecureToken generates a cryptographically secure random token
func generateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// hashToken creates a SHA256 hash of the token for secure storage
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Register creates a new account and issues the first token pair. Admin
// accounts are never self-registered; they come from the seeder or an
// existing admin.
func (s *AuthService) Register(ctx context.Context, email, password, fullName, role string) (*models.Account, *TokenPair, error) {
	parsedRole, err := models.ParseRole(role)
	if err != nil {
		return nil, nil, apperr.New(apperr.CodeValidation, "invalid role", err)
	}
	if parsedRole == models.RoleAdmin {
		return nil, nil, apperr.New(apperr.CodeForbidden, "admin accounts cannot be self-registered", nil)
	}
	if email == "" || password == "" {
		return nil, nil, apperr.New(apperr.CodeValidation, "email and password are required", nil)
	}

	existing, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, nil, apperr.New(apperr.CodeInternal, "failed to check existing account", err)
	}
	if existing != nil {
		return nil, nil, apperr.New(apperr.CodeConflict, "account already exists", nil)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, apperr.New(apperr.CodeInternal, "failed to hash password", err)
	}

	account := &models.Account{
		Email:    email,
		Password: string(hashedPassword),
		FullName: fullName,
		Role:     parsedRole.String(),
	}
	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, nil, apperr.New(apperr.CodeInternal, "failed to create account", err)
	}

	if s.notifier != nil {
		if err := s.notifier.Send(ctx, account.Email, "Welcome to TrainHub",
			"<p>Your account was created. You can now sign in.</p>"); err != nil {
			slog.Error("Failed to send welcome notification", "error", err, "account_id", account.ID)
		}
	}

	pair, err := s.issueTokens(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Account registered", "account_id", account.ID, "role", account.Role)
	return account, pair, nil
}

// Authenticate checks credentials and issues a fresh token pair. The
// stored refresh token is replaced on every successful login.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.Account, *TokenPair, error) {
	account, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, nil, apperr.New(apperr.CodeInternal, "failed to get account", err)
	}
	if account == nil {
		return nil, nil, apperr.New(apperr.CodeUnauthorized, "invalid credentials", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.Password), []byte(password)); err != nil {
		return nil, nil, apperr.New(apperr.CodeUnauthorized, "invalid credentials", nil)
	}

	pair, err := s.issueTokens(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Account logged in", "account_id", account.ID, "email", account.Email)
	return account, pair, nil
}

// ValidateAccessToken reports whether the token passes every check:
// signature, HS256 method, issuer, audience and expiry with zero leeway.
// Malformed input resolves to false, never to an error.
func (s *AuthService) ValidateAccessToken(token string) bool {
	_, err := s.parseClaims(token, true)
	return err == nil
}

// Refresh exchanges an expired access token plus the matching refresh
// token for a new pair. A still-valid access token is rejected: refresh
// is only for expired sessions. Rotation is a compare-and-swap against
// the single stored hash, so the old refresh value dies the moment a new
// pair is issued.
func (s *AuthService) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	claims, err := s.parseClaims(accessToken, false)
	if err != nil {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid access token", err)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.After(time.Now()) {
		return nil, apperr.New(apperr.CodeUnauthorized, "access token is still valid", nil)
	}

	account, err := s.accounts.GetAccountByID(ctx, claims.Subject)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to get account", err)
	}
	if account == nil {
		return nil, apperr.New(apperr.CodeUnauthorized, "account no longer exists", nil)
	}

	newRefresh, err := generateSecureToken()
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to generate refresh token", err)
	}
	rotated, err := s.accounts.RotateRefreshToken(ctx, account.ID,
		hashToken(refreshToken), hashToken(newRefresh), time.Now().Add(s.refreshExpiry))
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to rotate refresh token", err)
	}
	if !rotated {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid refresh token", nil)
	}

	access, err := s.generateAccessToken(account)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to generate access token", err)
	}
	slog.Info("Tokens refreshed", "account_id", account.ID)
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, nil
}

// Logout drops the stored refresh token so it can never be exchanged.
func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	if err := s.accounts.ClearRefreshToken(ctx, accountID); err != nil {
		return apperr.New(apperr.CodeInternal, "failed to clear refresh token", err)
	}
	slog.Info("Account logged out", "account_id", accountID)
	return nil
}

func (s *AuthService) issueTokens(ctx context.Context, account *models.Account) (*TokenPair, error) {
	access, err := s.generateAccessToken(account)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to generate access token", err)
	}
	refresh, err := generateSecureToken()
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to generate refresh token", err)
	}
	if err := s.accounts.SetRefreshToken(ctx, account.ID, hashToken(refresh), time.Now().Add(s.refreshExpiry)); err != nil {
		return nil, apperr.New(apperr.CodeInternal, "failed to store refresh token", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessExpiry.Seconds()),
	}, nil
}

func (s *AuthService) generateAccessToken(account *models.Account) (string, error) {
	now := time.Now()
	claims := &AccessClaims{
		Email:    account.Email,
		FullName: account.FullName,
		Role:     account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   account.ID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// parseClaims verifies the signature and, when validateClaims is set,
// issuer/audience/expiry with zero leeway. With validateClaims unset only
// the signature is checked, which is what the refresh path needs to read
// the subject out of an expired token.
func (s *AuthService) parseClaims(token string, validateClaims bool) (*AccessClaims, error) {
	claims := &AccessClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if validateClaims {
		opts = append(opts,
			jwt.WithIssuer(s.issuer),
			jwt.WithAudience(s.audience),
			jwt.WithLeeway(0),
			jwt.WithExpirationRequired(),
		)
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Middleware authenticates requests via the Authorization bearer header
// and stores the resulting ActorContext on the request context.
func (s *AuthService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		claims, err := s.parseClaims(token, true)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		role, err := models.ParseRole(claims.Role)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		actor := ActorContext{AccountID: claims.Subject, Role: role}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}
