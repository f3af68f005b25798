package auth

import (
	"context"

	"github.com/google/uuid"
)

// Auther ties the credential and token services together into the flows a
// transport exposes: register, login, refresh and logout.
type Auther struct {
	credentials *CredentialService
	tokens      *TokenService
	access      AccessTokenMinter
	logger      Logger
}

// NewAuthenticator returns a new Auther
func NewAuthenticator(credentials *CredentialService, tokens *TokenService, access AccessTokenMinter) *Auther {
	return &Auther{
		credentials: credentials,
		tokens:      tokens,
		access:      access,
		logger:      ResolveLogger("authenticator", nil),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Credentials returns the CredentialService used by this Auther
func (s *Auther) Credentials() *CredentialService {
	return s.credentials
}

// Tokens returns the refresh TokenService used by this Auther
func (s *Auther) Tokens() *TokenService {
	return s.tokens
}

// AccessTokens returns the access credential minter used by this Auther
func (s *Auther) AccessTokens() AccessTokenMinter {
	return s.access
}

// Register creates the account and signs it in straight away.
func (s *Auther) Register(ctx context.Context, req RegisterRequest) (*TokenPair, error) {
	account, err := s.credentials.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.issuePair(ctx, account)
}

// Login verifies the credentials and hands back an access and refresh
// token. The boolean is true when the account is locked.
func (s *Auther) Login(ctx context.Context, req LoginRequest) (*TokenPair, bool, error) {
	account, locked, err := s.credentials.Login(ctx, req)
	if err != nil {
		return nil, locked, err
	}

	pair, err := s.issuePair(ctx, account)
	if err != nil {
		return nil, false, err
	}
	return pair, false, nil
}

// Refresh mints a new access credential for a valid refresh token. The
// refresh token itself is not rotated. Owners that disappeared or were
// deactivated get the uniform credentials error.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	record, err := s.tokens.ValidateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	account, err := s.credentials.FindAccount(ctx, record.AccountID)
	if err != nil {
		if TextCodeOf(err) == TextCodeAccountNotFound {
			s.logger.Info("refresh rejected", "account_id", record.AccountID, "reason", "owner_missing")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !account.Active {
		s.logger.Info("refresh rejected", "account_id", record.AccountID, "reason", reasonInactive)
		return nil, ErrInvalidCredentials
	}

	access, expires, err := s.access.Mint(account.GetID())
	if err != nil {
		s.logger.Error("access token mint failed", "account_id", account.ID, "error", err)
		return nil, persistenceError(err)
	}

	return &TokenPair{
		Account:         account,
		AccessToken:     access,
		AccessExpiresAt: expires,
	}, nil
}

// Logout revokes the refresh token. Empty and unknown tokens are a no-op.
func (s *Auther) Logout(ctx context.Context, refreshToken string) error {
	return s.tokens.RevokeRefreshToken(ctx, refreshToken)
}

// AccountFromAccessToken verifies an access credential and loads its owner.
func (s *Auther) AccountFromAccessToken(ctx context.Context, raw string) (*Account, error) {
	claims, err := s.access.Verify(raw)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.AccountID())
	if err != nil {
		return nil, withCause(ErrAccessInvalid, err)
	}

	return s.credentials.FindAccount(ctx, id)
}

func (s *Auther) issuePair(ctx context.Context, account *Account) (*TokenPair, error) {
	access, accessExpires, err := s.access.Mint(account.GetID())
	if err != nil {
		s.logger.Error("access token mint failed", "account_id", account.ID, "error", err)
		return nil, persistenceError(err)
	}

	refresh, err := s.tokens.IssueRefreshToken(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		Account:          account,
		AccessToken:      access,
		AccessExpiresAt:  accessExpires,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}
