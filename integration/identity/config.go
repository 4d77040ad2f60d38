package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds identity settings loaded from the environment.
type Config struct {
	// IssuerURL enables OIDC discovery and token verification.
	IssuerURL    string   `env:"IDENTITY_ISSUER_URL"`
	TokenURL     string   `env:"IDENTITY_TOKEN_URL"`
	ClientID     string   `env:"IDENTITY_CLIENT_ID"`
	ClientSecret string   `env:"IDENTITY_CLIENT_SECRET"`
	Scopes       []string `env:"IDENTITY_SCOPES" envSeparator:","`

	// One of AccessToken, RefreshToken or ClientSecret supplies credentials,
	// checked in that order.
	AccessToken  string `env:"IDENTITY_ACCESS_TOKEN"`
	RefreshToken string `env:"IDENTITY_REFRESH_TOKEN"`

	RefreshLeeway time.Duration `env:"IDENTITY_REFRESH_LEEWAY" envDefault:"1m"`
}

// NewFromConfig builds a token source from cfg and wraps it in a provider.
// Explicit options override cfg.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*TokenProvider, error) {
	tokenURL := cfg.TokenURL
	base := []Option{WithRefreshLeeway(cfg.RefreshLeeway)}

	if cfg.IssuerURL != "" {
		p, err := oidc.NewProvider(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
		}
		if tokenURL == "" {
			tokenURL = p.Endpoint().TokenURL
		}
		base = append(base, WithVerifier(p.Verifier(&oidc.Config{
			ClientID:          cfg.ClientID,
			SkipClientIDCheck: cfg.ClientID == "",
		})))
	}

	var source oauth2.TokenSource
	switch {
	case cfg.AccessToken != "":
		source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	case cfg.RefreshToken != "":
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
			Scopes:       cfg.Scopes,
		}
		source = oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	case cfg.ClientSecret != "":
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       cfg.Scopes,
		}
		source = cc.TokenSource(ctx)
	default:
		return nil, ErrNoCredentials
	}

	return NewTokenProvider(source, append(base, opts...)...)
}
