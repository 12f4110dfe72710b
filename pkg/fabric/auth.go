package fabric

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider supplies a bearer token for Fabric requests.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// EnvStaticToken names the environment variable carrying a pre-acquired
// bearer token, checked after the client secret in the chain.
const EnvStaticToken = "FABRIC_TOKEN"

// tokenExpirySkew refreshes tokens this long before their actual expiry.
const tokenExpirySkew = 5 * time.Minute

const defaultAuthorityHost = "https://login.microsoftonline.com"

// DefaultScope is the Fabric API scope for the client-credentials grant.
const DefaultScope = "https://api.fabric.microsoft.com/.default"

// Credentials selects the token source. The chain is: client secret when
// tenant/client/secret are all set, then a static token from the
// environment, then an interactive browser flow when enabled, and finally
// the platform default credential.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// UseInteractiveAuth opens a browser sign-in when no secret or static
	// token is available.
	UseInteractiveAuth bool
	// Scopes defaults to the Fabric API scope.
	Scopes []string
	// AuthorityHost defaults to the public Microsoft identity endpoint.
	AuthorityHost string
}

// NewTokenProvider resolves the credential chain. The returned provider
// caches tokens until five minutes before expiry; at most one refresh is in
// flight at a time.
func NewTokenProvider(creds Credentials) (TokenProvider, error) {
	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}

	if creds.TenantID != "" && creds.ClientID != "" && creds.ClientSecret != "" {
		host := creds.AuthorityHost
		if host == "" {
			host = defaultAuthorityHost
		}
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", host, creds.TenantID),
			Scopes:       scopes,
		}
		return newCachedProvider(func(ctx context.Context) (string, time.Time, error) {
			tok, err := cc.Token(ctx)
			if err != nil {
				return "", time.Time{}, fmt.Errorf("client-credentials token: %w", err)
			}
			return tok.AccessToken, tok.Expiry, nil
		}), nil
	}

	if raw := os.Getenv(EnvStaticToken); raw != "" {
		expiry := jwtExpiry(raw)
		return newCachedProvider(func(context.Context) (string, time.Time, error) {
			return raw, expiry, nil
		}), nil
	}

	if creds.UseInteractiveAuth {
		cred, err := azidentity.NewInteractiveBrowserCredential(&azidentity.InteractiveBrowserCredentialOptions{
			TenantID: creds.TenantID,
			ClientID: creds.ClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("interactive browser credential: %w", err)
		}
		return azureProvider(cred, scopes), nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	return azureProvider(cred, scopes), nil
}

// azureProvider adapts an azidentity credential to the cached provider. The
// browser (or managed-identity probe) only engages at the first request.
func azureProvider(cred azcore.TokenCredential, scopes []string) TokenProvider {
	return newCachedProvider(func(ctx context.Context) (string, time.Time, error) {
		tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: scopes})
		if err != nil {
			return "", time.Time{}, fmt.Errorf("azure credential token: %w", err)
		}
		return tok.Token, tok.ExpiresOn, nil
	})
}

// jwtExpiry reads the exp claim without verifying the signature; the token
// is only inspected for cache lifetime, never trusted locally.
func jwtExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Now().Add(time.Hour)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Now().Add(time.Hour)
	}
	return exp.Time
}

type cachedProvider struct {
	fetch func(ctx context.Context) (string, time.Time, error)
	now   func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func newCachedProvider(fetch func(ctx context.Context) (string, time.Time, error)) *cachedProvider {
	return &cachedProvider{fetch: fetch, now: time.Now}
}

func (p *cachedProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.expiry.Add(-tokenExpirySkew)) {
		return p.token, nil
	}
	token, expiry, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.expiry = expiry
	return token, nil
}

// StaticTokenProvider wraps a fixed token, mainly for tests and short-lived
// scripts.
func StaticTokenProvider(token string) TokenProvider {
	return staticToken(token)
}

type staticToken string

func (t staticToken) Token(context.Context) (string, error) { return string(t), nil }
