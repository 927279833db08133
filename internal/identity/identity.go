package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"
	"tableside/internal/match"
)

var (
	ErrMissingCode   = errors.New("missing authorization code")
	ErrNotConfigured = errors.New("oauth client not configured")
	ErrExchange      = errors.New("token exchange failed")
)

// UserFetcher loads the user that owns an access token.
type UserFetcher func(ctx context.Context, accessToken string) (*discordgo.User, error)

// Provider exchanges activity authorization codes for tokens and resolves
// tokens to players.
type Provider struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
	HTTP         *http.Client
	FetchUser    UserFetcher
}

// New returns a Provider talking to Discord.
func New(clientID, clientSecret, redirectURI string) *Provider {
	return &Provider{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		TokenURL:     discordgo.EndpointOauth2 + "token",
		HTTP:         &http.Client{Timeout: 10 * time.Second},
		FetchUser:    fetchDiscordUser,
	}
}

// Exchange trades an authorization code for an access token.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrMissingCode
	}
	if p.ClientID == "" || p.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	if p.HTTP != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.HTTP)
	}
	tok, err := p.oauth().Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	return tok, nil
}

func (p *Provider) oauth() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Scopes:       []string{"identify"},
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// Resolve maps the owner of accessToken to a lobby player.
func (p *Provider) Resolve(ctx context.Context, accessToken string) (match.Player, error) {
	u, err := p.FetchUser(ctx, accessToken)
	if err != nil {
		return match.Player{}, err
	}
	return PlayerFromUser(u), nil
}

// PlayerFromUser prefers the global display name and falls back to the
// username.
func PlayerFromUser(u *discordgo.User) match.Player {
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return match.Player{ID: u.ID, Name: name, Avatar: u.AvatarURL("")}
}

func fetchDiscordUser(ctx context.Context, accessToken string) (*discordgo.User, error) {
	s, err := discordgo.New("Bearer " + accessToken)
	if err != nil {
		return nil, err
	}
	return s.User("@me", discordgo.WithContext(ctx))
}
