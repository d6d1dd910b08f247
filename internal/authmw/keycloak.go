package authmw

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/sirupsen/logrus"
)

type ServiceConfig struct {
	Address      string // host:port or full URL of the identity provider
	Realm        string
	ClientID     string
	ClientSecret string
	Issuer       string
	Audience     string
}

// Service handles the password login of the front and validates the tokens it hands out.
type Service struct {
	Client       *gocloak.GoCloak
	Realm        string
	clientID     string
	clientSecret string
	log          *logrus.Logger

	KCAuth *KeycloakAuth
}

func baseURL(address string) string {
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return strings.TrimRight(address, "/")
	}
	return "http://" + strings.TrimRight(address, "/")
}

func NewService(cfg ServiceConfig, log *logrus.Logger) (*Service, error) {
	base := baseURL(cfg.Address)
	client := gocloak.NewClient(base)

	kcAuth, err := NewKeycloakAuth(
		fmt.Sprintf("%s/realms/%s/protocol/openid-connect/certs", base, cfg.Realm),
		cfg.Issuer,
		cfg.Audience,
		cfg.ClientID,
	)
	if err != nil {
		log.Errorf("failed to instantiate the kc authenticator middleware: %v", err)
		return nil, err
	}

	s := &Service{
		Client:       client,
		Realm:        cfg.Realm,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		log:          log,
		KCAuth:       kcAuth,
	}

	if err := s.selfTest(); err != nil {
		kcAuth.Close()
		return nil, err
	}

	return s, nil
}

func (s *Service) selfTest() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jwt, err := s.Client.LoginClient(ctx, s.clientID, s.clientSecret, s.Realm)
	if err != nil {
		return fmt.Errorf("keycloak auth failed: %w", err)
	}

	if _, err = s.Client.GetRealm(ctx, jwt.AccessToken, s.Realm); err != nil {
		return fmt.Errorf("keycloak permission check failed: %w", err)
	}

	s.log.Infof("keycloak realm %q reachable", s.Realm)
	return nil
}

func (s *Service) Close() {
	s.KCAuth.Close()
}

func (s *Service) LoginUser(ctx context.Context, username, password string) (*gocloak.JWT, error) {
	return s.Client.Login(ctx, s.clientID, s.clientSecret, s.Realm, username, password)
}

func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*gocloak.JWT, error) {
	return s.Client.RefreshToken(ctx, refreshToken, s.clientID, s.clientSecret, s.Realm)
}

// Logout ends the session the refresh token belongs to.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.Client.Logout(ctx, s.clientID, s.clientSecret, s.Realm, refreshToken)
}
