package security

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"github.com/Tomwslape5638/vector/errors"
)

// AuthStrategy selects how credentials are presented to the remote peer.
type AuthStrategy string

// Supported strategies
const (
	AuthBasic  AuthStrategy = "basic"
	AuthBearer AuthStrategy = "bearer"
)

// AuthConfig holds HTTP authentication credentials. Each secret may be given inline or
// through the name of an environment variable that holds it.
type AuthConfig struct {
	Strategy    AuthStrategy `json:"strategy" yaml:"strategy"`
	User        string       `json:"user,omitempty" yaml:"user,omitempty"`
	UserEnv     string       `json:"user_env,omitempty" yaml:"user_env,omitempty"`
	Password    string       `json:"password,omitempty" yaml:"password,omitempty"`
	PasswordEnv string       `json:"password_env,omitempty" yaml:"password_env,omitempty"`
	Token       string       `json:"token,omitempty" yaml:"token,omitempty"`
	TokenEnv    string       `json:"token_env,omitempty" yaml:"token_env,omitempty"`
}

// Validate checks that the strategy is known and its credentials are present
func (a *AuthConfig) Validate() error {
	if a == nil {
		return nil
	}

	switch a.Strategy {
	case AuthBasic:
		if a.user() == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "AuthConfig", "Validate", "basic auth user")
		}
	case AuthBearer:
		if a.token() == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "AuthConfig", "Validate", "bearer token")
		}
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown auth strategy %q", errors.ErrInvalidConfig, a.Strategy),
			"AuthConfig", "Validate", "strategy check")
	}
	return nil
}

// Authorization returns the value of the Authorization header, or "" when no
// credentials are configured.
func (a *AuthConfig) Authorization() string {
	if a == nil {
		return ""
	}

	switch a.Strategy {
	case AuthBasic:
		creds := a.user() + ":" + a.password()
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	case AuthBearer:
		return "Bearer " + a.token()
	default:
		return ""
	}
}

// Apply sets the Authorization header on h
func (a *AuthConfig) Apply(h http.Header) {
	if v := a.Authorization(); v != "" {
		h.Set("Authorization", v)
	}
}

func (a *AuthConfig) user() string     { return valueOrEnv(a.User, a.UserEnv) }
func (a *AuthConfig) password() string { return valueOrEnv(a.Password, a.PasswordEnv) }
func (a *AuthConfig) token() string    { return valueOrEnv(a.Token, a.TokenEnv) }

func valueOrEnv(value, env string) string {
	if value != "" {
		return value
	}
	if env != "" {
		return os.Getenv(env)
	}
	return ""
}
