package v1

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/fiscalflow/internal/auth"
	"github.com/gosuda/fiscalflow/internal/domain"
)

type LoginInput struct {
	Body struct {
		Username string `json:"username" minLength:"1" maxLength:"64" doc:"Username"`
		Password string `json:"password" minLength:"1" maxLength:"128" doc:"Password"` //nolint:gosec // G117: login credential DTO
	}
}

type TokenBody struct {
	AccessToken  string `json:"access_token"`  //nolint:gosec // G117: auth response DTO
	RefreshToken string `json:"refresh_token"` //nolint:gosec // G117: auth response DTO
	ExpiresIn    int    `json:"expires_in" doc:"Access token lifetime in seconds"`
}

type LoginOutput struct {
	Body struct {
		TokenBody
		User *domain.Principal `json:"user"`
	}
}

type RefreshInput struct {
	Body struct {
		RefreshToken string `json:"refresh_token" minLength:"1" doc:"Refresh token"` //nolint:gosec // G117: token refresh DTO
	}
}

type RefreshOutput struct {
	Body TokenBody
}

type LogoutInput struct {
	Authorization string `header:"Authorization" doc:"Bearer access token to revoke"`
	Body          struct {
		RefreshToken string `json:"refresh_token,omitempty" doc:"Refresh token to revoke"` //nolint:gosec // G117: token DTO
	}
}

type LogoutOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

type MeOutput struct {
	Body *domain.Principal
}

func tokenBody(t *auth.Tokens) TokenBody {
	return TokenBody{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    int(t.ExpiresIn.Seconds()),
	}
}

// RegisterAuthRoutes registers the unauthenticated identity endpoints.
func RegisterAuthRoutes(api huma.API, authSvc AuthService) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login with username and password",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
		tokens, p, err := authSvc.Login(ctx, input.Body.Username, input.Body.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return nil, huma.Error401Unauthorized("invalid username or password")
			}
			return nil, huma.Error500InternalServerError("login failed", err)
		}

		out := &LoginOutput{}
		out.Body.TokenBody = tokenBody(tokens)
		out.Body.User = p
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "refresh-token",
		Method:      http.MethodPost,
		Path:        "/auth/refresh",
		Summary:     "Exchange a refresh token for a new token pair",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *RefreshInput) (*RefreshOutput, error) {
		tokens, err := authSvc.Refresh(ctx, input.Body.RefreshToken)
		if err != nil {
			return nil, huma.Error401Unauthorized("invalid or expired refresh token")
		}
		return &RefreshOutput{Body: tokenBody(tokens)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "Revoke the caller's tokens",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, input *LogoutInput) (*LogoutOutput, error) {
		var tokens []string
		if tok, ok := strings.CutPrefix(input.Authorization, "Bearer "); ok {
			tokens = append(tokens, tok)
		}
		tokens = append(tokens, input.Body.RefreshToken)
		if err := authSvc.Logout(ctx, tokens...); err != nil {
			return nil, huma.Error500InternalServerError("logout failed", err)
		}
		out := &LogoutOutput{}
		out.Body.Status = "logged_out"
		return out, nil
	})
}

// RegisterMeRoutes registers the current-principal endpoint. It must sit
// behind the auth middleware.
func RegisterMeRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current user",
		Tags:        []string{"Auth"},
	}, func(ctx context.Context, _ *struct{}) (*MeOutput, error) {
		p, err := principalFrom(ctx)
		if err != nil {
			return nil, err
		}
		return &MeOutput{Body: p}, nil
	})
}
