// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	reperrors "github.com/tombee/reportpull/pkg/errors"
)

// jwtBearerGrant is the grant type for the self-signed assertion exchange.
const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// assertionLifetime is how long a minted assertion remains valid.
const assertionLifetime = time.Hour

// requiredServiceAccountFields is the field set a service-account file must
// carry before any key parsing is attempted.
var requiredServiceAccountFields = []string{
	"type",
	"project_id",
	"private_key_id",
	"private_key",
	"client_email",
	"client_id",
	"auth_uri",
	"token_uri",
}

// serviceAccount is the decoded service-account key file.
type serviceAccount struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	AuthURI      string `json:"auth_uri"`
	TokenURI     string `json:"token_uri"`
}

// resolveServiceAccount mints an RS256 assertion from the service-account
// file and exchanges it for a short-lived access token.
func (r *Resolver) resolveServiceAccount(ctx context.Context, d Descriptor) (*Credential, error) {
	sa, err := loadServiceAccount(d.Path)
	if err != nil {
		return nil, err
	}

	assertion, err := r.mintAssertion(sa, d)
	if err != nil {
		return nil, err
	}

	token, err := r.exchangeAssertion(ctx, sa.TokenURI, assertion)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token.AccessToken)
	return &Credential{
		Headers:     headers,
		TokenSource: oauth2.StaticTokenSource(token),
	}, nil
}

// loadServiceAccount reads and validates the service-account key file.
func loadServiceAccount(path string) (*serviceAccount, error) {
	fields, err := readJSONFile(path)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range requiredServiceAccountFields {
		if value, ok := fields[name].(string); !ok || value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &reperrors.CredentialError{
			Source: path,
			Reason: fmt.Sprintf("service account file is missing fields: %s", strings.Join(missing, ", ")),
		}
	}

	if fields["type"] != "service_account" {
		return nil, &reperrors.CredentialError{
			Source: path,
			Reason: fmt.Sprintf("type must be %q, got %q", "service_account", fields["type"]),
		}
	}

	return &serviceAccount{
		Type:         fields["type"].(string),
		ProjectID:    fields["project_id"].(string),
		PrivateKeyID: fields["private_key_id"].(string),
		PrivateKey:   fields["private_key"].(string),
		ClientEmail:  fields["client_email"].(string),
		ClientID:     fields["client_id"].(string),
		AuthURI:      fields["auth_uri"].(string),
		TokenURI:     fields["token_uri"].(string),
	}, nil
}

// mintAssertion constructs and signs the header.claim.signature compact JWT.
// The segments are base64url-encoded without padding and the signature is
// RSA-SHA256 over header.claim, all of which jwt.SignedString produces.
func (r *Resolver) mintAssertion(sa *serviceAccount, d Descriptor) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return "", &reperrors.CredentialError{
			Source: d.Path,
			Reason: "private_key is not a valid PEM RSA key",
			Cause:  err,
		}
	}

	audience := d.Audience
	if audience == "" {
		audience = sa.TokenURI
	}

	now := time.Now
	if r.now != nil {
		now = r.now
	}
	issuedAt := now()

	claims := jwt.MapClaims{
		"iss":   sa.ClientEmail,
		"scope": d.Scope,
		"aud":   audience,
		"exp":   issuedAt.Add(assertionLifetime).Unix(),
		"iat":   issuedAt.Unix(),
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", &reperrors.CredentialError{
			Source: d.Path,
			Reason: "failed to sign assertion",
			Cause:  err,
		}
	}

	return assertion, nil
}

// exchangeAssertion POSTs the JWT bearer grant to the token endpoint.
func (r *Resolver) exchangeAssertion(ctx context.Context, endpoint, assertion string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &reperrors.TokenExchangeError{Endpoint: endpoint, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := r.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &reperrors.TokenExchangeError{Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	var payload struct {
		AccessToken      string `json:"access_token"`
		TokenType        string `json:"token_type"`
		ExpiresIn        int64  `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &reperrors.TokenExchangeError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    "token endpoint response is not valid JSON",
		}
	}

	if payload.Error != "" {
		message := payload.Error
		if payload.ErrorDescription != "" {
			message = fmt.Sprintf("%s: %s", payload.Error, payload.ErrorDescription)
		}
		return nil, &reperrors.TokenExchangeError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	if payload.AccessToken == "" {
		return nil, &reperrors.TokenExchangeError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    "token endpoint returned no access_token",
		}
	}

	token := &oauth2.Token{
		AccessToken: payload.AccessToken,
		TokenType:   payload.TokenType,
	}
	if payload.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token, nil
}
