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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reperrors "github.com/tombee/reportpull/pkg/errors"
)

// testKeyPEM generates a throwaway RSA key in PKCS#1 PEM form.
func testKeyPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return string(pem.EncodeToMemory(block)), key
}

func serviceAccountJSON(t *testing.T, overrides map[string]any) string {
	t.Helper()
	pemKey, _ := testKeyPEM(t)

	fields := map[string]any{
		"type":           "service_account",
		"project_id":     "reportpull-test",
		"private_key_id": "kid-1",
		"private_key":    pemKey,
		"client_email":   "extract@reportpull-test.iam.gserviceaccount.com",
		"client_id":      "1234567890",
		"auth_uri":       "https://accounts.google.com/o/oauth2/auth",
		"token_uri":      "https://oauth2.googleapis.com/token",
	}
	for k, v := range overrides {
		if v == nil {
			delete(fields, k)
		} else {
			fields[k] = v
		}
	}

	data, err := json.Marshal(fields)
	require.NoError(t, err)
	return string(data)
}

func TestResolveServiceAccountFullFlow(t *testing.T) {
	pemKey, key := testKeyPEM(t)

	var gotGrant, gotAssertion string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotGrant = r.PostFormValue("grant_type")
		gotAssertion = r.PostFormValue("assertion")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-abc",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	content := serviceAccountJSON(t, map[string]any{
		"private_key": pemKey,
		"token_uri":   server.URL,
	})
	path := writeFile(t, "sa.json", content)

	issued := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	r := &Resolver{now: func() time.Time { return issued }}

	cred, err := r.Resolve(context.Background(), Descriptor{
		Kind:  KindServiceAccount,
		Path:  path,
		Scope: "https://www.googleapis.com/auth/analytics.readonly",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer at-abc", cred.Headers.Get("Authorization"))
	assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", gotGrant)

	// The assertion must be a compact JWT: three unpadded base64url segments.
	segments := strings.Split(gotAssertion, ".")
	require.Len(t, segments, 3)
	for _, segment := range segments {
		assert.NotContains(t, segment, "=")
	}

	// Verify with the same clock the resolver minted against, so the
	// fixed issue date stays valid no matter when the test runs.
	parser := jwt.NewParser(jwt.WithTimeFunc(func() time.Time { return issued }))
	token, err := parser.Parse(gotAssertion, func(tok *jwt.Token) (any, error) {
		require.Equal(t, "RS256", tok.Method.Alg())
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "extract@reportpull-test.iam.gserviceaccount.com", claims["iss"])
	assert.Equal(t, "https://www.googleapis.com/auth/analytics.readonly", claims["scope"])
	assert.Equal(t, server.URL, claims["aud"])
	assert.Equal(t, float64(issued.Unix()), claims["iat"])
	assert.Equal(t, float64(issued.Add(time.Hour).Unix()), claims["exp"])

	require.NotNil(t, cred.TokenSource)
	got, err := cred.TokenSource.Token()
	require.NoError(t, err)
	assert.Equal(t, "at-abc", got.AccessToken)
}

func TestResolveServiceAccountMissingFields(t *testing.T) {
	required := []string{
		"type", "project_id", "private_key_id", "private_key",
		"client_email", "client_id", "auth_uri", "token_uri",
	}

	r := &Resolver{}
	for _, field := range required {
		t.Run("missing "+field, func(t *testing.T) {
			content := serviceAccountJSON(t, map[string]any{field: nil})
			path := writeFile(t, "sa.json", content)

			_, err := r.Resolve(context.Background(), Descriptor{Kind: KindServiceAccount, Path: path})

			var credErr *reperrors.CredentialError
			require.ErrorAs(t, err, &credErr)
			assert.Contains(t, credErr.Reason, field)
		})
	}
}

func TestResolveServiceAccountWrongType(t *testing.T) {
	content := serviceAccountJSON(t, map[string]any{"type": "authorized_user"})
	path := writeFile(t, "sa.json", content)

	r := &Resolver{}
	_, err := r.Resolve(context.Background(), Descriptor{Kind: KindServiceAccount, Path: path})

	var credErr *reperrors.CredentialError
	require.ErrorAs(t, err, &credErr)
	assert.Contains(t, credErr.Reason, "service_account")
}

func TestResolveServiceAccountBadKey(t *testing.T) {
	content := serviceAccountJSON(t, map[string]any{"private_key": "not a pem key"})
	path := writeFile(t, "sa.json", content)

	r := &Resolver{}
	_, err := r.Resolve(context.Background(), Descriptor{Kind: KindServiceAccount, Path: path})

	var credErr *reperrors.CredentialError
	require.ErrorAs(t, err, &credErr)
}

func TestExchangeErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		status   int
		wantMsg  string
	}{
		{
			name:     "error field",
			response: `{"error": "invalid_grant", "error_description": "Invalid JWT signature."}`,
			status:   http.StatusBadRequest,
			wantMsg:  "invalid_grant",
		},
		{
			name:     "no access token",
			response: `{"token_type": "Bearer"}`,
			status:   http.StatusOK,
			wantMsg:  "no access_token",
		},
		{
			name:     "non-json response",
			response: `<html>gateway error</html>`,
			status:   http.StatusBadGateway,
			wantMsg:  "not valid JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pemKey, _ := testKeyPEM(t)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.response))
			}))
			defer server.Close()

			content := serviceAccountJSON(t, map[string]any{
				"private_key": pemKey,
				"token_uri":   server.URL,
			})
			path := writeFile(t, "sa.json", content)

			r := &Resolver{}
			_, err := r.Resolve(context.Background(), Descriptor{Kind: KindServiceAccount, Path: path})

			var exchErr *reperrors.TokenExchangeError
			require.ErrorAs(t, err, &exchErr)
			assert.Contains(t, exchErr.Message, tt.wantMsg)
		})
	}
}
