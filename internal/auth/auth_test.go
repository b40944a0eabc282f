package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/AndyChoi4495/fragments/internal/protocol"
)

func TestHashEmail(t *testing.T) {
	a := HashEmail("user1@email.com")
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if HashEmail("  USER1@Email.com ") != a {
		t.Error("hash must ignore case and surrounding space")
	}
	if HashEmail("user2@email.com") == a {
		t.Error("different emails must hash differently")
	}
	if strings.Contains(a, "user1") {
		t.Error("hash leaks the email")
	}
}

func htpasswd(t *testing.T, users map[string]string) *Basic {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("# test users\n\n")
	for user, pass := range users {
		h, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		sb.WriteString(user + ":" + string(h) + "\n")
	}
	b, err := ParseHtpasswd(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("ParseHtpasswd: %v", err)
	}
	return b
}

func TestParseHtpasswdRejectsNonBcrypt(t *testing.T) {
	for _, in := range []string{
		"user1@email.com:{SHA}W6ph5Mm5Pz8GgiULbPgzG37mj9g=\n",
		"no-colon-here\n",
	} {
		if _, err := ParseHtpasswd(strings.NewReader(in)); err == nil {
			t.Errorf("expected error for %q", in)
		}
	}
}

func TestBasicAuthenticate(t *testing.T) {
	b := htpasswd(t, map[string]string{"user1@email.com": "password1"})

	tests := []struct {
		name       string
		user, pass string
		set        bool
		ok         bool
	}{
		{"valid", "user1@email.com", "password1", true, true},
		{"wrong password", "user1@email.com", "nope", true, false},
		{"unknown user", "ghost@email.com", "password1", true, false},
		{"no credentials", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/v1/fragments", nil)
			if tt.set {
				r.SetBasicAuth(tt.user, tt.pass)
			}
			email, err := b.Authenticate(r)
			if tt.ok && (err != nil || email != tt.user) {
				t.Errorf("got %q, %v", email, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("expected failure, got %q", email)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	b := htpasswd(t, map[string]string{"user1@email.com": "password1"})

	var seen *Owner
	h := Middleware(b)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetOwner(r.Context())
	}))

	r := httptest.NewRequest("GET", "/v1/fragments", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate challenge")
	}
	var body protocol.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "error" || body.Error.Code != 401 {
		t.Errorf("error body = %+v", body)
	}

	r = httptest.NewRequest("GET", "/v1/fragments", nil)
	r.SetBasicAuth("user1@email.com", "password1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen == nil || seen.ID != HashEmail("user1@email.com") || seen.Email != "user1@email.com" {
		t.Errorf("owner = %+v", seen)
	}
}

func TestOwnerIDWithoutAuth(t *testing.T) {
	if OwnerID(context.Background()) != "" {
		t.Error("expected empty owner id")
	}
	ctx := WithOwner(context.Background(), "a@b.c")
	if OwnerID(ctx) != HashEmail("a@b.c") {
		t.Error("WithOwner did not set the owner")
	}
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest("GET", "/v1/fragments", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestIssueAndValidateToken(t *testing.T) {
	b, err := NewBearer("s3cret", nil)
	if err != nil {
		t.Fatal(err)
	}

	token, expires, err := IssueToken("s3cret", "user1@email.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Errorf("expires too soon: %v", expires)
	}

	email, err := b.Authenticate(bearerRequest(token))
	if err != nil || email != "user1@email.com" {
		t.Errorf("Authenticate = %q, %v", email, err)
	}

	forged, _, _ := IssueToken("other", "user1@email.com", time.Hour)
	if _, err := b.Authenticate(bearerRequest(forged)); err == nil {
		t.Error("accepted token signed with the wrong secret")
	}

	expired, _, _ := IssueToken("s3cret", "user1@email.com", -time.Minute)
	if _, err := b.Authenticate(bearerRequest(expired)); err == nil {
		t.Error("accepted expired token")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Email: "user1@email.com"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := b.Authenticate(bearerRequest(unsigned)); err == nil {
		t.Error("accepted unsigned token")
	}

	if _, err := b.Authenticate(httptest.NewRequest("GET", "/", nil)); err != ErrUnauthenticated {
		t.Errorf("missing token: %v", err)
	}
}

func TestNewBearerNeedsAKey(t *testing.T) {
	if _, err := NewBearer("", nil); err == nil {
		t.Error("expected error without secret or OIDC")
	}
}

func TestOIDCToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	const issuer = "https://idp.example.com"
	verifier := oidc.NewVerifier(issuer, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}},
		&oidc.Config{ClientID: "fragments-ui"})
	provider := newOIDCProvider(verifier, OIDCConfig{IssuerURL: issuer, ClientID: "fragments-ui"})

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   issuer,
			"aud":   "fragments-ui",
			"sub":   "abc",
			"email": "user1@email.com",
			"exp":   time.Now().Add(time.Hour).Unix(),
			"iat":   time.Now().Unix(),
		}
	}

	b, err := NewBearer("", provider)
	if err != nil {
		t.Fatal(err)
	}

	email, err := b.Authenticate(bearerRequest(sign(base())))
	if err != nil || email != "user1@email.com" {
		t.Errorf("valid id token: %q, %v", email, err)
	}

	wrongAud := base()
	wrongAud["aud"] = "someone-else"
	if _, err := b.Authenticate(bearerRequest(sign(wrongAud))); err == nil {
		t.Error("accepted token for another client")
	}

	noEmail := base()
	delete(noEmail, "email")
	if _, err := b.Authenticate(bearerRequest(sign(noEmail))); err == nil {
		t.Error("accepted token without email")
	}

	unverified := base()
	unverified["email_verified"] = false
	if _, err := b.Authenticate(bearerRequest(sign(unverified))); err == nil {
		t.Error("accepted unverified email")
	}
}
