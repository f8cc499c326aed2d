// Package authsession issues and validates the two kinds of signing
// tokens OpenGoat needs: short-lived tokens for the OpenClaw gateway
// connect handshake (an alternative to GWClient's raw HMAC signature,
// carried in ConnectParams.Token), and longer-lived UI session tokens
// backing the authentication settings block. Neither token scheme
// implies an HTTP router lives in this module — the facade only mints
// and validates tokens so an external router can enforce them.
package authsession

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"opengoat/internal/domain"
	"opengoat/internal/ports"
)

const keyFileName = "auth.key"

// gatewayConnectTTL bounds how long a gateway connect token is valid
// for, matching the lifetime of a single connect.challenge round trip.
const gatewayConnectTTL = 30 * time.Second

// uiSessionTTL is the default lifetime of a UI session token.
const uiSessionTTL = 24 * time.Hour

// Manager signs and validates HMAC-SHA256 JWTs using a key persisted
// at <home>/auth.key, generated on first use.
type Manager struct {
	fs    ports.FilesystemPort
	paths ports.PathPort
	key   []byte
}

// gatewayClaims identifies a device to the OpenClaw gateway.
type gatewayClaims struct {
	DeviceID string `json:"deviceId"`
	jwt.RegisteredClaims
}

// sessionClaims identifies a logged-in UI session.
type sessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// New loads (or generates and persists) the signing key at
// <home>/auth.key.
func New(fs ports.FilesystemPort, paths ports.PathPort) (*Manager, error) {
	path := paths.Join(keyFileName)
	if fs.Exists(path) {
		data, err := fs.ReadFile(path)
		if err != nil {
			return nil, domain.WrapError(domain.KindFatal, "read auth key", err)
		}
		key, err := hex.DecodeString(string(data))
		if err != nil {
			return nil, domain.WrapError(domain.KindFatal, "decode auth key", err)
		}
		return &Manager{fs: fs, paths: paths, key: key}, nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, domain.WrapError(domain.KindFatal, "generate auth key", err)
	}
	encoded := hex.EncodeToString(raw)
	if err := fs.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, domain.WrapError(domain.KindFatal, "persist auth key", err)
	}
	return &Manager{fs: fs, paths: paths, key: raw}, nil
}

// IssueGatewayConnectToken mints a 30-second token binding deviceID,
// suitable for ConnectParams.Token.
func (m *Manager) IssueGatewayConnectToken(deviceID string) (string, error) {
	now := time.Now()
	claims := gatewayClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(gatewayConnectTTL)),
			Subject:   deviceID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
}

// ValidateGatewayConnectToken returns the deviceID bound to tokenStr if
// it is unexpired and correctly signed.
func (m *Manager) ValidateGatewayConnectToken(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &gatewayClaims{}, m.keyFunc)
	if err != nil {
		return "", domain.WrapError(domain.KindValidation, "invalid gateway connect token", err)
	}
	claims, ok := token.Claims.(*gatewayClaims)
	if !ok || !token.Valid {
		return "", domain.Validationf("invalid gateway connect token")
	}
	return claims.DeviceID, nil
}

// IssueUISessionToken mints a 24-hour UI session token for username.
func (m *Manager) IssueUISessionToken(username string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(uiSessionTTL)),
			Subject:   username,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
}

// ValidateUISessionToken returns the username bound to tokenStr if it
// is unexpired and correctly signed.
func (m *Manager) ValidateUISessionToken(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &sessionClaims{}, m.keyFunc)
	if err != nil {
		return "", domain.WrapError(domain.KindValidation, "invalid session token", err)
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return "", domain.Validationf("invalid session token")
	}
	return claims.Username, nil
}

func (m *Manager) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return m.key, nil
}
