// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.

// Package admission implements the admission-control front door (§6): the
// gRPC service a client dials to submit a transaction for inclusion. It is
// adapted from the teacher's pkg/rpc/server/auth.go session/interceptor
// pattern, generalized from "authenticate a node-management RPC" to
// "authenticate a transaction submitter".
package admission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/crypto/ed25519"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const sessionTTL = time.Hour

// claims is the payload signed into a session token. Unlike the teacher's
// JWT-library-backed claims, this is a self-contained struct the node signs
// and verifies itself with its own ed25519 key, since no JWT library travels
// with the retrieved pack (see DESIGN.md).
type claims struct {
	ClientPK  string `json:"client_pk"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// SessionManager issues and verifies admission-control session tokens,
// playing the role of the teacher's JWTManager without requiring a JWT
// library dependency the pack does not carry.
type SessionManager struct {
	nodeKey ed25519.PrivateKey
	mu      sync.RWMutex
	known   map[string]struct{}
}

// NewSessionManager builds a manager signing with nodeKey.
func NewSessionManager(nodeKey ed25519.PrivateKey) *SessionManager {
	return &SessionManager{nodeKey: nodeKey, known: make(map[string]struct{})}
}

// CreateSession verifies edSig over edPk (the client proving possession of
// its own private key, mirroring CreateSession in the teacher), then mints a
// signed token.
func (s *SessionManager) CreateSession(edPk, edSig []byte) (string, error) {
	if !ed25519.Verify(ed25519.PublicKey(edPk), edPk, edSig) {
		return "", errAccessDenied{}
	}

	encoded := base64.StdEncoding.EncodeToString(edPk)
	now := time.Now()
	c := claims{ClientPK: encoded, IssuedAt: now.Unix(), ExpiresAt: now.Add(sessionTTL).Unix()}

	payload, err := json.Marshal(c)
	if err != nil {
		return "", errors.Wrap(err, "marshal session claims")
	}
	sig := ed25519.Sign(s.nodeKey, payload)

	token := base64.StdEncoding.EncodeToString(payload) + "." + base64.StdEncoding.EncodeToString(sig)

	s.mu.Lock()
	s.known[encoded] = struct{}{}
	s.mu.Unlock()

	return token, nil
}

// DropSession revokes a previously issued client key (teacher's DropSession).
func (s *SessionManager) DropSession(clientPK string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.known, clientPK)
}

// Verify checks token's node signature and expiry, returning the client
// public key it was issued to.
func (s *SessionManager) Verify(token string) (string, error) {
	parts := splitToken(token)
	if parts == ([2]string{}) {
		return "", errors.New("malformed session token")
	}

	payload, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", errors.Wrap(err, "decode token payload")
	}
	sig, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", errors.Wrap(err, "decode token signature")
	}

	if !ed25519.Verify(s.nodeKey.Public().(ed25519.PublicKey), payload, sig) {
		return "", errors.New("invalid token signature")
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return "", errors.Wrap(err, "unmarshal token claims")
	}
	if time.Now().Unix() > c.ExpiresAt {
		return "", errors.New("session token expired")
	}

	s.mu.RLock()
	_, known := s.known[c.ClientPK]
	s.mu.RUnlock()
	if !known {
		return "", errors.New("session revoked")
	}

	return c.ClientPK, nil
}

func splitToken(token string) [2]string {
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			var out [2]string
			out[0] = token[:i]
			out[1] = token[i+1:]
			return out
		}
	}
	return [2]string{}
}

type errAccessDenied struct{}

func (errAccessDenied) Error() string { return "access denied: signature verification failed" }

// Interceptor is a grpc.UnaryServerInterceptor authenticating every call
// against a SessionManager, mirroring the teacher's AuthInterceptor.Unary.
type Interceptor struct {
	sessions  *SessionManager
	openRoute string
}

// NewInterceptor builds an Interceptor; calls to openRoute (the
// CreateSession RPC itself) bypass authentication.
func NewInterceptor(sessions *SessionManager, openRoute string) *Interceptor {
	return &Interceptor{sessions: sessions, openRoute: openRoute}
}

// Unary returns the grpc.UnaryServerInterceptor admission's gRPC server
// installs.
func (ai *Interceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if info.FullMethod == ai.openRoute {
			return handler(ctx, req)
		}

		if _, err := ai.authorize(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (ai *Interceptor) authorize(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "metadata not provided")
	}

	values := md["authorization"]
	if len(values) == 0 {
		return "", status.Error(codes.Unauthenticated, "token not provided")
	}

	clientPK, err := ai.sessions.Verify(values[0])
	if err != nil {
		return "", status.Errorf(codes.Unauthenticated, "invalid session: %v", err)
	}
	return clientPK, nil
}
