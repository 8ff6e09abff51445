package admission

import (
	"encoding/base64"
	"testing"

	"golang.org/x/crypto/ed25519"

	"github.com/stretchr/testify/require"
)

func TestCreateAndVerifySessionRoundTrip(t *testing.T) {
	require := require.New(t)
	nodePub, nodePriv, err := ed25519.GenerateKey(nil)
	require.NoError(err)
	_ = nodePub

	clientPub, clientPriv, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	sm := NewSessionManager(nodePriv)
	sig := ed25519.Sign(clientPriv, clientPub)

	token, err := sm.CreateSession(clientPub, sig)
	require.NoError(err)
	require.NotEmpty(token)

	pk, err := sm.Verify(token)
	require.NoError(err)
	require.NotEmpty(pk)
}

func TestCreateSessionRejectsBadSignature(t *testing.T) {
	require := require.New(t)
	_, nodePriv, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	clientPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	sm := NewSessionManager(nodePriv)
	_, err = sm.CreateSession(clientPub, []byte("not a real signature"))
	require.Error(err)
}

func TestVerifyRejectsRevokedSession(t *testing.T) {
	require := require.New(t)
	_, nodePriv, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	clientPub, clientPriv, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	sm := NewSessionManager(nodePriv)
	sig := ed25519.Sign(clientPriv, clientPub)
	token, err := sm.CreateSession(clientPub, sig)
	require.NoError(err)

	sm.DropSession(base64.StdEncoding.EncodeToString(clientPub))
	_, err = sm.Verify(token)
	require.Error(err)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	require := require.New(t)
	_, nodePriv, err := ed25519.GenerateKey(nil)
	require.NoError(err)
	clientPub, clientPriv, err := ed25519.GenerateKey(nil)
	require.NoError(err)

	sm := NewSessionManager(nodePriv)
	sig := ed25519.Sign(clientPriv, clientPub)
	token, err := sm.CreateSession(clientPub, sig)
	require.NoError(err)

	tampered := token + "x"
	_, err = sm.Verify(tampered)
	require.Error(err)
}
