package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	signer := NewHMACSigner([]byte("shared-secret"))
	deadline := time.Now().Add(time.Hour)

	cred, err := Issue(signer, 7, 0, 1000, 1000, []string{"n1", "n0"}, deadline)
	require.NoError(t, err)
	require.Equal(t, []string{"n0", "n1"}, cred.Nodes)

	require.NoError(t, Verify(signer, cred, "n0", time.Now()))
	require.ErrorIs(t, Verify(signer, cred, "n5", time.Now()), ErrNodeNotNamed)
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	signer := NewHMACSigner([]byte("shared-secret"))
	cred, err := Issue(signer, 1, 0, 0, 0, []string{"n0"}, time.Now().Add(time.Hour))
	require.NoError(t, err)

	cred.Signature[0] ^= 0xFF
	require.ErrorIs(t, Verify(signer, cred, "n0", time.Now()), ErrInvalidSignature)
}

func TestVerifyRejectsExpired(t *testing.T) {
	signer := NewHMACSigner([]byte("k"))
	cred, err := Issue(signer, 1, 0, 0, 0, []string{"n0"}, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.ErrorIs(t, Verify(signer, cred, "n0", time.Now()), ErrExpired)
}

func TestSeenSetRejectsReplay(t *testing.T) {
	s := NewSeenSet(5 * time.Minute)
	deadline := time.Now().Add(time.Hour)

	require.NoError(t, s.CheckAndMark("job7/step0/nonce", deadline, time.Now()))
	err := s.CheckAndMark("job7/step0/nonce", deadline, time.Now())
	require.ErrorIs(t, err, ErrAlreadyLaunched)
}
