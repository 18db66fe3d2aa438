// Package credential implements the signed, at-most-once launch credential
// described in spec.md §4.5 and §6: a canonicalized byte sequence
// `jobId|stepId|uid|gid|sortedNodeList|deadline|nonce` plus a pluggable
// signature.
package credential

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ridgehpc/ridge/internal/domain"
)

// Signer is the pluggable credential signature algorithm, per spec.md §9's
// capability-interface design note. HMAC-SHA-256 is the reference
// implementation (Signer in hmac.go).
type Signer interface {
	Sign(data []byte) ([]byte, error)
	Verify(data, sig []byte) bool
}

// Canonicalize builds the signed byte sequence for a credential, per
// spec.md §6.
func Canonicalize(jobID uint64, stepID uint32, uid, gid uint32, nodes []string, deadline time.Time, nonce string) []byte {
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)
	fields := []string{
		strconv.FormatUint(jobID, 10),
		strconv.FormatUint(uint64(stepID), 10),
		strconv.FormatUint(uint64(uid), 10),
		strconv.FormatUint(uint64(gid), 10),
		strings.Join(sorted, ","),
		strconv.FormatInt(deadline.UTC().Unix(), 10),
		nonce,
	}
	return []byte(strings.Join(fields, "|"))
}

// Issue builds and signs a new credential for (jobID, stepID) naming nodes,
// valid until deadline.
func Issue(signer Signer, jobID uint64, stepID uint32, uid, gid uint32, nodes []string, deadline time.Time) (*domain.Credential, error) {
	nonce := uuid.New().String()
	data := Canonicalize(jobID, stepID, uid, gid, nodes, deadline, nonce)
	sig, err := signer.Sign(data)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)
	return &domain.Credential{
		JobID:     jobID,
		StepID:    stepID,
		UID:       uid,
		GID:       gid,
		Nodes:     sorted,
		Deadline:  deadline,
		Nonce:     nonce,
		Signature: sig,
	}, nil
}

// Verify checks a credential's signature and that it names wantNode, per
// spec.md §4.5 step 1.
func Verify(signer Signer, cred *domain.Credential, wantNode string, now time.Time) error {
	data := Canonicalize(cred.JobID, cred.StepID, cred.UID, cred.GID, cred.Nodes, cred.Deadline, cred.Nonce)
	if !signer.Verify(data, cred.Signature) {
		return ErrInvalidSignature
	}
	named := false
	for _, n := range cred.Nodes {
		if n == wantNode {
			named = true
			break
		}
	}
	if !named {
		return ErrNodeNotNamed
	}
	if now.After(cred.Deadline) {
		return ErrExpired
	}
	return nil
}

// ID returns a stable identity for a credential, used for at-most-once
// launch tracking: (jobId, stepId, nonce) uniquely names one issuance.
func ID(cred *domain.Credential) string {
	return fmt.Sprintf("%d/%d/%s", cred.JobID, cred.StepID, cred.Nonce)
}
