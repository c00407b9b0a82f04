package closeout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

func evidenceItem(uri string, checksum *string) domain.EvidenceItem {
	return domain.EvidenceItem{ID: "ev-1", TicketID: "t-1", Kind: "photo", URI: uri, Checksum: checksum}
}

func strPtr(s string) *string { return &s }

func TestRelaxedModeAllowsConfiguredSchemesOnly(t *testing.T) {
	verifier := NewEvidenceVerifier(EvidenceVerifierOptions{})

	invalid := verifier.InvalidRefs(context.Background(), []domain.EvidenceItem{
		evidenceItem("s3://bucket/key.jpg", nil),
		evidenceItem("https://example.com/key.jpg", nil),
		evidenceItem("file:///etc/passwd", nil),
	})
	assert.Equal(t, []string{"file:///etc/passwd", "https://example.com/key.jpg"}, invalid)
}

func TestRelaxedModeSkipsHeadProbe(t *testing.T) {
	probed := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probed = true
	}))
	defer server.Close()

	verifier := NewEvidenceVerifier(EvidenceVerifierOptions{AllowedSchemes: []string{"http"}})
	invalid := verifier.InvalidRefs(context.Background(), []domain.EvidenceItem{
		evidenceItem(server.URL+"/key.jpg", nil),
	})
	assert.Empty(t, invalid)
	assert.False(t, probed)
}

func TestStrictModeHeadProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		if r.URL.Path == "/missing.jpg" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	verifier := NewEvidenceVerifier(EvidenceVerifierOptions{
		AllowedSchemes: []string{"http"},
		HeadValidation: true,
	})
	invalid := verifier.InvalidRefs(context.Background(), []domain.EvidenceItem{
		evidenceItem(server.URL+"/present.jpg", nil),
		evidenceItem(server.URL+"/missing.jpg", nil),
	})
	assert.Equal(t, []string{server.URL + "/missing.jpg"}, invalid)
}

func TestStrictModeChecksumAgainstETag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	verifier := NewEvidenceVerifier(EvidenceVerifierOptions{
		AllowedSchemes:  []string{"http"},
		HeadValidation:  true,
		RequireChecksum: true,
	})

	matching := verifier.InvalidRefs(context.Background(), []domain.EvidenceItem{
		evidenceItem(server.URL+"/a.jpg", strPtr("abc123")),
	})
	assert.Empty(t, matching, "quoted etag must compare equal to the stored checksum")

	mismatched := verifier.InvalidRefs(context.Background(), []domain.EvidenceItem{
		evidenceItem(server.URL+"/a.jpg", strPtr("def456")),
	})
	assert.Len(t, mismatched, 1)

	missing := verifier.InvalidRefs(context.Background(), []domain.EvidenceItem{
		evidenceItem(server.URL+"/a.jpg", nil),
	})
	assert.Len(t, missing, 1, "checksum enforcement rejects items with no stored checksum")
}

func TestStrictModeSkipsProbeForNonHTTPSchemes(t *testing.T) {
	verifier := NewEvidenceVerifier(EvidenceVerifierOptions{
		AllowedSchemes:  []string{"s3"},
		HeadValidation:  true,
		RequireChecksum: true,
	})
	invalid := verifier.InvalidRefs(context.Background(), []domain.EvidenceItem{
		evidenceItem("s3://bucket/key.jpg", nil),
	})
	assert.Empty(t, invalid)
}

func TestInvalidRefsRejectsUnparseableURI(t *testing.T) {
	verifier := NewEvidenceVerifier(EvidenceVerifierOptions{AllowedSchemes: []string{"s3"}})
	invalid := verifier.InvalidRefs(context.Background(), []domain.EvidenceItem{
		evidenceItem("://not-a-uri", nil),
	})
	assert.Len(t, invalid, 1)
}

func TestModes(t *testing.T) {
	relaxed := NewEvidenceVerifier(EvidenceVerifierOptions{})
	head, checksum := relaxed.Modes()
	assert.Equal(t, "relaxed", head)
	assert.Equal(t, "relaxed", checksum)

	strict := NewEvidenceVerifier(EvidenceVerifierOptions{HeadValidation: true, RequireChecksum: true})
	head, checksum = strict.Modes()
	assert.Equal(t, "required", head)
	assert.Equal(t, "required", checksum)
}
