package closeout

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

// RequirementCodeInvalidReference is the requirement_code attached to
// closeout rejections caused by unverifiable evidence references.
const RequirementCodeInvalidReference = "INVALID_EVIDENCE_REFERENCE"

// EvidenceVerifier re-validates stored evidence references at every
// closeout boundary (complete, verify, close). All modes enforce the
// object-store scheme allow-list; strict mode additionally probes
// http(s) references with a HEAD request and, when checksum
// enforcement is on, compares the stored checksum against the
// object store's ETag.
type EvidenceVerifier struct {
	allowedSchemes  map[string]struct{}
	headValidation  bool
	requireChecksum bool
	client          *http.Client
}

// EvidenceVerifierOptions configures an EvidenceVerifier.
type EvidenceVerifierOptions struct {
	AllowedSchemes  []string
	HeadValidation  bool
	RequireChecksum bool
	ProbeTimeout    time.Duration
}

func NewEvidenceVerifier(opts EvidenceVerifierOptions) *EvidenceVerifier {
	schemes := make(map[string]struct{}, len(opts.AllowedSchemes))
	for _, scheme := range opts.AllowedSchemes {
		scheme = strings.ToLower(strings.TrimSpace(scheme))
		if scheme != "" {
			schemes[scheme] = struct{}{}
		}
	}
	if len(schemes) == 0 {
		schemes["s3"] = struct{}{}
	}
	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EvidenceVerifier{
		allowedSchemes:  schemes,
		headValidation:  opts.HeadValidation,
		requireChecksum: opts.RequireChecksum,
		client:          &http.Client{Timeout: timeout},
	}
}

// InvalidRefs returns the URIs of every evidence item that fails
// verification, sorted. An empty slice means all references are good.
func (v *EvidenceVerifier) InvalidRefs(ctx context.Context, items []domain.EvidenceItem) []string {
	invalid := make([]string, 0)
	for _, item := range items {
		if !v.verify(ctx, item) {
			invalid = append(invalid, item.URI)
		}
	}
	sort.Strings(invalid)
	return invalid
}

func (v *EvidenceVerifier) verify(ctx context.Context, item domain.EvidenceItem) bool {
	parsed, err := url.Parse(item.URI)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if _, allowed := v.allowedSchemes[scheme]; !allowed {
		return false
	}
	if !v.headValidation {
		return true
	}
	if scheme != "http" && scheme != "https" {
		// Non-HTTP object stores cannot be probed; the scheme
		// allow-list is the whole check.
		return true
	}
	if v.requireChecksum && (item.Checksum == nil || strings.TrimSpace(*item.Checksum) == "") {
		return false
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodHead, item.URI, nil)
	if err != nil {
		return false
	}
	response, err := v.client.Do(request)
	if err != nil {
		return false
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return false
	}
	if v.requireChecksum {
		etag := strings.Trim(strings.TrimSpace(response.Header.Get("ETag")), `"`)
		if etag == "" || etag != strings.TrimSpace(*item.Checksum) {
			return false
		}
	}
	return true
}

// Modes reports the enforcement posture for health reporting.
func (v *EvidenceVerifier) Modes() (headMode, checksumMode string) {
	headMode = "relaxed"
	if v.headValidation {
		headMode = "required"
	}
	checksumMode = "relaxed"
	if v.requireChecksum {
		checksumMode = "required"
	}
	return headMode, checksumMode
}
