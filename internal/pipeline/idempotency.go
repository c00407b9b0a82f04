package pipeline

import (
	"context"
	"strings"

	"github.com/spec-kit/dispatch-service/internal/domain"
	"github.com/spec-kit/dispatch-service/pkg/util"
)

// IdempotencyReader looks up a stored idempotency record. A nil
// record with a nil error means the key has never been used.
type IdempotencyReader interface {
	GetIdempotency(ctx context.Context, actorID, requestKey string) (*domain.IdempotencyRecord, error)
}

// Admission is the outcome of the idempotency check. Replay carries
// the exact stored response so a repeated request is answered
// byte-identically without touching the mutation path.
type Admission struct {
	Replay     bool
	Response   []byte
	StatusCode int
}

// AdmitIdempotency decides whether a request proceeds, replays, or
// conflicts. A missing key on a tool that requires one fails here,
// before authorization is evaluated. Key reuse with a different
// payload fingerprint is a conflict; reuse with the same fingerprint
// replays the stored response.
func AdmitIdempotency(ctx context.Context, reader IdempotencyReader, env *RequestEnvelope, idempotencyRequired bool) (Admission, error) {
	key := strings.TrimSpace(env.RequestKey)
	if key == "" {
		if idempotencyRequired {
			return Admission{}, util.NewValidationError(
				"MISSING_IDEMPOTENCY_KEY",
				"Idempotency-Key header is required for this tool",
				nil,
			)
		}
		return Admission{}, nil
	}

	record, err := reader.GetIdempotency(ctx, env.Actor.ID, key)
	if err != nil {
		return Admission{}, util.NewInternalError(err)
	}
	if record == nil {
		return Admission{}, nil
	}

	hash, err := env.Fingerprint()
	if err != nil {
		return Admission{}, util.NewInternalError(err)
	}
	if record.PayloadHash != hash || record.ToolName != env.ToolName {
		return Admission{}, util.NewConflict(
			"IDEMPOTENCY_PAYLOAD_MISMATCH",
			"idempotency key was already used with a different payload",
			map[string]any{"request_key": key},
		)
	}
	return Admission{
		Replay:     true,
		Response:   record.Response,
		StatusCode: record.StatusCode,
	}, nil
}
