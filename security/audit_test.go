package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedAudit() (*AuditLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	return NewAuditLogger(logger), &buf
}

func TestAuditLogger_MasksKnownFields(t *testing.T) {
	audit, buf := newBufferedAudit()

	audit.Payment("card submitted", map[string]any{
		"cardNumber": "4242424242424242",
		"cvv":        "123",
		"email":      "maria.silva@example.com",
		"phone":      "5551234567",
		"card_token": "tok_lq2x9k_0123456789abcdef",
		"amount":     120,
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, "payment", record["channel"])
	assert.Equal(t, "card submitted", record["msg"])
	assert.Equal(t, "4242********4242", record["cardNumber"])
	assert.Equal(t, "***", record["cvv"])
	assert.Equal(t, "ma*********@example.com", record["email"])
	assert.Equal(t, "******4567", record["phone"])
	assert.Equal(t, "tok_****cdef", record["card_token"])
	assert.EqualValues(t, 120, record["amount"])
}

func TestAuditLogger_ScrubsFreeTextAndErrors(t *testing.T) {
	audit, buf := newBufferedAudit()

	audit.Error("processor said 4242424242424242 declined", map[string]any{
		"error":  errors.New("bad card 4242424242424242"),
		"nested": map[string]any{"cvv": "9876", "note": "pan 5555555555554444"},
		"reason": "card 4111111111111111 0930 rejected",
		"raw":    "4242424242424242 123",
	})

	out := buf.String()
	assert.NotContains(t, out, "4242424242424242")
	assert.NotContains(t, out, "5555555555554444")
	assert.NotContains(t, out, "4111111111111111")
	assert.NotContains(t, out, "9876")
	assert.Contains(t, out, `"channel":"error"`)
}

func TestAuditLogger_Channels(t *testing.T) {
	audit, buf := newBufferedAudit()

	audit.Info("a", nil)
	audit.Warn("b", nil)
	audit.Security("c", nil)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[2], &rec))
	assert.Equal(t, "security", rec["channel"])
	assert.Equal(t, "WARN", rec["level"])
}

func TestMaskDetails_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"cvv": "123"}
	out := MaskDetails(in)
	assert.Equal(t, "123", in["cvv"])
	assert.Equal(t, "***", out["cvv"])
}
