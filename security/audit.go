package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Channel names the audit stream a record belongs to.
type Channel string

const (
	ChannelInfo     Channel = "info"
	ChannelWarn     Channel = "warn"
	ChannelError    Channel = "error"
	ChannelSecurity Channel = "security"
	ChannelPayment  Channel = "payment"
)

var sensitiveFields = map[string]MaskKind{
	"cardnumber":  MaskCard,
	"number":      MaskCard,
	"pan":         MaskCard,
	"cvv":         MaskCVV,
	"cvc":         MaskCVV,
	"cardcode":    MaskCVV,
	"email":       MaskEmail,
	"phone":       MaskPhone,
	"phonenumber": MaskPhone,
	"token":       MaskToken,
	"cardtoken":   MaskToken,
	"sessionid":   MaskToken,
}

// AuditLogger is the only way payment code writes logs. Details are masked
// by field name, and free text is scrubbed of anything that looks like a PAN.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger}
}

func (a *AuditLogger) Info(action string, details map[string]any) {
	a.log(slog.LevelInfo, ChannelInfo, action, details)
}

func (a *AuditLogger) Warn(action string, details map[string]any) {
	a.log(slog.LevelWarn, ChannelWarn, action, details)
}

func (a *AuditLogger) Error(action string, details map[string]any) {
	a.log(slog.LevelError, ChannelError, action, details)
}

func (a *AuditLogger) Security(action string, details map[string]any) {
	a.log(slog.LevelWarn, ChannelSecurity, action, details)
}

func (a *AuditLogger) Payment(action string, details map[string]any) {
	a.log(slog.LevelInfo, ChannelPayment, action, details)
}

func (a *AuditLogger) log(level slog.Level, channel Channel, action string, details map[string]any) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}
	masked := MaskDetails(details)
	attrs := make([]slog.Attr, 0, len(masked)+1)
	attrs = append(attrs, slog.String("channel", string(channel)))
	for k, v := range masked {
		attrs = append(attrs, slog.Any(k, v))
	}
	a.logger.LogAttrs(ctx, level, RedactPANs(action), attrs...)
}

// MaskDetails returns a masked copy of details.
func MaskDetails(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		out[k] = maskValue(k, v)
	}
	return out
}

func maskValue(key string, v any) any {
	if kind, ok := sensitiveFields[normalizeField(key)]; ok {
		if v == nil {
			return nil
		}
		return MaskSensitiveData(fmt.Sprint(v), kind)
	}

	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return RedactPANs(val)
	case error:
		return RedactPANs(val.Error())
	case map[string]any:
		return MaskDetails(val)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return val
	case fmt.Stringer:
		return RedactPANs(val.String())
	default:
		return RedactPANs(fmt.Sprint(val))
	}
}

func normalizeField(key string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
}
