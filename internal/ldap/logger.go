package ldap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Subsystem is the tflog subsystem used by this package.
const Subsystem = "ldap"

// LogLevelEnv is the environment variable controlling the ldap subsystem
// level, following the TF_LOG_PROVIDER_AD_<SUBSYSTEM> convention.
const LogLevelEnv = "TF_LOG_PROVIDER_AD_LDAP"

// WithLogging returns ctx with the ldap subsystem logger installed.
// Without a root logger in ctx every log call is a no-op.
func WithLogging(ctx context.Context) context.Context {
	return tflog.NewSubsystem(ctx, Subsystem, tflog.WithLevelFromEnv(LogLevelEnv))
}

// LogOperation runs fn and logs its start, outcome and duration.
func LogOperation(ctx context.Context, subsystem, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, subsystem, "Starting operation", fields)

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		tflog.SubsystemError(ctx, subsystem, "Operation failed", fields)
	} else {
		tflog.SubsystemDebug(ctx, subsystem, "Operation completed", fields)
	}

	return err
}

// LogPerformance logs duration for an operation, raising the level for slow ones.
func LogPerformance(ctx context.Context, subsystem, operation string, duration time.Duration, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation
	fields["duration_ms"] = duration.Milliseconds()

	switch {
	case duration > 5*time.Second:
		tflog.SubsystemWarn(ctx, subsystem, "Slow operation detected", fields)
	case duration > time.Second:
		tflog.SubsystemInfo(ctx, subsystem, "Operation performance", fields)
	default:
		tflog.SubsystemDebug(ctx, subsystem, "Operation performance", fields)
	}
}

// LogLDAPError logs err with any LDAP result details it carries.
func LogLDAPError(ctx context.Context, subsystem, operation string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation
	fields["error"] = err.Error()

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		fields["ldap_result_code"] = ldapErr.ResultCode
		if ldapErr.MatchedDN != "" {
			fields["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			fields["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", fields)
}

// LogPoolEvent logs connection pool events at a level chosen by event.
func LogPoolEvent(ctx context.Context, event string, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["event"] = event

	switch event {
	case "connection_failed", "health_check_failed":
		tflog.SubsystemWarn(ctx, Subsystem, "Pool event", fields)
	case "all_connections_failed":
		tflog.SubsystemError(ctx, Subsystem, "Pool event", fields)
	case "connection_created", "connection_closed":
		tflog.SubsystemDebug(ctx, Subsystem, "Pool event", fields)
	default:
		tflog.SubsystemTrace(ctx, Subsystem, "Pool event", fields)
	}
}

var sensitiveKeys = map[string]bool{
	"password":    true,
	"passwd":      true,
	"secret":      true,
	"token":       true,
	"key":         true,
	"private_key": true,
	"credential":  true,
	"credentials": true,
}

var sensitivePatterns = []string{"password=", "passwd=", "secret=", "token=", "key="}

// SanitizeFields returns a copy of fields with credential-like values redacted.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	for k, v := range fields {
		if sensitiveKeys[strings.ToLower(k)] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

func containsSensitivePattern(s string) bool {
	lower := strings.ToLower(s)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
