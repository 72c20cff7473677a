package ldap

import (
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeFields(t *testing.T) {
	in := map[string]any{
		"Password":   "hunter2",
		"username":   "jdoe",
		"dsn":        "ldap://host?password=hunter2",
		"page_size":  1000,
		"credential": []byte("x"),
	}

	got := SanitizeFields(in)

	assert.Equal(t, "[REDACTED]", got["Password"])
	assert.Equal(t, "jdoe", got["username"])
	assert.Equal(t, "[REDACTED]", got["dsn"])
	assert.Equal(t, 1000, got["page_size"])
	assert.Equal(t, "[REDACTED]", got["credential"])
	assert.Equal(t, "hunter2", in["Password"], "input must not be modified")
}

func TestLogOperation(t *testing.T) {
	ctx := WithLogging(t.Context())
	fields := map[string]any{"base_dn": "DC=example,DC=com"}

	err := LogOperation(ctx, Subsystem, "search", fields, func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, "search", fields["operation"])
	assert.Contains(t, fields, "duration_ms")

	want := ldap.NewError(ldap.LDAPResultBusy, errors.New("busy"))
	err = LogOperation(ctx, Subsystem, "search", nil, func() error { return want })
	assert.Equal(t, want, err)
}

func TestLogHelpersWithoutRootLogger(t *testing.T) {
	ctx := t.Context()

	assert.NotPanics(t, func() {
		LogPerformance(ctx, Subsystem, "search", 6*time.Second, nil)
		LogLDAPError(ctx, Subsystem, "bind", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad")), nil)
		LogPoolEvent(ctx, "connection_created", nil)
	})
}
