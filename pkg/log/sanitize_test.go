package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeField_MasksAPIKeys(t *testing.T) {
	value := "sk-ant-REDACTED"
	masked := SanitizeField("api_key", value)
	assert.Len(t, masked, len(value))
	assert.Equal(t, "sk-a", masked[:4])
	assert.Equal(t, "xyzw", masked[len(masked)-4:])
	assert.NotContains(t, masked, "abcdef1234567890")
}

func TestSanitizeField_MasksByKeywordAnywhereInKey(t *testing.T) {
	cases := []string{
		"provider_api_key",
		"Authorization",
		"refresh_token",
		"client_secret",
		"db_password",
	}
	for _, key := range cases {
		assert.NotEqual(t, "supersecretvalue123", SanitizeField(key, "supersecretvalue123"), "key %q", key)
	}
}

func TestSanitizeField_ShortValues(t *testing.T) {
	assert.Equal(t, "**", SanitizeField("token", "ab"))
	assert.Equal(t, "a***f", SanitizeField("token", "abcdef"))
}

func TestSanitizeField_Email(t *testing.T) {
	assert.Equal(t, "app***@example.com", SanitizeField("applicant_email", "applicant@example.com"))
	assert.Equal(t, "a*@example.com", SanitizeField("email", "ab@example.com"))
	// malformed email is fully masked
	assert.Equal(t, "**********", SanitizeField("email", "not-an-e@m@"))
}

func TestSanitizeField_PassthroughForOrdinaryFields(t *testing.T) {
	assert.Equal(t, "strategic", SanitizeField("task_class", "strategic"))
	assert.Equal(t, "anthropic/claude-sonnet", SanitizeField("provider_id", "anthropic/claude-sonnet"))
	assert.Equal(t, "", SanitizeField("api_key", ""))
}

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	assert.Len(t, id1, 10)
	assert.Len(t, id2, 10)
	assert.NotEqual(t, id1, id2)
}
