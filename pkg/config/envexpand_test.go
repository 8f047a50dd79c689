package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("EXPAND_TEST_HOST", "db.internal")
	t.Setenv("EXPAND_TEST_PORT", "5433")

	t.Run("expands variables", func(t *testing.T) {
		out := ExpandEnv([]byte("dsn: {{.EXPAND_TEST_HOST}}:{{.EXPAND_TEST_PORT}}"))
		assert.Equal(t, "dsn: db.internal:5433", string(out))
	})

	t.Run("missing variable becomes empty", func(t *testing.T) {
		out := ExpandEnv([]byte("value: {{.EXPAND_TEST_DOES_NOT_EXIST}}"))
		assert.Equal(t, "value: ", string(out))
	})

	t.Run("dollar signs pass through untouched", func(t *testing.T) {
		in := []byte("password: p@ss$word\npath: $PATH")
		assert.Equal(t, in, ExpandEnv(in))
	})

	t.Run("malformed template returns original", func(t *testing.T) {
		in := []byte("value: {{.unclosed")
		assert.Equal(t, in, ExpandEnv(in))
	})

	t.Run("values containing equals are preserved", func(t *testing.T) {
		t.Setenv("EXPAND_TEST_EQ", "a=b=c")
		out := ExpandEnv([]byte("value: {{.EXPAND_TEST_EQ}}"))
		assert.Equal(t, "value: a=b=c", string(out))
	})
}
