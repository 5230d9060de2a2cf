package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/affinity/internal/affinity/classify"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `version: "1.0"
affinity:
  name_prefix: ui-thread
monitoring:
  enabled: false
  max_pending: 100
exempt:
  signatures: ["Refresh()", "SetBounds(int, int)"]
  patterns:
    - prefix: on
      suffix: Changed
weave:
  guarded_types: [widgets.Button, widgets.Panel]
  attach_methods: [Add]
log:
  level: debug
  format: json
`)

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ui-thread", c.Affinity.NamePrefix)
	assert.False(t, c.MonitoringEnabled())
	assert.Equal(t, 100, c.Monitoring.MaxPending)
	assert.Equal(t, []string{"widgets.Button", "widgets.Panel"}, c.Weave.GuardedTypes)
	assert.Equal(t, []string{"Add"}, c.Weave.AttachMethods)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)

	assert.Equal(t, []classify.Rule{
		{Signature: "Refresh()"},
		{Signature: "SetBounds(int,int)"},
		{Prefix: "on", Suffix: "Changed"},
	}, c.ExemptRules())
}

func TestLoad_AppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, `version: "1.0"`))
	require.NoError(t, err)

	assert.Equal(t, "event-loop", c.Affinity.NamePrefix)
	assert.True(t, c.MonitoringEnabled())
	assert.Zero(t, c.Monitoring.MaxPending)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
	assert.Empty(t, c.ExemptRules())
}

func TestLoad_FileNotFound(t *testing.T) {
	c, err := Load("/nonexistent/affinity.yml")
	assert.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_InvalidYAML(t *testing.T) {
	c, err := Load(writeConfig(t, "version: \"1.0\"\nexempt:\n  - this is invalid\n    yaml syntax\n"))
	assert.Error(t, err)
	assert.Nil(t, c)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing version", `affinity: {name_prefix: x}`, "unsupported version"},
		{"wrong version", `version: "2.0"`, "unsupported version"},
		{"negative max pending", "version: \"1.0\"\nmonitoring: {max_pending: -1}", "max_pending must be >= 0"},
		{"bad signature", "version: \"1.0\"\nexempt: {signatures: [\"Refresh\"]}", "exempt.signatures"},
		{"empty pattern", "version: \"1.0\"\nexempt: {patterns: [{}]}", "prefix or suffix is required"},
		{"signature in pattern", "version: \"1.0\"\nexempt: {patterns: [{signature: \"Refresh()\"}]}", "use exempt.signatures"},
		{"unqualified type", "version: \"1.0\"\nweave: {guarded_types: [Button]}", "must have the form pkg.Type"},
		{"bad level", "version: \"1.0\"\nlog: {level: verbose}", "invalid log.level"},
		{"bad format", "version: \"1.0\"\nlog: {format: xml}", "invalid log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "1.0", c.Version)
	assert.Equal(t, "event-loop", c.Affinity.NamePrefix)
	assert.True(t, c.MonitoringEnabled())
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "")
	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "event-loop", c.Affinity.NamePrefix)

	t.Setenv(EnvVar, writeConfig(t, "version: \"1.0\"\naffinity: {name_prefix: main-loop}"))
	c, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "main-loop", c.Affinity.NamePrefix)
}

func TestClassifier_ExtendsDefaults(t *testing.T) {
	c, err := Parse([]byte("version: \"1.0\"\nexempt: {signatures: [\"Refresh()\"]}"))
	require.NoError(t, err)

	cl := c.Classifier()
	assert.True(t, cl.IsExempt(classify.Signature{Name: "Refresh"}))
	assert.True(t, cl.IsExempt(classify.Signature{Name: "Repaint"}))
	assert.False(t, cl.IsExempt(classify.Signature{Name: "SetText", Params: []string{"string"}}))
}
