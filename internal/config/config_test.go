package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"lookbackDistance": 4,
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, 4, viper.GetInt("lookbackDistance"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, 2, viper.GetInt("lookbackDistance"))
	assert.Equal(t, "New", viper.GetString("output.suffix"))
	assert.Equal(t, "  ", viper.GetString("output.indent"))
	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "", viper.GetString("logsDir"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("history.enabled"))
	assert.Equal(t, "sqlite", viper.GetString("history.type"))
	assert.Equal(t, "./earlyturn.db", viper.GetString("history.sqlitePath"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "5432", viper.GetString("db.port"))
	assert.Equal(t, "earlyturn", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "http://localhost:8086", viper.GetString("influx.url"))
	assert.Equal(t, 3, viper.GetInt("influx.retries"))
	assert.Equal(t, "", viper.GetString("markerFilter"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")

	// Defaults still apply.
	assert.Equal(t, 2, GetNoticeConfig().LookbackDistance)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("EARLYTURN_LOOKBACKDISTANCE", "5")
	t.Setenv("EARLYTURN_OUTPUT_SUFFIX", "Early")

	require.NoError(t, Load(writeConfig(t, `{"lookbackDistance": 3}`)))

	assert.Equal(t, 5, GetNoticeConfig().LookbackDistance)
	assert.Equal(t, "Early", GetOutputConfig().Suffix)
}

func TestSet_OverridesFileAndEnv(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("EARLYTURN_LOOKBACKDISTANCE", "5")
	require.NoError(t, Load(writeConfig(t, `{"lookbackDistance": 3}`)))

	Set("lookbackDistance", 7)
	assert.Equal(t, 7, GetNoticeConfig().LookbackDistance)
}

func TestGetString(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	assert.Equal(t, "testValue", GetString("testKey"))
}

func TestGetInt(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testInt", 42)
	assert.Equal(t, 42, GetInt("testInt"))
}

func TestGetBool(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testBool", true)
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetOutputConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{"output": {"suffix": "_early", "indent": "\t"}}`)))

	oc := GetOutputConfig()
	assert.Equal(t, "_early", oc.Suffix)
	assert.Equal(t, "\t", oc.Indent)
}

func TestGetHistoryConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"history": { "enabled": true, "type": "postgres", "sqlitePath": "/tmp/h.db" },
		"db": { "host": "db", "port": "6543", "username": "u", "password": "p", "database": "routes" }
	}`)
	require.NoError(t, Load(dir))

	hc := GetHistoryConfig()
	assert.Equal(t, true, hc.Enabled)
	assert.Equal(t, "postgres", hc.Type)
	assert.Equal(t, "/tmp/h.db", hc.SQLitePath)

	assert.Equal(t, DBConfig{Host: "db", Port: "6543", Username: "u", Password: "p", Database: "routes"}, GetDBConfig())
}

func TestGetInfluxConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"influx": { "enabled": true, "url": "http://influx:8086", "token": "tok", "org": "o", "bucket": "b" }
	}`)
	require.NoError(t, Load(dir))

	assert.Equal(t, InfluxConfig{Enabled: true, URL: "http://influx:8086", Token: "tok", Org: "o", Bucket: "b", Retries: 3}, GetInfluxConfig())
}

func TestValidate_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	SetDefaults()

	assert.NoError(t, Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"negative lookback", `{"lookbackDistance": -1}`, "notice:"},
		{"suffix with separator", `{"output": {"suffix": "a/b"}}`, "output:"},
		{"unknown history type", `{"history": {"enabled": true, "type": "mongo"}}`, "history:"},
		{"influx without url", `{"influx": {"enabled": true, "url": ""}}`, "influx:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			require.NoError(t, Load(writeConfig(t, tt.body)))

			err := Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_DisabledSectionsIgnored(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{"history": {"type": "mongo"}, "influx": {"url": ""}}`)))

	assert.NoError(t, Validate())
}
