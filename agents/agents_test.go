package agents_test

import (
	"testing"
	"time"

	"github.com/effective-security/dataagents/agents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("AGENTS_TEST_BIN", "/opt/dataagents/bin")

	defs, err := agents.Load("testdata/agents.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"analytics_agent", "data_agent", "legal_agent"}, defs.Names())

	def, err := defs.Find("data_agent")
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", def.Model)
	assert.Equal(t, "/opt/dataagents/bin/etl-server", def.Command)
	assert.Equal(t, []string{"--config", "etc/etl-server.yaml"}, def.Args)
	assert.Equal(t, 60*time.Second, def.Timeout)

	def, err = defs.Find("legal_agent")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, def.Timeout)

	def, err = defs.Find("analytics_agent")
	require.NoError(t, err)
	assert.Equal(t, agents.DefaultTimeout, def.Timeout)

	_, err = defs.Find("sales_agent")
	assert.EqualError(t, err, "agent not found: sales_agent")
}

func TestLoad_Etc(t *testing.T) {
	defs, err := agents.Load("../etc/agents.yaml")
	require.NoError(t, err)

	data, err := defs.Find("data_agent")
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, data.Timeout)
	assert.NotEmpty(t, data.Instruction)

	legal, err := defs.Find("legal_agent")
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, legal.Timeout)
	assert.Equal(t, "legal-server", legal.Command)
}

func TestLoad_Errors(t *testing.T) {
	_, err := agents.Load("testdata/duplicate.yaml")
	assert.EqualError(t, err, "duplicate agent: data_agent")

	_, err = agents.Load("testdata/invalid.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid agents in testdata/invalid.yaml")

	_, err = agents.Load("testdata/missing.yaml")
	require.Error(t, err)
}

func TestParseArgs(t *testing.T) {
	args, err := agents.ParseArgs([]string{
		"table_path=/tmp/t.csv",
		"fill_value=0",
		"user_input=how many a=b?",
		"empty=",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"table_path": "/tmp/t.csv",
		"fill_value": "0",
		"user_input": "how many a=b?",
		"empty":      "",
	}, args)

	_, err = agents.ParseArgs([]string{"table_path"})
	assert.EqualError(t, err, `invalid argument: "table_path", expected key=value`)

	_, err = agents.ParseArgs([]string{"=x"})
	assert.Error(t, err)
}
