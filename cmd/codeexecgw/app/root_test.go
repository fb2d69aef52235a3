package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// NewRootCmd mutates the package-level rootCmd singleton and registers its
// persistent flags on it; pflag panics if a flag is registered twice, so
// every assertion against it lives in this one test rather than being split
// across several calls to NewRootCmd.
func TestNewRootCmd(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["upstream"])
	assert.True(t, names["version"])

	flag := root.PersistentFlags().Lookup("config")
	assert.NotNil(t, flag)
	assert.Equal(t, "codeexecgw.yaml", flag.DefValue)

	debugFlag := root.PersistentFlags().Lookup("debug")
	assert.NotNil(t, debugFlag)
	assert.Equal(t, "false", debugFlag.DefValue)
}
