package ddb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "APP#my-app", pkApp("my-app"))
	assert.Equal(t, "NS#application", skNamespace("application"))
	assert.Equal(t, "db#settings", parseNamespace(skNamespace("db#settings")))
}
