package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEarlyLogRoutesByLevel(t *testing.T) {
	var out, errOut bytes.Buffer
	log := NewEarlyLog(&out, &errOut)

	log.Info("Migrations %s applied", "up")
	log.Warn("config file %q not found", "bridge.yaml")
	log.Error("Migration failed: %v", "boom")

	assert.Equal(t, "INFO: Migrations up applied\n", out.String())
	assert.Equal(t, "WARN: config file \"bridge.yaml\" not found\nERROR: Migration failed: boom\n", errOut.String())
}
