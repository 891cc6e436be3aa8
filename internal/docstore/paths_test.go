package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	assert.Equal(t, "users/u1", UserPath("u1"))
	assert.Equal(t, "users/u1/healthData/r1", HealthDataPath("u1", "r1"))
	assert.Equal(t, "users/u1/alerts/a1", AlertPath("u1", "a1"))
	assert.Equal(t, "users/u1/reports/w1", ReportPath("u1", "w1"))
}

func TestParseHealthDataPath(t *testing.T) {
	uid, id, ok := ParseHealthDataPath("users/u1/healthData/r1")
	assert.True(t, ok)
	assert.Equal(t, "u1", uid)
	assert.Equal(t, "r1", id)

	for _, p := range []string{"users/u1", "users/u1/alerts/a1", "users//healthData/r1", "x/u1/healthData/r1"} {
		_, _, ok := ParseHealthDataPath(p)
		assert.False(t, ok, p)
	}
}
