package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialect_Rebind(t *testing.T) {
	pg := Dialect{Numbered: true}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := Dialect{}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestDialect_ConflictIsTransient(t *testing.T) {
	assert.True(t, Dialect{}.transient(errConflict))
	assert.False(t, Dialect{}.transient(assert.AnError))
}
