package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	assert.True(t, called, "custom logger was not called")

	called = false
	SetLogger(nil)
	Logf("test message")
	assert.False(t, called, "no-op logger should not reach the previous logger")
}

func TestProgress_LogsOncePerStep(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	p := NewProgress("hgrid", 200, 25)
	for i := 0; i < 200; i++ {
		p.Add(1)
	}

	// 0%, 25%, 50%, 75%, 100%
	assert.Len(t, lines, 5)
	assert.Equal(t, "[hgrid] 100% (200/200)", lines[len(lines)-1])
	assert.Equal(t, 100, p.Percent())
}

func TestProgress_Degenerate(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	count := 0
	SetLogger(func(string, ...interface{}) { count++ })

	var nilProgress *Progress
	nilProgress.Add(3)
	assert.Equal(t, 100, nilProgress.Percent())

	empty := NewProgress("empty", 0, 0)
	empty.Add(1)
	assert.Equal(t, 0, count)

	over := NewProgress("over", 2, 500)
	over.Add(5)
	assert.Equal(t, 100, over.Percent())
}
