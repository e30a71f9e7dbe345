package setup

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompterString(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("\n\nvalue\n\n"), &out)

	assert.Equal(t, "value", p.String("Required", ""))
	assert.Contains(t, out.String(), "required, please enter a value")
	assert.Equal(t, "fallback", p.String("Optional", "fallback"))
}

func TestPrompterStringEOF(t *testing.T) {
	p := NewPrompter(strings.NewReader(""), &bytes.Buffer{})
	assert.Equal(t, "def", p.String("Label", "def"))
	assert.Equal(t, "", p.Secret("Password"))
}

func TestPrompterConfirm(t *testing.T) {
	tests := []struct {
		in         string
		defaultYes bool
		want       bool
	}{
		{"\n", true, true},
		{"\n", false, false},
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"maybe\n", true, false},
		{"", true, true},
	}
	for _, tt := range tests {
		p := NewPrompter(strings.NewReader(tt.in), &bytes.Buffer{})
		assert.Equal(t, tt.want, p.Confirm("Continue?", tt.defaultYes), "input %q default %v", tt.in, tt.defaultYes)
	}
}

func TestPrompterDuration(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("soon\n2m\n1500ms\n\n"), &out)

	assert.Equal(t, 1500*time.Millisecond, p.Duration("Delay", time.Second, 0, time.Minute))
	assert.Equal(t, 2, strings.Count(out.String(), "enter a duration between"))
	assert.Equal(t, time.Second, p.Duration("Delay", time.Second, 0, time.Minute))
}

func TestPrompterSelect(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("0\nx\n2\n"), &out)

	idx, err := p.Select("Pick", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, out.String(), "1) a")
	assert.Contains(t, out.String(), "enter a number between 1 and 2")

	_, err = p.Select("Pick", []string{"a"})
	assert.Error(t, err)

	_, err = p.Select("Pick", nil)
	assert.Error(t, err)
}
