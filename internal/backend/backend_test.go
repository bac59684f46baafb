package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFrame() Frame {
	return Frame{
		Name: "main.main",
		Scopes: []Scope{
			{Name: "Arguments", Variables: []Variable{{Name: "argc", Value: "1"}}},
			{Name: "Locals", Variables: []Variable{
				{Name: "cfg", Type: "Config", Children: []Variable{
					{Name: "addr", Value: `"localhost"`},
					{Name: "opts", Children: []Variable{{Name: "debug", Value: "true"}}},
				}},
				{Name: "argc", Value: "shadowed"},
			}},
		},
	}
}

func TestFrame_Lookup(t *testing.T) {
	f := sampleFrame()

	tests := []struct {
		expr  string
		value string
		found bool
	}{
		{"argc", "1", true},
		{"cfg.addr", `"localhost"`, true},
		{"cfg.opts.debug", "true", true},
		{" cfg.addr ", `"localhost"`, true},
		{"cfg.missing", "", false},
		{"nope", "", false},
		{"", "", false},
		{"argc.x", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, ok := f.Lookup(tt.expr)
			require.Equal(t, tt.found, ok)
			if ok {
				assert.Equal(t, tt.value, v.Value)
			}
		})
	}
}

func TestFrame_LookupStructured(t *testing.T) {
	f := sampleFrame()
	v, ok := f.Lookup("cfg")
	require.True(t, ok)
	assert.True(t, v.HasChildren())
	assert.Equal(t, "Config", v.Type)
}

func TestSnapshot_Thread(t *testing.T) {
	s := &Snapshot{Threads: []Thread{{ID: 1, Name: "main"}, {ID: 4, Name: "worker"}}}

	th, ok := s.Thread(4)
	require.True(t, ok)
	assert.Equal(t, "worker", th.Name)

	_, ok = s.Thread(2)
	assert.False(t, ok)
}

func TestStepMode_String(t *testing.T) {
	assert.Equal(t, "continue", StepContinue.String())
	assert.Equal(t, "next", StepOver.String())
	assert.Equal(t, "stepIn", StepIn.String())
	assert.Equal(t, "stepOut", StepOut.String())
	assert.Equal(t, "unknown", StepMode(42).String())
}
