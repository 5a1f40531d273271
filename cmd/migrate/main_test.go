package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		name      string
		args      []string
		wantCmd   string
		wantSteps int
		wantErr   string
	}{
		{name: "up", args: []string{"up"}, wantCmd: "up"},
		{name: "down defaults to one step", args: []string{"down"}, wantCmd: "down", wantSteps: 1},
		{name: "down with explicit steps", args: []string{"down", "3"}, wantCmd: "down", wantSteps: 3},
		{name: "missing command", args: nil, wantErr: "command required"},
		{name: "bad step count", args: []string{"down", "many"}, wantErr: "invalid down steps"},
		{name: "unknown command", args: []string{"sideways"}, wantErr: "unknown command"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, steps, err := parseCommand(tc.args)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantCmd, cmd)
			require.Equal(t, tc.wantSteps, steps)
		})
	}
}
