package config

import "testing"

func TestEnvironmentFromEnv(t *testing.T) {
	cases := []struct {
		value string
		want  Environment
	}{
		{"dev", EnvDev},
		{"STAGING", EnvStaging},
		{" prod ", EnvProd},
		{"", EnvProd},
		{"unknown", EnvProd},
	}
	for _, tc := range cases {
		t.Setenv("PAYGATE_ENV", tc.value)
		if got := EnvironmentFromEnv(); got != tc.want {
			t.Fatalf("PAYGATE_ENV=%q: got %q, want %q", tc.value, got, tc.want)
		}
	}
}
