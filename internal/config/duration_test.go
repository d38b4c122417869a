package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    time.Duration
		wantErr bool
	}{
		{"duration string", `d: 250ms`, 250 * time.Millisecond, false},
		{"compound string", `d: 1m30s`, 90 * time.Second, false},
		{"bare number is seconds", `d: 7`, 7 * time.Second, false},
		{"fractional seconds", `d: 0.5`, 500 * time.Millisecond, false},
		{"garbage string", `d: soon`, 0, true},
		{"wrong type", `d: [1, 2]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				D Duration `yaml:"d"`
			}
			err := yaml.Unmarshal([]byte(tt.yaml), &out)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.yaml)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if out.D.Std() != tt.want {
				t.Errorf("duration = %s, want %s", out.D.Std(), tt.want)
			}
		})
	}
}
