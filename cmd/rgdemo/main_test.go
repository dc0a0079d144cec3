package main

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    gputypes.Color
		wantErr bool
	}{
		{"0,0,0,1", gputypes.Color{A: 1}, false},
		{" 0.5, 1 ,0,0.25", gputypes.Color{R: 0.5, G: 1, A: 0.25}, false},
		{"1,2,3", gputypes.Color{}, true},
		{"a,b,c,d", gputypes.Color{}, true},
	}
	for _, tt := range tests {
		got, err := parseColor(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseColor(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
