package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckModes(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		stored  bool
		wantErr bool
	}{
		{name: "daily run", wantErr: false},
		{name: "range run", start: "2024-09-20", end: "2024-09-26", wantErr: false},
		{name: "stored range", start: "2024-09-20", stored: true, wantErr: false},
		{name: "stored without start", stored: true, wantErr: true},
		{name: "end without start", end: "2024-09-26", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkModes(tt.start, tt.end, tt.stored)
			if (err != nil) != tt.wantErr {
				t.Fatalf("checkModes() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogOutputAvoidsDigestStream(t *testing.T) {
	assert.Equal(t, os.Stderr, logOutput("-"))
	assert.Equal(t, os.Stdout, logOutput(""))
	assert.Equal(t, os.Stdout, logOutput("digest.md"))
}
