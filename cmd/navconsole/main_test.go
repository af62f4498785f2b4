package main

import (
	"reflect"
	"testing"
)

func TestSplitConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		wantPath string
		wantRest []string
		wantErr  bool
	}{
		{
			name:     "no config flag",
			input:    []string{"list", "servers"},
			wantPath: "",
			wantRest: []string{"list", "servers"},
		},
		{
			name:     "separate value",
			input:    []string{"--config", "/etc/nav.toml", "watch"},
			wantPath: "/etc/nav.toml",
			wantRest: []string{"watch"},
		},
		{
			name:     "equals form after command",
			input:    []string{"list", "--config=nav.toml", "--json"},
			wantPath: "nav.toml",
			wantRest: []string{"list", "--json"},
		},
		{
			name:    "missing value",
			input:   []string{"watch", "--config"},
			wantErr: true,
		},
		{
			name:    "flag instead of value",
			input:   []string{"--config", "--json", "watch"},
			wantErr: true,
		},
		{
			name:    "empty equals value",
			input:   []string{"--config=", "watch"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, rest, err := splitConfigFlag(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("splitConfigFlag(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if path != tt.wantPath {
				t.Errorf("splitConfigFlag(%v) path = %q, want %q", tt.input, path, tt.wantPath)
			}
			if !reflect.DeepEqual(rest, tt.wantRest) {
				t.Errorf("splitConfigFlag(%v) rest = %v, want %v", tt.input, rest, tt.wantRest)
			}
		})
	}
}

func TestNeedsSession(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "no args", args: nil, want: false},
		{name: "version", args: []string{"version"}, want: false},
		{name: "help flag", args: []string{"server", "create", "--help"}, want: false},
		{name: "help command", args: []string{"help", "list"}, want: false},
		{name: "list", args: []string{"list"}, want: true},
		{name: "server create", args: []string{"server", "create", "--name", "x"}, want: true},
		{name: "watch json", args: []string{"watch", "--json"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := needsSession(tt.args); got != tt.want {
				t.Errorf("needsSession(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}
