package main

import "testing"

func TestFormat(t *testing.T) {
	tests := []struct {
		msg  string
		kv   []interface{}
		want string
	}{
		{"ready", nil, "ready"},
		{"wrote flash", []interface{}{"bytes", 32768}, "wrote flash bytes=32768"},
		{"odd", []interface{}{"a", 1, "dangling"}, "odd a=1 dangling"},
	}
	for _, tt := range tests {
		if got := format(tt.msg, tt.kv); got != tt.want {
			t.Errorf("format(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
