package model

import "testing"

func TestMethod_Idempotent(t *testing.T) {
	tests := []struct {
		method     Method
		idempotent bool
	}{
		{MethodGet, true},
		{MethodHead, true},
		{MethodOptions, true},
		{MethodPost, false},
		{MethodPut, false},
		{MethodPatch, false},
		{MethodDelete, false},
	}
	for _, tt := range tests {
		if got := tt.method.Idempotent(); got != tt.idempotent {
			t.Errorf("Method(%q).Idempotent() = %v, want %v", tt.method, got, tt.idempotent)
		}
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		input   string
		want    Method
		wantErr bool
	}{
		{"GET", MethodGet, false},
		{"get", MethodGet, false},
		{"Post", MethodPost, false},
		{" delete ", MethodDelete, false},
		{"OPTIONS", MethodOptions, false},
		{"TRACE", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMethod(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMethod(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMethod(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseResponseType(t *testing.T) {
	tests := []struct {
		input   string
		want    ResponseType
		wantErr bool
	}{
		{"", ResponseTypeNone, false},
		{"none", ResponseTypeNone, false},
		{"text", ResponseTypeText, false},
		{"json", ResponseTypeJSON, false},
		{"buffer", ResponseTypeBuffer, false},
		{"blob", ResponseTypeBlob, false},
		{"image", ResponseTypeImage, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseResponseType(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseResponseType(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseResponseType(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseResponseType(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
