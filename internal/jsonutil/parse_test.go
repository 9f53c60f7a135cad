package jsonutil

import (
	"errors"
	"testing"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `  [1,2]  `, `[1,2]`},
		{"json fence", "```json\n[1,2]\n```", `[1,2]`},
		{"bare fence", "```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"unterminated", "```json\n[1]", `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.in); got != tt.want {
				t.Errorf("StripMarkdownFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"array in prose", `Here you go: [{"a":"x"}] hope it helps]`, `[{"a":"x"}]`, false},
		{"bracket in string", `{"t":"50% off [today]"} trailing }`, `{"t":"50% off [today]"}`, false},
		{"escaped quote", `["say \"hi\" ]"]`, `["say \"hi\" ]"]`, false},
		{"none", "no json here", "", true},
		{"unterminated", `[{"a":1}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	type item struct {
		WhatText  string `json:"what_text"`
		ChangedTo string `json:"changed_to"`
	}
	raw := "```json\n[{\"what_text\":\"SALE\",\"changed_to\":\"ANGEBOT\"}]\n```"
	items, err := ParseJSON[[]item](raw)
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if len(items) != 1 || items[0].ChangedTo != "ANGEBOT" {
		t.Errorf("ParseJSON() = %+v", items)
	}

	if _, err := ParseJSON[[]item]("nothing"); !errors.Is(err, ErrNoJSON) {
		t.Errorf("ParseJSON(no json) error = %v, want ErrNoJSON", err)
	}
	if _, err := ParseJSON[[]item](`{"what_text": 5}`); err == nil {
		t.Error("ParseJSON(type mismatch) should fail")
	}
}
