/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package experiment

import (
	"bytes"
	"strings"
	"testing"
)

func TestResolveUnfinishedExplicitPolicyShortCircuits(t *testing.T) {
	for _, policy := range []UnfinishedPolicy{PolicyResume, PolicySkip, PolicyAbort} {
		r := &Runner{Unfinished: policy}
		got, err := r.resolveUnfinished("some-experiment")
		if err != nil {
			t.Fatalf("resolveUnfinished(%s): %v", policy, err)
		}
		if got != policy {
			t.Errorf("resolveUnfinished(%s) = %s, want %s", policy, got, policy)
		}
	}
}

func TestResolveUnfinishedNoStdinDefaultsToResume(t *testing.T) {
	r := &Runner{Unfinished: PolicyPrompt, Stdin: nil, Stdout: &bytes.Buffer{}}
	got, err := r.resolveUnfinished("some-experiment")
	if err != nil {
		t.Fatalf("resolveUnfinished: %v", err)
	}
	if got != PolicyResume {
		t.Errorf("got %s, want resume for a nil stdin (non-interactive run)", got)
	}
}

func TestResolveUnfinishedPromptReadsOperatorChoice(t *testing.T) {
	cases := map[string]UnfinishedPolicy{
		"r\n":       PolicyResume,
		"resume\n":  PolicyResume,
		"s\n":       PolicySkip,
		"skip\n":    PolicySkip,
		"a\n":       PolicyAbort,
		"abort\n":   PolicyAbort,
		"\n":        PolicyResume,
		"garbage\n": PolicyResume,
	}
	for input, want := range cases {
		var out bytes.Buffer
		r := &Runner{Unfinished: PolicyPrompt, Stdin: strings.NewReader(input), Stdout: &out}
		got, err := r.resolveUnfinished("some-experiment")
		if err != nil {
			t.Fatalf("resolveUnfinished(%q): %v", input, err)
		}
		if got != want {
			t.Errorf("resolveUnfinished(%q) = %s, want %s", input, got, want)
		}
		if !strings.Contains(out.String(), "[r]esume, [s]kip") {
			t.Errorf("expected prompt text to be written for input %q", input)
		}
	}
}

func TestResolveUnfinishedEmptyPolicyTreatedAsPrompt(t *testing.T) {
	var out bytes.Buffer
	r := &Runner{Unfinished: "", Stdin: strings.NewReader("a\n"), Stdout: &out}
	got, err := r.resolveUnfinished("some-experiment")
	if err != nil {
		t.Fatalf("resolveUnfinished: %v", err)
	}
	if got != PolicyAbort {
		t.Errorf("got %s, want abort (empty Unfinished should behave like prompt)", got)
	}
}
