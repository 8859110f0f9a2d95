package gateway

import (
	"testing"
)

func TestConsoleBlock(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  string
	}{
		{
			"single line",
			[]string{"Console deployed."},
			"```text\n| Console deployed.\n```",
		},
		{
			"multiple lines",
			[]string{"Console deployed.", "ssh session: alice@host -p 2222"},
			"```text\n| Console deployed.\n| ssh session: alice@host -p 2222\n```",
		},
		{
			"embedded newline",
			[]string{"first\nsecond"},
			"```text\n| first\n| second\n```",
		},
		{
			"no lines",
			nil,
			"```text\n```",
		},
	}

	for _, test := range cases {
		if got := ConsoleBlock(test.lines); got != test.want {
			t.Errorf("%s: got %q, want %q", test.name, got, test.want)
		}
	}
}
