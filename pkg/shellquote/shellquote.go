// Package shellquote renders commands as single shell-pasteable lines for logs.
package shellquote

import (
	"net/url"
	"slices"
	"strings"
)

// safeChars never need quoting in a POSIX shell.
const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_@%+=:,./-"

const redacted = "xxxxx"

// Quote returns s in a form a POSIX shell reads back as one word.
// Single quotes are used, so nothing inside is expanded.
func Quote(s string) string {
	if s == "" {
		return "''"
	}

	if strings.Trim(s, safeChars) == "" {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Join quotes bin and every arg and joins them with spaces.
func Join(bin string, args []string) string {
	var b strings.Builder

	b.WriteString(Quote(bin))

	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(Quote(arg))
	}

	return b.String()
}

// Redact returns a copy of args with URL passwords masked.
// The value following any flag in secretFlags is masked entirely.
func Redact(args []string, secretFlags ...string) []string {
	out := make([]string, len(args))

	for i, arg := range args {
		if i > 0 && slices.Contains(secretFlags, args[i-1]) {
			out[i] = redacted

			continue
		}

		out[i] = redactURL(arg)
	}

	return out
}

func redactURL(arg string) string {
	if !strings.Contains(arg, "://") || !strings.Contains(arg, "@") {
		return arg
	}

	u, err := url.Parse(arg)
	if err != nil || u.User == nil {
		return arg
	}

	if _, ok := u.User.Password(); !ok {
		return arg
	}

	return u.Redacted()
}
