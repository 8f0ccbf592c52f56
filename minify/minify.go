// Package minify strips comments and redundant whitespace from script
// source before it is packed.
//
// The tokenizer is lexical only. It recognizes string literals, heredoc and
// nowdoc bodies, comments, whitespace, the "<?php" and "<?=" open tags and
// the "?>" close tag; everything else is copied through unchanged. Text
// between a close tag and the next open tag is inline output and is never
// touched. Text before the first open tag is treated as code, so fragments
// without one still minify.
package minify

import "strings"

// Func transforms source text. Source is the default implementation.
type Func func(string) string

const (
	openTag  = "<?php"
	echoTag  = "<?="
	closeTag = "?>"
)

// Source returns text with comments removed and whitespace collapsed.
//
// A comment or whitespace run becomes a single space only when the bytes on
// both sides would otherwise fuse into one token: two word characters, or
// operator pairs such as "+ +", "- -", "/ /" and "/ *". The open tag always
// keeps one following space. String literals, heredocs and nowdocs pass
// through byte for byte, and "#[" starts an attribute, not a comment. Line
// comments end at a newline or at "?>", and everything after "?>" up to the
// next open tag is copied verbatim. Source is idempotent.
func Source(text string) string {
	var (
		out   strings.Builder
		last  byte
		gap   bool
		force bool
		html  bool
	)
	out.Grow(len(text))

	emit := func(tok string) {
		switch {
		case force:
			out.WriteByte(' ')
		case gap && out.Len() > 0 && fuses(last, tok[0]):
			out.WriteByte(' ')
		}
		gap, force = false, false
		out.WriteString(tok)
		last = tok[len(tok)-1]
	}

	for i := 0; i < len(text); {
		if html {
			j := nextOpenTag(text, i)
			if j > i {
				out.WriteString(text[i:j])
				last = text[j-1]
			}
			gap, force, html = false, false, false
			i = j
			continue
		}

		rest := text[i:]
		c := text[i]
		switch {
		case isSpace(c):
			gap = true
			i++
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += end + 4
			}
			gap = true
		case strings.HasPrefix(rest, "//"), c == '#' && !strings.HasPrefix(rest, "#["):
			end := strings.IndexByte(rest, '\n')
			if tag := strings.Index(rest, closeTag); tag >= 0 && (end < 0 || tag < end) {
				end = tag
			}
			if end < 0 {
				i = len(text)
			} else {
				i += end
			}
			gap = true
		case c == '\'' || c == '"' || c == '`':
			j := scanQuoted(text, i)
			emit(text[i:j])
			i = j
		case strings.HasPrefix(rest, "<<<"):
			j, ok := scanHeredoc(text, i)
			if !ok {
				j = i + 3
			}
			emit(text[i:j])
			i = j
		case isOpenTag(rest):
			emit(rest[:len(openTag)])
			i += len(openTag)
			if i < len(text) && isSpace(text[i]) {
				force = true
			}
		case strings.HasPrefix(rest, echoTag):
			emit(echoTag)
			i += len(echoTag)
		case strings.HasPrefix(rest, closeTag):
			emit(closeTag)
			i += len(closeTag)
			html = true
		default:
			emit(text[i : i+1])
			i++
		}
	}
	return out.String()
}

// nextOpenTag returns the index of the first "<?php" or "<?=" at or after
// i, or len(text).
func nextOpenTag(text string, i int) int {
	for {
		k := strings.Index(text[i:], "<?")
		if k < 0 {
			return len(text)
		}
		j := i + k
		if strings.HasPrefix(text[j:], echoTag) || isOpenTag(text[j:]) {
			return j
		}
		i = j + 2
	}
}

func isOpenTag(s string) bool {
	return len(s) >= len(openTag) && strings.EqualFold(s[:len(openTag)], openTag)
}

// scanQuoted returns the index just past the literal starting at i.
// Unterminated literals run to the end of text.
func scanQuoted(text string, i int) int {
	quote := text[i]
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(text)
}

// scanHeredoc returns the index just past the closing identifier of the
// heredoc or nowdoc starting at i.
func scanHeredoc(text string, i int) (int, bool) {
	j := i + 3
	for j < len(text) && (text[j] == ' ' || text[j] == '\t') {
		j++
	}
	var quote byte
	if j < len(text) && (text[j] == '\'' || text[j] == '"') {
		quote = text[j]
		j++
	}
	start := j
	for j < len(text) && isWord(text[j]) {
		j++
	}
	if j == start || isDigit(text[start]) {
		return 0, false
	}
	label := text[start:j]
	if quote != 0 {
		if j >= len(text) || text[j] != quote {
			return 0, false
		}
		j++
	}
	if j < len(text) && text[j] == '\r' {
		j++
	}
	if j >= len(text) || text[j] != '\n' {
		return 0, false
	}

	for line := j + 1; line < len(text); {
		k := line
		for k < len(text) && (text[k] == ' ' || text[k] == '\t') {
			k++
		}
		if strings.HasPrefix(text[k:], label) {
			end := k + len(label)
			if end == len(text) || !isWord(text[end]) {
				return end, true
			}
		}
		next := strings.IndexByte(text[line:], '\n')
		if next < 0 {
			break
		}
		line += next + 1
	}
	return len(text), true
}

// fuses reports whether a and b would lex as one token if written adjacently.
func fuses(a, b byte) bool {
	switch {
	case isWord(a) && isWord(b):
		return true
	case a == '/' && (b == '/' || b == '*'):
		return true
	case (a == '+' || a == '-') && a == b:
		return true
	case a == '.' && isDigit(b), isDigit(a) && b == '.':
		return true
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isWord reports whether c can be part of an identifier.
func isWord(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x7f
}
