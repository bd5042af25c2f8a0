// Package validate checks facade input and reports failures as per-field messages.
package validate

import (
	"strings"
	"unicode/utf8"

	"github.com/go-openapi/strfmt"
)

// MaxDescriptionLen bounds a todo item description, in characters.
const MaxDescriptionLen = 500

// ModelState collects messages per field; an empty ModelState means the input is valid.
type ModelState map[string][]string

func (m ModelState) Add(field, msg string) { m[field] = append(m[field], msg) }

func (m ModelState) Valid() bool { return len(m) == 0 }

// Email reports a problem with an owner email, or "" when it is acceptable.
func Email(v string) string {
	if v == "" {
		return "The email field is required."
	}
	if len(v) > 320 || !strfmt.IsEmail(v) {
		return "The email field is not a valid e-mail address."
	}
	return ""
}

// Description reports a problem with an item description, or "" when it is acceptable.
func Description(v string) string {
	if strings.TrimSpace(v) == "" {
		return "The description field is required."
	}
	if utf8.RuneCountInString(v) > MaxDescriptionLen {
		return "The description field exceeds 500 characters."
	}
	return ""
}

// ListItems validates GET /api/todo/{email}.
func ListItems(email string) ModelState {
	ms := ModelState{}
	if msg := Email(email); msg != "" {
		ms.Add("email", msg)
	}
	return ms
}

// AddItem validates POST /api/todo/{email}.
func AddItem(email, description string) ModelState {
	ms := ListItems(email)
	if msg := Description(description); msg != "" {
		ms.Add("description", msg)
	}
	return ms
}
