package users

import (
	"regexp"

	"github.com/yshindo/publog/internal/validate"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	hasLetter    = regexp.MustCompile(`[a-zA-Z]`)
	hasDigit     = regexp.MustCompile(`[0-9]`)
)

func passwordField(name string) validate.Field {
	return validate.Field{
		Name:     name,
		Required: true,
		MinLen:   8,
		MaxLen:   255,
		Checks: []validate.Check{
			{Fn: hasLetter.MatchString, Message: name + " must contain a letter"},
			{Fn: hasDigit.MatchString, Message: name + " must contain a number"},
		},
	}
}

var signupSchema = validate.Schema{
	{Name: "name", Required: true, MaxLen: 255},
	{
		Name:           "email",
		Required:       true,
		MaxLen:         255,
		Pattern:        emailPattern,
		PatternMessage: "email is invalid",
	},
	passwordField("password"),
}

var loginSchema = validate.Schema{
	{Name: "email", Required: true},
	{Name: "password", Required: true},
}

var profileSchema = validate.Schema{
	{Name: "name", Required: true, MaxLen: 255},
	{Name: "bio", MaxLen: 1000},
}

var passwordChangeSchema = validate.Schema{
	{Name: "current_password", Required: true},
	passwordField("new_password"),
}
