package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	return "invalid request"
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var Categories = []string{"random", "personal", "school", "drama"}

func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

func ValidateCredentials(email, password string) ValidationErrors {
	var errs ValidationErrors

	email = strings.TrimSpace(email)
	if email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "email is required"})
	} else if !emailPattern.MatchString(email) {
		errs = append(errs, FieldError{Field: "email", Message: "email is not valid"})
	}

	if password == "" {
		errs = append(errs, FieldError{Field: "password", Message: "password is required"})
	}

	return errs
}

func ValidateNote(title, category string) ValidationErrors {
	var errs ValidationErrors

	title = strings.TrimSpace(title)
	if title == "" {
		errs = append(errs, FieldError{Field: "title", Message: "title is required"})
	} else if utf8.RuneCountInString(title) > 200 {
		errs = append(errs, FieldError{Field: "title", Message: "title must be at most 200 characters"})
	}

	if category == "" {
		errs = append(errs, FieldError{Field: "category", Message: "category is required"})
	} else if !ValidCategory(category) {
		errs = append(errs, FieldError{Field: "category", Message: "category must be one of " + strings.Join(Categories, ", ")})
	}

	return errs
}
