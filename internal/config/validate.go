package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	seen := make(map[string]bool, len(c.Accounts))
	for _, acc := range c.Accounts {
		if seen[acc.ID] {
			return fmt.Errorf("account %s: duplicate account id", acc.ID)
		}
		seen[acc.ID] = true
	}

	if c.Reconnect.Enabled && c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("RECONNECT_BASE_DELAY must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("RECONNECT_MAX_DELAY must not be below RECONNECT_BASE_DELAY")
	}

	n := c.Notify
	if n.SMTPHost != "" && (n.EmailFrom == "" || len(n.EmailTo) == 0) {
		return fmt.Errorf("NOTIFY_EMAIL_FROM and NOTIFY_EMAIL_TO are required with NOTIFY_SMTP_HOST")
	}

	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	var msgs []string
	for _, fe := range verrs {
		field := fe.Namespace()
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "min":
			msgs = append(msgs, field+" must be at least "+fe.Param())
		case "max":
			msgs = append(msgs, field+" must be at most "+fe.Param())
		case "url":
			msgs = append(msgs, field+" must be a valid URL")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, ", "))
}
