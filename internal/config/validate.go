package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var classValidator = validator.New()

// ValidateClasses runs struct validation over every parsed ConnectionClass
// (port ranges, non-negative cursors, sane timeouts) and checks that each
// class has at least one server and a password before any session can be
// authenticated against it. Nothing is checked across classes.
func ValidateClasses(classes []*ConnectionClass) error {
	for _, c := range classes {
		if err := classValidator.Struct(c); err != nil {
			return fmt.Errorf("config: class %q: %w", c.Name, err)
		}
		if len(c.Servers) == 0 {
			return fmt.Errorf("config: class %q: no servers configured", c.Name)
		}
		if c.Password == "" {
			return fmt.Errorf("config: class %q: no password configured", c.Name)
		}
	}
	return nil
}
