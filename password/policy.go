package password

import (
	"fmt"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// PolicyError describes why a candidate password was rejected.
type PolicyError struct {
	Code    string
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

// Policy grades candidate passwords before they are hashed.
type Policy struct {
	// MinLength counts runes, not bytes.
	MinLength int
	// MinScore is the minimum zxcvbn score (0-4). 0 disables the check.
	MinScore int
}

// Check returns a *PolicyError when password does not satisfy p. userInputs
// (account identifier and similar) are penalized by the strength estimator.
func (p Policy) Check(password string, userInputs ...string) error {
	if n := utf8.RuneCountInString(password); n < p.MinLength {
		return &PolicyError{
			Code:    "too_short",
			Message: fmt.Sprintf("password must be at least %d characters", p.MinLength),
		}
	}
	minScore := p.MinScore
	if minScore <= 0 {
		return nil
	}
	if minScore > 4 {
		minScore = 4
	}
	if zxcvbn.PasswordStrength(password, userInputs).Score < minScore {
		return &PolicyError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	}
	return nil
}
