package monitor

import (
	"fmt"
	"os"
	"os/user"

	"github.com/oshokin/driver-guard/internal/domain/session"
)

// DetectOperator gathers host and user information for the session report.
func DetectOperator() (*session.Operator, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &session.Operator{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
