package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"

	"foundry/api"
	"foundry/controller"
	"foundry/odm"
)

// DescribeStartupError turns a Run or New error into a message with remediation hints for the
// operator.
func DescribeStartupError(err error) string {
	if err == nil {
		return ""
	}

	var invalidParser *api.InvalidBodyParserError
	if errors.As(err, &invalidParser) {
		return fmt.Sprintf("Unsupported body parser %q.\n"+
			"  Remediation:\n"+
			"  - Set http.bodyParser to one of: json, text, raw, urlencoded\n"+
			"  - Remove the key to attach no body parser", invalidParser.Kind)
	}

	if errors.Is(err, syscall.EADDRINUSE) || containsIgnoreCase(err.Error(), "address already in use") {
		return fmt.Sprintf("The HTTP port is already in use: %v\n"+
			"  Remediation:\n"+
			"  - Stop the process holding the port: lsof -i :<port>\n"+
			"  - Choose another port with http.port or FOUNDRY_HTTP_PORT", err)
	}

	if errors.Is(err, syscall.EACCES) {
		return fmt.Sprintf("Permission denied: %v\n"+
			"  Remediation:\n"+
			"  - Ports below 1024 need elevated privileges; use a higher http.port", err)
	}

	if errors.Is(err, odm.ErrNoConnection) {
		return fmt.Sprintf("No database connection is registered: %v\n"+
			"  Remediation:\n"+
			"  - Set odm.driver to mongodb, or register the driver in code", err)
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return fmt.Sprintf("Timed out while connecting to the database: %v\n"+
			"  Possible causes:\n"+
			"  - The database is starting up (wait and retry)\n"+
			"  - A firewall is blocking the connection\n"+
			"  Remediation:\n"+
			"  - Check odm.uri / odm.host and odm.port\n"+
			"  - Raise odm.connectTimeout", err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) || containsIgnoreCase(err.Error(), "connection refused") {
		return fmt.Sprintf("The database refused the connection: %v\n"+
			"  This usually means it is not running.\n"+
			"  Remediation:\n"+
			"  - Start the database: docker compose up -d mongodb\n"+
			"  - Verify odm.uri / odm.host in the configuration", err)
	}

	if errors.Is(err, controller.ErrUnknownController) {
		return fmt.Sprintf("%v\n"+
			"  Remediation:\n"+
			"  - Fix the controller name in the manifest\n"+
			"  - Register the controller in the catalog passed to the bootstrap", err)
	}

	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("A required file or directory is missing: %v\n"+
			"  Remediation:\n"+
			"  - Check --base-dir and the configuration paths\n"+
			"  - Create <base>/configuration/config.json", err)
	}

	return err.Error()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// containsIgnoreCase checks if a string contains a substring (case-insensitive).
func containsIgnoreCase(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	if len(s) < len(substr) {
		return false
	}
	for i := 0; i <= len(s)-len(substr); i++ {
		if equalFoldAt(s, substr, i) {
			return true
		}
	}
	return false
}

func equalFoldAt(s, substr string, start int) bool {
	for i := 0; i < len(substr); i++ {
		c1, c2 := s[start+i], substr[i]
		if c1 == c2 {
			continue
		}
		if 'A' <= c1 && c1 <= 'Z' {
			c1 += 'a' - 'A'
		}
		if 'A' <= c2 && c2 <= 'Z' {
			c2 += 'a' - 'A'
		}
		if c1 != c2 {
			return false
		}
	}
	return true
}
