package completion

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Shell represents a supported shell
type Shell string

const (
	Bash       Shell = "bash"
	Zsh        Shell = "zsh"
	Fish       Shell = "fish"
	Powershell Shell = "powershell"
)

// DetectShell detects the user's current shell from the SHELL environment variable
func DetectShell() (Shell, error) {
	shellPath := os.Getenv("SHELL")
	if shellPath == "" {
		if runtime.GOOS == "windows" {
			return Powershell, nil
		}
		return "", fmt.Errorf("unable to detect shell: SHELL environment variable not set")
	}

	switch name := filepath.Base(shellPath); name {
	case "bash":
		return Bash, nil
	case "zsh":
		return Zsh, nil
	case "fish":
		return Fish, nil
	default:
		return "", fmt.Errorf("unsupported shell: %s", name)
	}
}

// resolveShell returns the explicit shell if given, the detected one otherwise.
func resolveShell(flag string) (Shell, error) {
	if flag != "" {
		return Shell(flag), nil
	}
	shell, err := DetectShell()
	if err != nil {
		return "", fmt.Errorf("failed to detect shell: %w\nSpecify shell explicitly with --shell flag", err)
	}
	return shell, nil
}

// GetInstallPath returns where the completion script for program lives.
func GetInstallPath(shell Shell, home, program string) (string, error) {
	switch shell {
	case Bash:
		return filepath.Join(home, ".bash_completion.d", program), nil
	case Zsh:
		return filepath.Join(home, ".zsh", "completion", "_"+program), nil
	case Fish:
		return filepath.Join(home, ".config", "fish", "completions", program+".fish"), nil
	case Powershell:
		if runtime.GOOS == "windows" {
			return filepath.Join(home, "Documents", "WindowsPowerShell", "Scripts", program+".ps1"), nil
		}
		return "", fmt.Errorf("powershell not supported on %s", runtime.GOOS)
	default:
		return "", fmt.Errorf("unsupported shell: %s", shell)
	}
}
