package completion

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// NewInstallCmd creates the install-autocomplete command for rootCmd
func NewInstallCmd(rootCmd *cobra.Command) *cobra.Command {
	var shellFlag string

	cmd := &cobra.Command{
		Use:   "install-autocomplete",
		Short: "Install shell completion for " + rootCmd.Name(),
		Long: `Install shell completion for the ` + rootCmd.Name() + ` CLI.

Detects your shell unless --shell is given. Supports bash, zsh, fish and powershell.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			return runInstall(rootCmd, shellFlag, home, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&shellFlag, "shell", "s", "", "Shell to install completion for (bash, zsh, fish, powershell). Auto-detected if not specified.")
	return cmd
}

// NewUninstallCmd creates the uninstall-autocomplete command for program
func NewUninstallCmd(program string) *cobra.Command {
	var shellFlag string

	cmd := &cobra.Command{
		Use:   "uninstall-autocomplete",
		Short: "Uninstall shell completion for " + program,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to get home directory: %w", err)
			}
			return runUninstall(program, shellFlag, home, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&shellFlag, "shell", "s", "", "Shell to uninstall completion from (bash, zsh, fish, powershell). Auto-detected if not specified.")
	return cmd
}

func runInstall(rootCmd *cobra.Command, shellFlag, home string, out io.Writer) error {
	shell, err := resolveShell(shellFlag)
	if err != nil {
		return err
	}
	installPath, err := GetInstallPath(shell, home, rootCmd.Name())
	if err != nil {
		return err
	}

	dir := filepath.Dir(installPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create completion directory %s: %w", dir, err)
	}
	if err := writeCompletionScript(rootCmd, shell, installPath); err != nil {
		return err
	}

	if shell == Bash {
		if err := enableBashAutoLoad(filepath.Join(home, ".bash_completion"), installPath); err != nil {
			fmt.Fprintf(out, "Warning: could not enable auto-load: %v\n", err)
		}
	}

	fmt.Fprintf(out, "Shell completion installed for %s: %s\n", shell, installPath)
	if shell == Zsh {
		fmt.Fprintf(out, "Ensure ~/.zshrc contains:\n  fpath=(%s $fpath)\n  autoload -Uz compinit && compinit\n", dir)
	}
	return nil
}

func runUninstall(program, shellFlag, home string, out io.Writer) error {
	shell, err := resolveShell(shellFlag)
	if err != nil {
		return err
	}
	installPath, err := GetInstallPath(shell, home, program)
	if err != nil {
		return err
	}

	if _, err := os.Stat(installPath); os.IsNotExist(err) {
		return fmt.Errorf("completion not installed for %s (expected at %s)", shell, installPath)
	}

	if shell == Bash {
		if err := disableBashAutoLoad(filepath.Join(home, ".bash_completion"), installPath); err != nil {
			fmt.Fprintf(out, "Warning: could not disable auto-load: %v\n", err)
		}
	}

	if err := os.Remove(installPath); err != nil {
		return fmt.Errorf("failed to remove completion file: %w", err)
	}

	fmt.Fprintf(out, "Shell completion removed for %s: %s\n", shell, installPath)
	return nil
}

func writeCompletionScript(rootCmd *cobra.Command, shell Shell, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create completion file: %w", err)
	}
	defer file.Close()

	switch shell {
	case Bash:
		return rootCmd.GenBashCompletionV2(file, true)
	case Zsh:
		return rootCmd.GenZshCompletion(file)
	case Fish:
		return rootCmd.GenFishCompletion(file, true)
	case Powershell:
		return rootCmd.GenPowerShellCompletionWithDesc(file)
	default:
		return fmt.Errorf("unsupported shell: %s", shell)
	}
}

// enableBashAutoLoad appends a source line for installPath unless one exists.
func enableBashAutoLoad(bashCompletionFile, installPath string) error {
	content, _ := os.ReadFile(bashCompletionFile)
	if strings.Contains(string(content), installPath) {
		return nil
	}

	f, err := os.OpenFile(bashCompletionFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := "source " + installPath + "\n"
	if len(content) > 0 && content[len(content)-1] != '\n' {
		line = "\n" + line
	}
	_, err = f.WriteString(line)
	return err
}

// disableBashAutoLoad drops every line mentioning installPath.
func disableBashAutoLoad(bashCompletionFile, installPath string) error {
	content, err := os.ReadFile(bashCompletionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var kept []string
	for _, line := range strings.Split(string(content), "\n") {
		if !strings.Contains(line, installPath) {
			kept = append(kept, line)
		}
	}
	return os.WriteFile(bashCompletionFile, []byte(strings.Join(kept, "\n")), 0644)
}
