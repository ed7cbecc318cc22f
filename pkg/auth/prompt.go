package auth

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

// Prompter asks the user for credentials. username is pre-filled when it was
// configured and only the password is missing.
type Prompter interface {
	PromptCredentials(ctx context.Context, username string) (string, string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, username string) (string, string, error)

// PromptCredentials calls f.
func (f PrompterFunc) PromptCredentials(ctx context.Context, username string) (string, string, error) {
	return f(ctx, username)
}

// TerminalPrompter prompts on a terminal with promptui, masking the password.
type TerminalPrompter struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

// NewTerminalPrompter returns a prompter bound to the process's stdin and
// stdout, or nil when stdin is not a terminal.
func NewTerminalPrompter() Prompter {
	if !term.IsTerminal(int(os.Stdin.Fd())) { // #nosec G115 -- file descriptors fit in int
		return nil
	}
	return &TerminalPrompter{Stdin: os.Stdin, Stdout: os.Stdout}
}

// PromptCredentials prompts for the username (unless given) and the password.
func (p *TerminalPrompter) PromptCredentials(ctx context.Context, username string) (string, string, error) {
	notEmpty := func(s string) error {
		if s == "" {
			return errors.New("value is required")
		}
		return nil
	}

	if username == "" {
		prompt := promptui.Prompt{
			Label:    "Enter your Auth0 username",
			Validate: notEmpty,
			Stdin:    p.Stdin,
			Stdout:   p.Stdout,
		}
		u, err := prompt.Run()
		if err != nil {
			return "", "", err
		}
		username = u
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	prompt := promptui.Prompt{
		Label:       "Enter your Auth0 password",
		Mask:        '*',
		HideEntered: true,
		Validate:    notEmpty,
		Stdin:       p.Stdin,
		Stdout:      p.Stdout,
	}
	password, err := prompt.Run()
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}
