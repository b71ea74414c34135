package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// pinEnv lets scripts supply the current PIN without a prompt.
const pinEnv = "LOGINKIT_PIN"

// readPIN returns value if set, then $LOGINKIT_PIN, then asks on the
// terminal.
func readPIN(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	if env := os.Getenv(pinEnv); env != "" {
		return env, nil
	}
	return promptSecret(os.Stdin, os.Stderr, prompt)
}

func promptSecret(in *os.File, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	defer fmt.Fprintln(out)

	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read PIN: %w", err)
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read PIN: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
