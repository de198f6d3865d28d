// Package output provides helpers for CLI output formatting.
package output

import (
	"encoding/json"
	"fmt"
	"os"
)

// Success prints a success message in the format: "<action> <target>\n"
func Success(action, target string) {
	fmt.Printf("%s %s\n", action, target)
}

// Info prints a neutral information message.
func Info(message string) {
	fmt.Println(message)
}

// Infof prints a formatted neutral information message.
func Infof(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// Print prints a message without newline. Use for raw output like answers.
func Print(message string) {
	fmt.Print(message)
}

// PrintJSON writes v to stdout as indented JSON.
func PrintJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
