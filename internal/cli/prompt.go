package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForDirectory asks for the input directory on stdin. An empty answer
// selects the current directory.
func PromptForDirectory() string {
	return promptForDirectory(os.Stdin, os.Stdout)
}

func promptForDirectory(in io.Reader, out io.Writer) string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	fmt.Fprintf(out, "Image directory [%s]: ", cwd)

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		if err != io.EOF {
			log.Warn().Err(err).Msg("Failed to read input, using current directory")
		}
		return cwd
	}
	if input = strings.TrimSpace(input); input == "" {
		return cwd
	}
	return input
}
