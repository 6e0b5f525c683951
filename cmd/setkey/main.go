// Command setkey stores the vision API key in a .env file.
//
//	setkey [-env path] <api-key>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"appraiserai/pkg/credential"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("setkey", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envPath := fs.String("env", ".env", "path of the .env file to update")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: setkey [-env path] <api-key>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}

	key, err := credential.ValidateKey(fs.Arg(0))
	if err != nil {
		if errors.Is(err, credential.ErrInvalidKeyFormat) {
			fmt.Fprintln(stderr, "Error: Invalid API key format. Key should start with 'sk-'")
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	provider := credential.NewEnvFileProvider(*envPath)
	if err := provider.Set(context.Background(), key); err != nil {
		fmt.Fprintf(stderr, "Error: write %s: %v\n", provider.Path(), err)
		return 1
	}
	fmt.Fprintf(stdout, "API key saved to %s (%s)\n", provider.Path(), credential.Mask(key))
	return 0
}
