// Command keyhash prints the argon2id hash of a module API key for use in
// SCHEDULER_MODULE_KEYS.
//
//	keyhash -module sales -key "$SALES_KEY"
//	echo "$SALES_KEY" | keyhash -module sales
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/scheduling-core/internal/auth"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "keyhash:", err)
		os.Exit(2)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("keyhash", flag.ContinueOnError)
	module := fs.String("module", "", "module name the key belongs to")
	key := fs.String("key", "", "API key; read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*module) == "" {
		return errors.New("-module is required")
	}

	value := *key
	if value == "" {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read key: %w", err)
		}
		value = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashKey(value, auth.DefaultParams)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s=%s\n", strings.TrimSpace(*module), hash)
	return err
}
