// ABOUTME: Command-line client commands built on the request pipeline
// ABOUTME: register/login persist the issued token; resource verbs reuse it automatically

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/2389/authgate/internal/client"
	"github.com/2389/authgate/internal/config"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// cliArgs are the positional arguments and --flag values of a command
type cliArgs struct {
	positional []string
	flags      map[string][]string
}

func (a cliArgs) flag(name string) string {
	if v := a.flags[name]; len(v) > 0 {
		return v[len(v)-1]
	}
	return ""
}

// parseArgs splits args into positionals and --flag values.
// Supports both "--name value" and "--name=value"; only names in known are accepted.
func parseArgs(args []string, known ...string) (cliArgs, error) {
	parsed := cliArgs{flags: make(map[string][]string)}
	isKnown := func(name string) bool {
		for _, k := range known {
			if k == name {
				return true
			}
		}
		return false
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "-" || !strings.HasPrefix(arg, "-") {
			parsed.positional = append(parsed.positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !isKnown(name) {
			return parsed, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return parsed, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		parsed.flags[name] = append(parsed.flags[name], value)
	}
	return parsed, nil
}

// newClient builds a pipeline from the client config file.
// AUTHGATE_TOKEN, when set, is used as the explicit token.
func newClient() (*client.Client, error) {
	cfg, err := config.LoadClient(getClientConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading client config: %w", err)
	}

	tokenPath := cfg.TokenPath
	if tokenPath == "" {
		tokenPath = filepath.Join(configDir(), "token")
	}

	level := slog.LevelWarn
	if os.Getenv("AUTHGATE_DEBUG") != "" {
		level = slog.LevelDebug
	}

	return client.New(client.Options{
		BaseURL:      cfg.BaseURL,
		Token:        os.Getenv("AUTHGATE_TOKEN"),
		AuthScheme:   cfg.AuthScheme,
		Timeout:      cfg.Timeout,
		ResponseType: client.ResponseType(cfg.ResponseType),
		TokenStore:   client.NewFileTokenStore(tokenPath),
		Logger:       slog.New(newColorHandler(os.Stderr, level)),
	})
}

// promptPassword reads a password without echo, or a plain line when stdin is not a terminal.
func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := readPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

func runCredentials(ctx context.Context, command string, args []string) error {
	parsed, err := parseArgs(args, "email", "password")
	if err != nil {
		return err
	}
	if len(parsed.positional) > 0 {
		return fmt.Errorf("unexpected argument: %s", parsed.positional[0])
	}

	email := strings.TrimSpace(parsed.flag("email"))
	if email == "" {
		return fmt.Errorf("--email flag is required")
	}
	password := parsed.flag("password")
	if password == "" {
		if password, err = promptPassword(); err != nil {
			return err
		}
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	if command == "register" {
		_, err = c.Register(ctx, email, password)
	} else {
		_, err = c.Login(ctx, email, password)
	}
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	if command == "register" {
		green.Printf("  ✓ Registered %s\n", email)
	} else {
		green.Printf("  ✓ Logged in as %s\n", email)
	}
	if fs, ok := c.Session().Store().(*client.FileTokenStore); ok {
		fmt.Printf("  Token saved to %s\n", fs.Path())
	}
	return nil
}

// whereQuery turns repeated --where key=value flags into query values.
func whereQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	q := make(url.Values)
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--where expects key=value, got %q", p)
		}
		q.Add(key, value)
	}
	return q, nil
}

func runRead(ctx context.Context, command string, args []string) error {
	parsed, err := parseArgs(args, "where")
	if err != nil {
		return err
	}
	if n := len(parsed.positional); n < 1 || n > 2 {
		return fmt.Errorf("usage: authgate %s <resource> [id]", command)
	}
	resource := parsed.positional[0]
	var id string
	if len(parsed.positional) == 2 {
		id = parsed.positional[1]
	}

	query, err := whereQuery(parsed.flags["where"])
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	var payload client.Payload
	if command == "get" {
		payload, err = c.Get(ctx, resource, id, query)
	} else {
		payload, err = c.Delete(ctx, resource, id, query)
	}
	if err != nil {
		return err
	}
	return printPayload(os.Stdout, payload)
}

// readBodyArg returns the JSON body argument, reading stdin for "-".
func readBodyArg(arg string) (json.RawMessage, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(os.Stdin); err != nil {
			return nil, fmt.Errorf("reading body from stdin: %w", err)
		}
	}
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, fmt.Errorf("body is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func runWrite(ctx context.Context, command string, args []string) error {
	parsed, err := parseArgs(args)
	if err != nil {
		return err
	}
	if n := len(parsed.positional); n < 2 || n > 3 {
		return fmt.Errorf("usage: authgate %s <resource> [id] <json|->", command)
	}
	resource := parsed.positional[0]
	var id string
	if len(parsed.positional) == 3 {
		id = parsed.positional[1]
	}

	body, err := readBodyArg(parsed.positional[len(parsed.positional)-1])
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	var payload client.Payload
	switch command {
	case "post":
		payload, err = c.Post(ctx, resource, body, nil, id)
	case "put":
		payload, err = c.Put(ctx, resource, body, id)
	case "patch":
		// Patch never appends an id, so address the record explicitly
		if id != "" {
			resource = path.Join(resource, id)
		}
		payload, err = c.Patch(ctx, resource, body)
	}
	if err != nil {
		return err
	}
	return printPayload(os.Stdout, payload)
}

// printPayload pretty-prints JSON payloads and writes anything else as-is.
func printPayload(w io.Writer, payload client.Payload) error {
	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		_, err = w.Write(payload)
		return err
	}
	out.WriteByte('\n')
	_, err := out.WriteTo(w)
	return err
}
