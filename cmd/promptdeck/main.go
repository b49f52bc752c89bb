// Package main provides the promptdeck command line interface: a line-based
// console for managing prompt presets, fragment activation, and groups, with
// an optional outbound provider for sending composed requests.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/entrhq/promptdeck/pkg/config"
	"github.com/entrhq/promptdeck/pkg/llm"
	"github.com/entrhq/promptdeck/pkg/llm/openai"
	"github.com/entrhq/promptdeck/pkg/llm/tokenizer"
	"github.com/entrhq/promptdeck/pkg/logging"
	"github.com/entrhq/promptdeck/pkg/orchestrator"
	"github.com/entrhq/promptdeck/pkg/types"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigFile  string
	SourcesDir  string
	ShowVersion bool
}

func main() {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("promptdeck v%s\n", version)
		return
	}

	if err := run(cliCfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags
func parseFlags() *CLIConfig {
	cliCfg := &CLIConfig{}

	flag.StringVar(&cliCfg.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cliCfg.SourcesDir, "sources", "", "Override the preset sources directory")
	flag.BoolVar(&cliCfg.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "promptdeck - Prompt Preset Console\n\n")
		fmt.Fprintf(os.Stderr, "Usage: promptdeck [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nType 'help' at the prompt for console commands.\n")
	}

	flag.Parse()
	return cliCfg
}

func run(cliCfg *CLIConfig) error {
	cfg, err := config.Load(cliCfg.ConfigFile)
	if err != nil {
		return err
	}
	if cliCfg.SourcesDir != "" {
		cfg.SourcesDir = cliCfg.SourcesDir
	}

	logger, logErr := logging.NewLogger("cli")
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging unavailable: %v\n", logErr)
	}
	defer logger.Close()

	var opts []orchestrator.Option
	if tok, err := tokenizer.New(); err == nil {
		opts = append(opts, orchestrator.WithTokenizer(tok))
	} else {
		logger.Warnf("tokenizer unavailable, using approximate counts: %v", err)
	}

	orch, err := orchestrator.New(cfg, logger, opts...)
	if err != nil {
		return err
	}

	var provider llm.Provider
	if p, err := buildProvider(cfg); err != nil {
		logger.Warnf("provider unavailable: %v", err)
	} else {
		provider = p
	}

	console := &console{
		cfg:      cfg,
		orch:     orch,
		provider: provider,
		out:      os.Stdout,
	}
	return console.loop(bufio.NewScanner(os.Stdin))
}

// buildProvider constructs the outbound provider from configuration. Only
// OpenAI-compatible endpoints are supported; an unset provider means the
// console works in compose-only mode.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	if cfg.LLM.Provider == "" {
		return nil, fmt.Errorf("no provider configured")
	}

	var opts []openai.ProviderOption
	if cfg.LLM.Model != "" {
		opts = append(opts, openai.WithModel(cfg.LLM.Model))
	}
	if cfg.LLM.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	return openai.NewProvider(cfg.LLM.APIKey, opts...)
}

// console drives the interactive loop. Commands run one at a time; the only
// multi-line interactions are the two-phase operations, which consume the
// next line as their completing input.
type console struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	provider llm.Provider
	out      *os.File
}

func (c *console) printf(format string, v ...interface{}) {
	fmt.Fprintf(c.out, format, v...)
}

func (c *console) loop(scanner *bufio.Scanner) error {
	c.printf("promptdeck v%s", version)
	if current := c.orch.Current(); current != "" {
		c.printf(" - preset: %s", current)
	}
	c.printf("\nType 'help' for commands.\n")

	for {
		c.printf("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, args := splitCommand(line)
		if cmd == "quit" || cmd == "exit" {
			return nil
		}
		if err := c.dispatch(scanner, cmd, args); err != nil {
			c.printf("Error: %v\n", err)
		}
	}
}

// splitCommand separates the command word from its argument string.
func splitCommand(line string) (string, string) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.ToLower(parts[0])
	args := ""
	if len(parts) == 2 {
		args = strings.TrimSpace(parts[1])
	}
	return cmd, args
}

func (c *console) dispatch(scanner *bufio.Scanner, cmd, args string) error {
	switch cmd {
	case "help":
		c.printHelp()
		return nil
	case "presets":
		return c.cmdPresets()
	case "use":
		return c.cmdUse(args)
	case "new":
		return c.cmdNewPreset(args)
	case "list":
		return c.cmdList()
	case "view":
		return c.cmdView(args)
	case "prefix":
		return c.cmdPrefix()
	case "add":
		return c.cmdAdd(scanner, args)
	case "delete":
		return c.cmdDelete(args)
	case "activate", "on":
		return c.cmdActivate(args)
	case "deactivate", "off":
		return c.cmdDeactivate(args)
	case "active":
		return c.cmdActive()
	case "clear":
		count := c.orch.ClearActive()
		c.printf("Deactivated %d fragment(s).\n", count)
		return nil
	case "groups":
		return c.cmdGroups()
	case "group":
		return c.cmdGroup(scanner, args)
	case "refresh":
		return c.cmdRefresh()
	case "send":
		return c.cmdSend(args)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func (c *console) printHelp() {
	c.printf(`Commands:
  presets                 List presets
  use <n>                 Switch to preset n
  new <name>              Create an empty preset
  list                    List fragments of the current preset
  view <n>                Show fragment n
  prefix                  Show the preset's prefix block
  add <name>             Add a user fragment (content on the next line)
  delete <n>              Delete user fragment n
  activate <n>|@<group>   Activate a fragment or a group
  deactivate <n>          Deactivate active entry n
  active                  List the active set in order
  clear                   Deactivate everything
  groups                  List groups
  group create <name>     Create a group (indices on the next line)
  group update <name>     Replace a group's indices (next line)
  group delete <name>     Delete a group
  group view <name>       Show a group's indices
  refresh                 Re-extract sources and reload
  send <text>             Compose and send a request
  quit                    Exit
`)
}

func (c *console) cmdPresets() error {
	names := c.orch.Presets()
	if len(names) == 0 {
		c.printf("No presets loaded.\n")
		return nil
	}
	current := c.orch.Current()
	for i, name := range names {
		marker := " "
		if name == current {
			marker = "*"
		}
		c.printf("%s %d. %s\n", marker, i, name)
	}
	return nil
}

func (c *console) cmdUse(args string) error {
	indices, err := orchestrator.ParseIndices(args)
	if err != nil || len(indices) != 1 {
		return fmt.Errorf("usage: use <preset index>")
	}
	name, err := c.orch.SwitchPreset(indices[0])
	if err != nil {
		return err
	}
	c.printf("Switched to %s (%d fragment(s) active).\n", name, len(c.orch.ActiveFragments()))
	return nil
}

func (c *console) cmdNewPreset(args string) error {
	if args == "" {
		return fmt.Errorf("usage: new <preset name>")
	}
	if err := c.orch.CreatePreset(args); err != nil {
		return err
	}
	c.printf("Created preset %s.\n", args)
	return nil
}

func (c *console) cmdList() error {
	infos := c.orch.Fragments()
	if len(infos) == 0 {
		c.printf("No fragments in the current preset.\n")
		return nil
	}
	for _, info := range infos {
		marker := " "
		if info.Active {
			marker = "*"
		}
		origin := ""
		if info.UserCreated {
			origin = " (user)"
		}
		c.printf("%s %d. %s%s [%d tokens]\n", marker, info.Index, info.Name, origin, info.Tokens)
	}
	return nil
}

func (c *console) cmdView(args string) error {
	indices, err := orchestrator.ParseIndices(args)
	if err != nil || len(indices) != 1 {
		return fmt.Errorf("usage: view <fragment index>")
	}
	f, active, tokens, err := c.orch.ViewFragment(indices[0])
	if err != nil {
		return err
	}
	state := "inactive"
	if active {
		state = "active"
	}
	c.printf("%s (%s, %d tokens)\n\n%s\n", f.Name, state, tokens, f.Content)
	return nil
}

func (c *console) cmdPrefix() error {
	prefix := c.orch.PrefixText()
	if prefix == "" {
		c.printf("The current preset has no prefix block.\n")
		return nil
	}
	c.printf("%s\n", prefix)
	return nil
}

// cmdAdd runs the two-phase fragment creation: the name is on the command
// line, the content on the line that follows.
func (c *console) cmdAdd(scanner *bufio.Scanner, args string) error {
	if args == "" {
		return fmt.Errorf("usage: add <fragment name>")
	}
	op, err := c.orch.BeginAddFragment(args)
	if err != nil {
		return err
	}
	c.printf("Content for %q (until %s):\n", op.Name, op.Deadline.Format(time.Kitchen))
	if !scanner.Scan() {
		return fmt.Errorf("input closed")
	}
	result, err := c.orch.CompletePending(op.Token, scanner.Text())
	if err != nil {
		return err
	}
	c.printf("Added fragment %s.\n", result.Fragment.Name)
	return nil
}

func (c *console) cmdDelete(args string) error {
	indices, err := orchestrator.ParseIndices(args)
	if err != nil || len(indices) != 1 {
		return fmt.Errorf("usage: delete <fragment index>")
	}
	f, err := c.orch.DeleteFragment(indices[0])
	if err != nil {
		return err
	}
	c.printf("Deleted %s.\n", f.Name)
	return nil
}

func (c *console) cmdActivate(args string) error {
	if strings.HasPrefix(args, "@") {
		name := strings.TrimPrefix(args, "@")
		newly, err := c.orch.ActivateGroup(name)
		if err != nil {
			return err
		}
		if len(newly) == 0 {
			c.printf("Group %s is already fully active.\n", name)
			return nil
		}
		for _, f := range newly {
			c.printf("Activated %s.\n", f.Name)
		}
		return nil
	}

	indices, err := orchestrator.ParseIndices(args)
	if err != nil || len(indices) != 1 {
		return fmt.Errorf("usage: activate <fragment index> or activate @<group>")
	}
	f, already, err := c.orch.Activate(indices[0])
	if err != nil {
		return err
	}
	if already {
		c.printf("%s is already active.\n", f.Name)
		return nil
	}
	c.printf("Activated %s.\n", f.Name)
	return nil
}

func (c *console) cmdDeactivate(args string) error {
	indices, err := orchestrator.ParseIndices(args)
	if err != nil || len(indices) != 1 {
		return fmt.Errorf("usage: deactivate <active index>")
	}
	f, err := c.orch.Deactivate(indices[0])
	if err != nil {
		return err
	}
	c.printf("Deactivated %s.\n", f.Name)
	return nil
}

func (c *console) cmdActive() error {
	active := c.orch.ActiveFragments()
	if len(active) == 0 {
		c.printf("Nothing is active.\n")
		return nil
	}
	for i, f := range active {
		c.printf("%d. %s\n", i, f.Name)
	}
	return nil
}

func (c *console) cmdGroups() error {
	names := c.orch.GroupNames()
	if len(names) == 0 {
		c.printf("No groups for the current preset.\n")
		return nil
	}
	for _, name := range names {
		c.printf("%s: %v\n", name, c.orch.Group(name))
	}
	return nil
}

func (c *console) cmdGroup(scanner *bufio.Scanner, args string) error {
	sub, rest := splitCommand(args)
	switch sub {
	case "create", "update":
		if rest == "" {
			return fmt.Errorf("usage: group %s <name>", sub)
		}
		var op *orchestrator.PendingOp
		var err error
		if sub == "create" {
			op, err = c.orch.BeginGroupCreate(rest)
		} else {
			op, err = c.orch.BeginGroupUpdate(rest)
		}
		if err != nil {
			return err
		}
		c.printf("Indices for group %q, comma separated (until %s):\n", op.Name, op.Deadline.Format(time.Kitchen))
		if !scanner.Scan() {
			return fmt.Errorf("input closed")
		}
		result, err := c.orch.CompletePending(op.Token, scanner.Text())
		if err != nil {
			return err
		}
		c.printf("Group %s now holds %v.\n", result.Name, result.Indices)
		return nil
	case "delete":
		if rest == "" {
			return fmt.Errorf("usage: group delete <name>")
		}
		if err := c.orch.DeleteGroup(rest); err != nil {
			return err
		}
		c.printf("Deleted group %s.\n", rest)
		return nil
	case "view":
		if rest == "" {
			return fmt.Errorf("usage: group view <name>")
		}
		if !c.orch.HasGroup(rest) {
			return fmt.Errorf("group %q not found", rest)
		}
		c.printf("%s: %v\n", rest, c.orch.Group(rest))
		return nil
	default:
		return fmt.Errorf("usage: group create|update|delete|view <name>")
	}
}

func (c *console) cmdRefresh() error {
	stats, err := c.orch.Refresh()
	if err != nil {
		return err
	}
	c.printf("Reloaded %d preset(s), %d fragment(s).\n", stats.PresetCount, stats.FragmentCount)
	return nil
}

// cmdSend composes a request from the current preset state and, when a
// provider is configured, sends it and prints the reply. Without a provider
// the composed request is printed instead.
func (c *console) cmdSend(args string) error {
	if args == "" {
		return fmt.Errorf("usage: send <message>")
	}

	req := &types.CompletionRequest{UserPrompt: args}
	c.orch.Apply(req)

	if c.provider == nil {
		c.printf("No provider configured; composed request:\n")
		if req.SystemPrompt != "" {
			c.printf("--- system ---\n%s\n", req.SystemPrompt)
		}
		c.printf("--- user ---\n%s\n", req.UserPrompt)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reply, err := c.provider.Complete(ctx, req.Messages())
	if err != nil {
		return err
	}
	c.printf("%s\n", reply.Content)
	return nil
}
