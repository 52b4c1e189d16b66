package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rq/internal/llm"
	"github.com/joescharf/rq/internal/review"
)

// configForce lets `config init` replace an existing file.
var configForce bool

// configDirFunc locates the directory holding config.yaml. Tests point it
// at a temp dir.
var configDirFunc = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rq"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage rq settings",
	Long: `Inspect and manage the settings in ~/.config/rq/config.yaml.

Every setting can also come from an RQ_* environment variable, which wins
over the file. Bare 'rq config' runs 'rq config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error { return configShowRun() },
}

func init() {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write config.yaml listing every setting with its help",
		RunE:  func(cmd *cobra.Command, args []string) error { return configInitRun() },
	}
	initCmd.Flags().BoolVar(&configForce, "force", false, "Replace an existing config.yaml")

	configCmd.AddCommand(
		initCmd,
		&cobra.Command{
			Use:   "show",
			Short: "List each setting, its effective value and where it came from",
			RunE:  func(cmd *cobra.Command, args []string) error { return configShowRun() },
		},
		&cobra.Command{
			Use:   "edit",
			Short: "Open config.yaml in $VISUAL or $EDITOR",
			RunE:  func(cmd *cobra.Command, args []string) error { return configEditRun() },
		},
	)
	rootCmd.AddCommand(configCmd)
}

// setting is one config key rq understands. Settings are rendered in order;
// a dotted key is nested under its section in config.yaml.
type setting struct {
	key  string
	help string
	// example is written, commented out, when the value is empty.
	example string
	// commented keys are written commented out with their current value.
	commented bool
	secret    bool
}

var settings = []setting{
	{key: "state_dir", help: "State/data directory (default: ~/.config/rq)", commented: true},
	{key: "db_path", help: "SQLite database path (default: ~/.config/rq/rq.db)", commented: true},
	{key: "api.url", help: "REST API the review command talks to"},
	{key: "serve.port", help: "Port for rq serve"},
	{key: "review.path_template", help: "Navigation path; {projectId}, {batchId} and {submissionId} are filled in"},
	{key: "review.valid_statuses", help: "Status options offered for whole-submission review (empty keeps all)", example: "[APPROVED, REJECTED]"},
	{key: "review.success_message", help: "Message shown after a verdict is saved", example: strconv.Quote(review.DefaultSuccessMessage)},
	{key: "review.read_only_statuses", help: "Submissions already in one of these statuses open read-only", example: "[APPROVED]"},
	{key: "anthropic.api_key", help: "Key for feedback drafting (rq review --draft)", example: "sk-ant-...", secret: true},
	{key: "anthropic.model", help: "Model used for drafts", example: strconv.Quote(llm.DefaultModel)},
}

// envName is the environment variable that overrides key.
func envName(key string) string {
	return "RQ_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func splitKey(key string) (section, leaf string) {
	if i := strings.LastIndex(key, "."); i >= 0 {
		return key[:i], key[i+1:]
	}
	return "", key
}

// renderConfig writes config.yaml content for the current viper values.
func renderConfig() []byte {
	var buf bytes.Buffer
	buf.WriteString("# rq configuration\n# See: rq config show (for effective values and sources)\n")

	section := ""
	for _, st := range settings {
		sec, leaf := splitKey(st.key)
		indent := ""
		if sec != "" {
			indent = "  "
		}
		if sec != section {
			section = sec
			if sec != "" {
				buf.WriteString("\n")
				if sectionCommented(sec) {
					fmt.Fprintf(&buf, "# %s:\n", sec)
				} else {
					fmt.Fprintf(&buf, "%s:\n", sec)
				}
			}
		}

		buf.WriteString("\n")
		fmt.Fprintf(&buf, "%s# %s\n", indent, st.help)
		line, commented := st.line(leaf)
		if commented {
			fmt.Fprintf(&buf, "%s# %s\n", indent, line)
		} else {
			fmt.Fprintf(&buf, "%s%s\n", indent, line)
		}
	}
	return buf.Bytes()
}

// line renders st as "leaf: value" and reports whether it is commented out.
func (st setting) line(leaf string) (string, bool) {
	val := viper.Get(st.key)
	if isEmpty(val) && st.example != "" {
		return leaf + ": " + st.example, true
	}
	return leaf + ": " + yamlValue(val), st.commented
}

// sectionCommented reports whether every key in sec is written commented out.
func sectionCommented(sec string) bool {
	for _, st := range settings {
		s, leaf := splitKey(st.key)
		if s != sec {
			continue
		}
		if _, commented := st.line(leaf); !commented {
			return false
		}
	}
	return true
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

func yamlValue(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case []string:
		return "[" + strings.Join(x, ", ") + "]"
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = fmt.Sprint(p)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	_, statErr := os.Stat(cfgPath)
	replacing := statErr == nil
	if replacing && !configForce {
		return fmt.Errorf("%s already exists (use --force to replace it)", cfgPath)
	}

	content := renderConfig()
	if dryRun {
		ui.DryRunMsg("Would write %s:", cfgPath)
		fmt.Fprintf(ui.Out, "\n%s", content)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(cfgPath), err)
	}
	// 0600: the file may hold the Anthropic API key.
	if err := os.WriteFile(cfgPath, content, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", cfgPath, err)
	}

	if replacing {
		ui.Warning("Replaced %s", cfgPath)
	} else {
		ui.Success("Wrote %s", cfgPath)
	}
	fmt.Fprintf(ui.Out, "\n%s", content)
	return nil
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	label := cfgPath
	if _, err := os.Stat(cfgPath); err != nil {
		label = "(none)"
	}
	ui.Info("Config file: %s", label)
	fmt.Fprintln(ui.Out)

	file := fileConfig(cfgPath)
	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, st := range settings {
		val := viper.Get(st.key)
		shown := fmt.Sprint(val)
		if isEmpty(val) {
			shown = "-"
		} else if st.secret {
			shown = "********"
		}
		_ = table.Append([]string{st.key, shown, sourceOf(st.key, file).String()})
	}
	_ = table.Render()

	if problems := review.DefaultConfig().Validate(); len(problems) > 0 {
		fmt.Fprintln(ui.Out)
		for _, p := range problems {
			ui.Warning("%s", p)
		}
	}
	return nil
}

// configSource says where a setting's effective value comes from.
type configSource struct {
	env  string
	file bool
}

func (c configSource) String() string {
	switch {
	case c.env != "":
		return "env " + c.env
	case c.file:
		return "file"
	}
	return "default"
}

// fileConfig loads config.yaml on its own, so IsSet reflects the file alone.
// A missing or unreadable file yields an empty config.
func fileConfig(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	_ = v.ReadInConfig()
	return v
}

func sourceOf(key string, file *viper.Viper) configSource {
	env := envName(key)
	if _, ok := os.LookupEnv(env); ok {
		return configSource{env: env}
	}
	return configSource{file: file.IsSet(key)}
}

// editorCommand splits $VISUAL or $EDITOR, so "code --wait" works.
func editorCommand() ([]string, error) {
	for _, name := range []string{"VISUAL", "EDITOR"} {
		if fields := strings.Fields(os.Getenv(name)); len(fields) > 0 {
			return fields, nil
		}
	}
	return nil, errors.New("$EDITOR is not set; export VISUAL or EDITOR (e.g. export EDITOR=vim)")
}

func configEditRun() error {
	editor, err := editorCommand()
	if err != nil {
		return err
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file not found: %s (run 'rq config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s with %s", cfgPath, strings.Join(editor, " "))
		return nil
	}

	c := exec.Command(editor[0], append(editor[1:], cfgPath)...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", editor[0], err)
	}
	return nil
}
