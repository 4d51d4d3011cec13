// Package cli implements the nanocat command line.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/coffersTech/nanocat/internal/adb"
	"github.com/coffersTech/nanocat/internal/config"
	"github.com/coffersTech/nanocat/internal/pipeline"
)

// options holds the flags that are not routed through viper.
type options struct {
	configPath   string
	profilesPath string
	profile      string
	serial       string
	verbose      bool

	inputs       []string
	follow       bool
	inputFormat  string
	continuation string
	noRestart    bool
	tail         int
	dump         bool
	last         bool

	level            string
	tag              []string
	tagIgnoreCase    []string
	message          []string
	messageIgnoreCase []string
	regex            []string
	pid              []string
	processName      []string
	expr             string
	highlight        []string
	highlightExpr    string
	head             int

	format         string
	template       string
	output         string
	recordsPerFile string
	filenameFormat string
	overwrite      bool

	archive       string
	live          string
	liveTokenHash string
	forward       string
	forwardKey    string
	stats         bool
}

// viperFlags maps config keys to the flags that override them.
var viperFlags = map[string]string{
	"restart":                 "restart",
	"buffer":                  "buffer",
	"terminal.color":          "color",
	"terminal.hide_timestamp": "hide-timestamp",
	"terminal.show_date":      "show-date",
	"terminal.bright_colors":  "bright-colors",
	"terminal.no_dimm":        "no-dimm",
}

// NewRootCommand builds the nanocat command tree.
func NewRootCommand(version string) *cobra.Command {
	o := &options{}
	v := config.New()

	cmd := &cobra.Command{
		Use:   "nanocat [COMMAND|-]",
		Short: "Stream, filter and ship device logs",
		Long: `nanocat reads log lines from adb logcat, a command, serial or CAN
devices, TCP sockets or files, parses them into records, filters them and
writes the result to the terminal, files, an sqlite archive, a websocket
live view or a remote collector.

Examples:
  nanocat -t ActivityManager -l warn
  nanocat -i serial:///dev/ttyUSB0?baud=115200 --input-format raw
  nanocat -i "logs/**/*.log.zst" --filter 'level>=error AND tag~"^Wifi"'
  adb logcat | nanocat - -f json -o out.json.zst`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.ReadFile(v, o.configPath); err != nil {
				return err
			}
			return bindFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, v, o, args, version)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "", "config file (default $HOME/.config/nanocat/config.yaml)")
	pf.StringVarP(&o.profilesPath, "profiles-path", "P", "", "profiles file (default $NANOCAT_PROFILES or $HOME/.config/nanocat/profiles.yaml)")
	pf.StringVarP(&o.serial, "serial", "s", "", "adb device serial")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging on stderr")

	f := cmd.Flags()
	f.Bool("help", false, "help for nanocat")
	f.StringArrayVarP(&o.inputs, "input", "i", nil, "input: serial://, can://, tcp://host:port, file path or glob, - for stdin (repeatable)")
	f.BoolVar(&o.follow, "follow", false, "keep reading a single input file as it grows")
	f.StringVar(&o.inputFormat, "input-format", "", "input line format: auto, threadtime, brief, csv, json, can, raw (default threadtime for adb, auto otherwise)")
	f.StringVar(&o.continuation, "continuation", "never", "multi-line records: never, indented, unmatched")
	f.Bool("restart", true, "restart the input command when it exits")
	f.BoolVar(&o.noRestart, "no-restart", false, "do not restart the input command")
	f.StringSlice("buffer", adb.DefaultBuffers, "logcat buffers to read")
	f.IntVar(&o.tail, "tail", 0, "print only the most recent N lines and exit")
	f.BoolVarP(&o.dump, "dump", "d", false, "dump the log buffers and exit")
	f.BoolVarP(&o.last, "last", "L", false, "dump the logs from before the last reboot")

	f.StringVarP(&o.level, "level", "l", "", "minimum level: trace, debug, info, warn, error, fatal")
	f.StringArrayVarP(&o.tag, "tag", "t", nil, "tag regex, ! negates (repeatable)")
	f.StringArrayVarP(&o.tagIgnoreCase, "Tag", "T", nil, "case insensitive tag regex (repeatable)")
	f.StringArrayVarP(&o.message, "message", "m", nil, "message regex, ! negates (repeatable)")
	f.StringArrayVarP(&o.messageIgnoreCase, "Message", "M", nil, "case insensitive message regex (repeatable)")
	f.StringArrayVarP(&o.regex, "regex", "r", nil, "regex on any field, ! negates (repeatable)")
	f.StringArrayVar(&o.pid, "pid", nil, "process id (repeatable)")
	f.StringArrayVarP(&o.processName, "process-name", "N", nil, "process name resolved via adb at startup (repeatable)")
	f.StringVar(&o.expr, "filter", "", `filter expression, e.g. 'level>=warn AND NOT tag:"chatty"'`)
	f.StringArrayVarP(&o.highlight, "highlight", "h", nil, "highlight regex on tag or message (repeatable)")
	f.StringVar(&o.highlightExpr, "highlight-filter", "", "highlight expression")
	f.IntVarP(&o.head, "head", "H", 0, "stop after N records")
	f.StringVarP(&o.profile, "profile", "p", "", "filter profile to apply")

	f.StringVarP(&o.format, "format", "f", "human", "output format: human, json, csv, raw, template, cbor")
	f.StringVar(&o.template, "template", "", "text/template for the template format")
	f.StringVarP(&o.output, "output", "o", "", "write to file instead of stdout (.zst and .lz4 compress)")
	f.StringVarP(&o.recordsPerFile, "records-per-file", "n", "", "rotate output after N records (k, M, G suffixes)")
	f.StringVarP(&o.filenameFormat, "filename-format", "a", "single", "output file naming: single, enumerate, date")
	f.BoolVar(&o.overwrite, "overwrite", false, "overwrite existing output files")
	f.String("color", "auto", "terminal colors: auto, always, never")
	f.Bool("hide-timestamp", false, "hide timestamps in terminal output")
	f.Bool("show-date", false, "show the date in terminal output")
	f.Bool("bright-colors", false, "use bright terminal colors")
	f.Bool("no-dimm", false, "do not dim timestamps and markers")

	f.StringVar(&o.archive, "archive", "", "append records to an sqlite archive")
	f.StringVar(&o.live, "live", "", "serve a websocket live view on this address, e.g. :8088")
	f.StringVar(&o.liveTokenHash, "live-token-hash", "", "bcrypt hash of the live view token")
	f.StringVar(&o.forward, "forward", "", "forward records to a nanolog collector URL")
	f.StringVar(&o.forwardKey, "forward-key", "", "collector API key")
	f.BoolVar(&o.stats, "stats", false, "print level and tag statistics at exit")

	cmd.AddCommand(
		newDevicesCommand(o),
		newClearCommand(o, v),
		newLogCommand(o),
		newBugreportCommand(o),
		newProfilesCommand(o),
	)
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range viperFlags {
		if fl := flags.Lookup(name); fl != nil {
			if err := v.BindPFlag(key, fl); err != nil {
				return err
			}
		}
	}
	return nil
}

func queueSize(n int) int {
	if n <= 0 {
		return pipeline.DefaultQueueSize
	}
	return n
}
