package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coffersTech/nanocat/internal/adb"
	"github.com/coffersTech/nanocat/internal/clock"
	"github.com/coffersTech/nanocat/internal/config"
	"github.com/coffersTech/nanocat/internal/filter"
	"github.com/coffersTech/nanocat/internal/metrics"
	"github.com/coffersTech/nanocat/internal/parser"
	"github.com/coffersTech/nanocat/internal/pipeline"
	"github.com/coffersTech/nanocat/internal/profile"
	"github.com/coffersTech/nanocat/internal/sink"
	"github.com/coffersTech/nanocat/internal/source"
)

func run(cmd *cobra.Command, v *viper.Viper, o *options, args []string, version string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := NewLogger(cmd.ErrOrStderr(), o.verbose)
	settings, err := config.Decode(v)
	if err != nil {
		return err
	}
	if o.noRestart {
		settings.Restart = false
	}

	// Everything that can fail on bad input is checked before the
	// source is opened.
	opener, isADB, err := o.opener(args, settings)
	if err != nil {
		return err
	}
	p, err := o.parser(settings, isADB)
	if err != nil {
		return err
	}
	rules, err := o.rules(ctx)
	if err != nil {
		return err
	}
	engine, err := rules.Engine()
	if err != nil {
		return err
	}
	policy, err := settings.Retry.Policy()
	if err != nil {
		return err
	}
	m, err := metrics.New()
	if err != nil {
		return err
	}

	handle := source.NewHandle(opener,
		source.WithPolicy(policy),
		source.WithObserver(m.Observe),
		source.WithLogger(logger),
	)
	var sessionOpts []pipeline.SessionOption
	if o.head > 0 {
		sessionOpts = append(sessionOpts, pipeline.WithHead(o.head))
	}
	session := pipeline.NewSession(handle, p, engine, sessionOpts...)
	logger = logger.With("session", session.ID)

	if err := o.registerSinks(cmd, session, settings, m, logger, version); err != nil {
		closeSinks(session)
		_ = handle.Close()
		return err
	}

	d := pipeline.NewDispatcher(
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(m),
		pipeline.WithIdleFlush(settings.IdleFlush),
	)
	logger.Debug("session started", "source", handle.Identity(), "sinks", len(session.Sinks()))
	summary, err := d.Run(ctx, session)
	logger.Debug("session ended",
		"reason", summary.Reason.String(),
		"ingested", summary.Ingested,
		"kept", summary.Kept,
		"filtered", summary.Filtered,
		"reconnects", summary.Reconnects,
		"elapsed", summary.Elapsed,
	)
	for _, s := range summary.Sinks {
		if s.Dropped > 0 {
			logger.Warn("records dropped", "sink", s.Name, "dropped", s.Dropped)
		}
	}
	return err
}

// opener picks the source: an explicit input, a command, stdin or adb
// logcat when nothing is given.
func (o *options) opener(args []string, s config.Settings) (source.Opener, bool, error) {
	switch {
	case len(o.inputs) > 0 && len(args) > 0:
		return nil, false, errors.New("give either --input or a command, not both")
	case len(o.inputs) > 0:
		op, err := source.Parse(o.inputs, source.Options{Follow: o.follow})
		return op, false, err
	case len(args) == 1 && args[0] == source.StdinPath:
		op, err := source.Parse(args, source.Options{})
		return op, false, err
	case len(args) == 1:
		return source.NewProcess(args[0], !s.Restart), false, nil
	}
	c, err := adb.New(o.serial)
	if err != nil {
		return nil, false, err
	}
	return c.Logcat(adb.LogcatOptions{
		Buffers: s.Buffer,
		Tail:    o.tail,
		Dump:    o.dump,
		Last:    o.last,
		Restart: s.Restart,
	}), true, nil
}

func (o *options) parser(s config.Settings, isADB bool) (*parser.Parser, error) {
	name := o.inputFormat
	if name == "" {
		name = "auto"
		if isADB {
			name = "threadtime"
		}
	}
	format, err := parser.Lookup(name)
	if err != nil {
		return nil, err
	}
	cont, err := parser.ParseContinuation(o.continuation)
	if err != nil {
		return nil, err
	}
	return parser.New(format,
		parser.WithContinuation(cont),
		parser.WithMaxLineLength(s.MaxLineLength),
	), nil
}

// rules merges the flags with the selected profile and resolves process
// names to PIDs.
func (o *options) rules(ctx context.Context) (filter.Rules, error) {
	path, required := profile.Path(o.profilesPath, config.Dir())
	set, err := profile.Load(path, required)
	if err != nil {
		return filter.Rules{}, err
	}
	prof, err := set.Resolve(o.profile)
	if err != nil {
		return filter.Rules{}, err
	}
	r := filter.Rules{
		Level:             o.level,
		Tag:               o.tag,
		TagIgnoreCase:     o.tagIgnoreCase,
		Message:           o.message,
		MessageIgnoreCase: o.messageIgnoreCase,
		PID:               o.pid,
		Regex:             o.regex,
		Expr:              o.expr,
		Highlight:         o.highlight,
		HighlightExpr:     o.highlightExpr,
	}.Merge(prof.Rules())

	names := append(append([]string(nil), o.processName...), prof.ProcessName...)
	if len(names) > 0 {
		c, err := adb.New(o.serial)
		if err != nil {
			return filter.Rules{}, fmt.Errorf("--process-name: %w", err)
		}
		pids, err := c.ProcessPIDs(ctx, names)
		if err != nil {
			return filter.Rules{}, err
		}
		if len(pids) == 0 {
			return filter.Rules{}, fmt.Errorf("no running process named %s", strings.Join(names, ", "))
		}
		for _, pid := range pids {
			r.PID = append(r.PID, "^"+pid+"$")
		}
	}
	return r, nil
}

func (o *options) registerSinks(cmd *cobra.Command, s *pipeline.Session, settings config.Settings, m *metrics.Metrics, logger *slog.Logger, version string) error {
	size := queueSize(settings.QueueSize)
	out := cmd.OutOrStdout()

	switch {
	case o.output != "":
		every := 0
		if o.recordsPerFile != "" {
			n, err := sink.ParseCount(o.recordsPerFile)
			if err != nil {
				return err
			}
			every = n
		}
		naming, err := sink.ParseFilenameFormat(o.filenameFormat)
		if err != nil {
			return err
		}
		format := o.format
		if format == sink.FormatHuman {
			format = sink.FormatRaw
		}
		f, err := sink.NewFile(sink.FileOptions{
			Path:           o.output,
			Format:         format,
			Template:       o.template,
			RecordsPerFile: every,
			Filename:       naming,
			Overwrite:      o.overwrite,
		})
		if err != nil {
			return err
		}
		s.Register(f, size)
	case o.format == sink.FormatHuman:
		color, err := sink.ParseColorMode(settings.Terminal.Color)
		if err != nil {
			return err
		}
		s.Register(sink.NewTerminal(out, sink.TerminalOptions{
			Color:         color,
			TagWidth:      settings.Terminal.TagWidth,
			HideTimestamp: settings.Terminal.HideTimestamp,
			ShowDate:      settings.Terminal.ShowDate,
			BrightColors:  settings.Terminal.BrightColors,
			NoDimm:        settings.Terminal.NoDimm,
		}), size)
	default:
		st, err := sink.NewStream("stdout", out, o.format, o.template)
		if err != nil {
			return err
		}
		s.Register(st, size)
	}

	if o.archive != "" {
		a, err := sink.OpenArchive(o.archive, s.ID, s.Source().Identity(), sink.DefaultArchiveBatch)
		if err != nil {
			return err
		}
		s.Register(a, size)
	}

	var stats *sink.Stats
	if o.stats || o.live != "" {
		var summary io.Writer
		if o.stats {
			summary = cmd.ErrOrStderr()
		}
		stats = sink.NewStats(summary, clock.Real(), 0)
		s.Register(stats, size)
	}

	if o.live != "" {
		l := sink.NewLive(s.ID, sink.LiveOptions{
			Addr:      o.live,
			TokenHash: o.liveTokenHash,
			Metrics:   m,
			Stats:     stats,
			Logger:    logger,
		})
		if err := l.Start(); err != nil {
			return err
		}
		logger.Info("live view listening", "addr", l.Addr())
		s.Register(l, size)
	}

	if o.forward != "" {
		s.Register(sink.NewForward(sink.ForwardOptions{
			URL:     o.forward,
			APIKey:  o.forwardKey,
			Logger:  logger,
			Version: version,
		}), size)
	}
	return nil
}

// closeSinks releases sinks registered before a later one failed to
// start.
func closeSinks(s *pipeline.Session) {
	for _, sk := range s.Sinks() {
		if c, ok := sk.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
