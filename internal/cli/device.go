package cli

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coffersTech/nanocat/internal/adb"
	"github.com/coffersTech/nanocat/internal/config"
	"github.com/coffersTech/nanocat/internal/model"
	"github.com/coffersTech/nanocat/internal/sink"
)

func newDevicesCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List attached devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := adb.New(o.serial)
			if err != nil {
				return err
			}
			devices, err := c.Devices(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", d.Serial, d.State)
			}
			return nil
		},
	}
}

func newClearCommand(o *options, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the device log buffers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.Decode(v)
			if err != nil {
				return err
			}
			c, err := adb.New(o.serial)
			if err != nil {
				return err
			}
			return c.Clear(cmd.Context(), settings.Buffer)
		},
	}
	cmd.Flags().StringSlice("buffer", adb.DefaultBuffers, "buffers to clear")
	return cmd
}

func newLogCommand(o *options) *cobra.Command {
	var (
		tag   string
		level string
	)
	cmd := &cobra.Command{
		Use:   "log MESSAGE|-",
		Short: "Write a message to the device log",
		Long:  "Write a message to the device log. With - every line read from stdin is logged.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lv, ok := model.ParseLevel(level)
			if !ok {
				return fmt.Errorf("invalid level %q", level)
			}
			c, err := adb.New(o.serial)
			if err != nil {
				return err
			}
			if args[0] != "-" {
				return c.Log(cmd.Context(), lv, tag, args[0])
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				if err := c.Log(cmd.Context(), lv, tag, line); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
	cmd.Flags().StringVarP(&tag, "tag", "t", "nanocat", "log tag")
	cmd.Flags().StringVarP(&level, "level", "l", "debug", "log level: trace, debug, info, warn, error, fatal")
	return cmd
}

func newBugreportCommand(o *options) *cobra.Command {
	var zip, overwrite bool
	cmd := &cobra.Command{
		Use:   "bugreport [FILE]",
		Short: "Capture a device bugreport to a file",
		Long: `Capture the dumpstate text report of a device. FILE defaults to
MM-DD_HH-MM-SS-bugreport.txt in the current directory. A .zst, .lz4 or .zip
extension compresses the report. Android 7 and later only produce zipped
reports through adb directly and are not supported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := reportFilename(time.Now())
			if len(args) == 1 {
				path = args[0]
			}
			if zip && !strings.HasSuffix(path, ".zip") {
				path += ".zip"
			}
			c, err := adb.New(o.serial)
			if err != nil {
				return err
			}
			out, err := sink.CreateOutput(path, overwrite)
			if err != nil {
				return err
			}
			n, err := c.Bugreport(cmd.Context(), out)
			if cerr := out.Close(); err == nil && cerr != nil {
				err = fmt.Errorf("close %s: %w", path, cerr)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Finished %s (%d bytes)\n", path, n)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&zip, "zip", "z", false, "zip the report")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite the report file if present")
	return cmd
}

func reportFilename(now time.Time) string {
	return now.Format("01-02_15-04-05") + "-bugreport.txt"
}
