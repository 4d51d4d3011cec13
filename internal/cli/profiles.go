package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coffersTech/nanocat/internal/config"
	"github.com/coffersTech/nanocat/internal/profile"
)

var errNoProfiles = errors.New("no profiles defined")

func newProfilesCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles [NAME]",
		Short: "List profiles or show one with its extends resolved",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, required := profile.Path(o.profilesPath, config.Dir())
			set, err := profile.Load(path, required)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				p, err := set.Resolve(args[0])
				if err != nil {
					return err
				}
				data, err := yaml.Marshal(p)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			names := set.Names()
			if len(names) == 0 {
				return fmt.Errorf("%w in %s", errNoProfiles, path)
			}
			t := table.New().Headers("PROFILE", "EXTENDS", "COMMENT")
			for _, name := range names {
				p := set.Profiles[name]
				t.Row(name, strings.Join(p.Extends, ", "), p.Comment)
			}
			_, err = fmt.Fprintln(out, t.Render())
			return err
		},
	}
}
