package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rescale/brocoli/internal/catalog"
	"github.com/rescale/brocoli/internal/catalog/local"
	"github.com/rescale/brocoli/internal/form"
	"github.com/rescale/brocoli/internal/http"
	"github.com/rescale/brocoli/internal/pathutil"
	"github.com/rescale/brocoli/internal/preferences"
)

// newTypesCmd creates the 'types' command.
func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List catalog types and their connection fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for i, name := range registry.Names() {
				t, err := registry.Lookup(name)
				if err != nil {
					return err
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				fmt.Fprintf(out, "%s - %s\n", t.Name, t.Description)
				fs := t.Fields()
				if fs.Len() == 0 {
					fmt.Fprintln(out, "  (no fields)")
					continue
				}
				for _, field := range fs.Names() {
					f, _ := fs.Get(field)
					fmt.Fprintf(out, "  %-20s %-9s %-12s %s\n", field, f.Kind(), defaultValue(f), f.Label())
				}
			}
			return nil
		},
	}
}

func defaultValue(f form.Field) string {
	if f.Kind() == form.KindPassword || f.String() == "" {
		return "-"
	}
	return f.String()
}

// newConnectionsCmd creates the 'connections' command group.
func newConnectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Manage the connections of the profile file",
		Long: `Manage the connections stored in the profile file.

Commands:
  list     - Show connections
  add      - Add a connection
  edit     - Change a connection
  remove   - Delete a connection
  default  - Select the default connection
  proxy    - Configure the proxy used by remote connections`,
	}

	cmd.AddCommand(newConnectionsListCmd())
	cmd.AddCommand(newConnectionsAddCmd())
	cmd.AddCommand(newConnectionsEditCmd())
	cmd.AddCommand(newConnectionsRemoveCmd())
	cmd.AddCommand(newConnectionsDefaultCmd())
	cmd.AddCommand(newConnectionsProxyCmd())
	return cmd
}

func openManager() (*preferences.Manager, error) {
	return preferences.Open(profilePath(), registry, bus)
}

// apply saves the manager and reports what happened.
func apply(cmd *cobra.Command, m *preferences.Manager) error {
	wrote, err := m.Apply()
	if err != nil {
		return err
	}
	if wrote {
		GetLogger().Info().Str("path", profilePath()).Msg("Profile saved")
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "No changes")
	}
	return nil
}

func newConnectionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-20s %-10s %-8s %s\n", "NAME", "TYPE", "DEFAULT", "ROOT")
			for _, row := range m.Rows() {
				def := ""
				if row.Default {
					def = "*"
				}
				fmt.Fprintf(out, "%-20s %-10s %-8s %s\n", row.Name, row.CatalogType, def, row.RootPath)
			}
			return nil
		},
	}
}

// draftFlags are shared by 'add' and 'edit'.
type draftFlags struct {
	catalogType string
	root        string
	set         []string
	makeDefault bool
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.catalogType, "type", "t", "", "Catalog type (see 'brocoli types')")
	cmd.Flags().StringVar(&f.root, "root", "", "Root path of the connection")
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "Catalog field as key=value (repeatable)")
	cmd.Flags().BoolVar(&f.makeDefault, "default", false, "Make this the default connection")
}

// fill applies the flags that were given to d and prompts for secrets that
// are stored but still empty.
func (f *draftFlags) fill(cmd *cobra.Command, d *preferences.Draft) error {
	if cmd.Flags().Changed("type") {
		if err := d.SetCatalogType(f.catalogType); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("root") {
		root := f.root
		if d.CatalogType() == local.TypeName {
			resolved, err := pathutil.ResolveAbsolutePath(root)
			if err != nil {
				return err
			}
			root = resolved
		}
		d.SetRoot(root)
	}
	if cmd.Flags().Changed("default") {
		d.SetDefault(f.makeDefault)
	}

	var assigned []string
	for _, kv := range f.set {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("--set %q: expected key=value", kv)
		}
		if err := d.Set(key, value); err != nil {
			return err
		}
		assigned = append(assigned, key)
	}

	if !isTerminal(cmd.InOrStdin()) {
		return nil
	}
	fs := d.Fields()
	for _, name := range catalog.SecretFields(fs) {
		if slices.Contains(assigned, name) || !fs.Active(name) || fs.Secret(name) != "" {
			continue
		}
		field, _ := fs.Get(name)
		secret, err := promptSecret(cmd, field.Label())
		if err != nil {
			return err
		}
		if err := d.Set(name, secret); err != nil {
			return err
		}
	}
	return nil
}

func newConnectionsAddCmd() *cobra.Command {
	var flags draftFlags

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a connection",
		Example: `  brocoli connections add scratch --type os --root /scratch
  brocoli connections add results --type s3 --root runs --set bucket=results --set region=eu-west-1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			d, err := m.NewDraft()
			if err != nil {
				return err
			}
			d.SetName(args[0])
			if err := flags.fill(cmd, d); err != nil {
				return err
			}
			if err := m.Add(d); err != nil {
				return err
			}
			return apply(cmd, m)
		},
	}

	flags.register(cmd)
	return cmd
}

func newConnectionsEditCmd() *cobra.Command {
	var flags draftFlags
	var rename string

	cmd := &cobra.Command{
		Use:   "edit <name>",
		Short: "Change a connection",
		Long: `Change a connection. Only the given flags are modified; switching --type
keeps the values of fields the new type shares with the old one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			d, err := m.EditDraft(args[0])
			if err != nil {
				return err
			}
			if rename != "" {
				d.SetName(rename)
			}
			if err := flags.fill(cmd, d); err != nil {
				return err
			}
			if err := m.Edit(args[0], d); err != nil {
				return err
			}
			return apply(cmd, m)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&rename, "name", "", "New connection name")
	return cmd
}

func newConnectionsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name> [name...]",
		Aliases: []string{"rm"},
		Short:   "Delete connections",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			for _, name := range args {
				if err := m.Remove(name); err != nil {
					return err
				}
			}
			return apply(cmd, m)
		},
	}
}

func newConnectionsDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default <name>",
		Short: "Select the default connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			if err := m.SetDefault(args[0]); err != nil {
				return err
			}
			return apply(cmd, m)
		},
	}
}

func newConnectionsProxyCmd() *cobra.Command {
	var p http.ProxyConfig
	var askPassword bool

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Configure the proxy used by remote connections",
		Long: `Configure the proxy used by remote connections.

Modes: no-proxy, system (HTTP_PROXY/HTTPS_PROXY), basic, ntlm.
Without flags the current settings are shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager()
			if err != nil {
				return err
			}
			current := m.Config().Proxy
			if !anyChanged(cmd) {
				printProxy(cmd, current)
				return nil
			}

			if !cmd.Flags().Changed("password") {
				p.Password = current.Password
			}
			if askPassword {
				pw, err := promptSecret(cmd, "Proxy password")
				if err != nil {
					return err
				}
				p.Password = pw
			}
			if err := m.SetProxy(p); err != nil {
				return err
			}
			return apply(cmd, m)
		},
	}

	cmd.Flags().StringVar(&p.Mode, "mode", http.ProxyNone, "Proxy mode: no-proxy, system, basic, ntlm")
	cmd.Flags().StringVar(&p.Host, "host", "", "Proxy host")
	cmd.Flags().IntVar(&p.Port, "port", 0, "Proxy port (default 8080)")
	cmd.Flags().StringVar(&p.User, "user", "", "Proxy user")
	cmd.Flags().StringVar(&p.Password, "password", "", "Proxy password (prefer --ask-password)")
	cmd.Flags().BoolVar(&askPassword, "ask-password", false, "Prompt for the proxy password")
	cmd.Flags().StringVar(&p.NoProxy, "no-proxy", "", "Comma separated hosts or CIDRs reached directly")
	return cmd
}

func anyChanged(cmd *cobra.Command) bool {
	changed := false
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		changed = changed || f.Changed
	})
	return changed
}

func printProxy(cmd *cobra.Command, p http.ProxyConfig) {
	out := cmd.OutOrStdout()
	mode := p.Mode
	if mode == "" {
		mode = http.ProxyNone
	}
	fmt.Fprintf(out, "Mode:     %s\n", mode)
	if mode == http.ProxyNone || mode == http.ProxySystem {
		return
	}
	fmt.Fprintf(out, "Host:     %s\n", p.Host)
	fmt.Fprintf(out, "Port:     %d\n", p.Port)
	fmt.Fprintf(out, "User:     %s\n", p.User)
	stored := "no"
	if p.Password != "" {
		stored = "yes"
	}
	fmt.Fprintf(out, "Password: %s\n", stored)
	fmt.Fprintf(out, "No proxy: %s\n", p.NoProxy)
}
