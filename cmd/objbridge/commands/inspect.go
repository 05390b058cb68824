package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"objbridge/bridge"
	"objbridge/proxy"
)

var (
	flagAddr string
	flagArgs []string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect CLASS",
	Short: "Print the synthesized proxy type of a remote class",
	Long: `Construct an instance of CLASS on the server, print the proxy type synthesized
from its type description, and release the instance.

String arguments given with --arg are passed to the constructor.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVar(&flagAddr, "addr", "", "server address (overrides client.addr)")
	inspectCmd.Flags().StringArrayVar(&flagArgs, "arg", nil, "constructor argument, repeatable")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	addr := globalConfig.Client.Addr
	if flagAddr != "" {
		addr = flagAddr
	}
	opts, err := globalConfig.ClientOptions(logger)
	if err != nil {
		return err
	}

	s, err := bridge.Connect(addr, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	ctorArgs := make([]any, len(flagArgs))
	for i, a := range flagArgs {
		ctorArgs[i] = a
	}
	obj, err := s.Construct(args[0], ctorArgs)
	if err != nil {
		return err
	}
	defer obj.Release()

	printType(cmd.OutOrStdout(), obj.Type(), s.ServerVersion())
	return nil
}

func printType(out io.Writer, t *proxy.Type, version string) {
	fmt.Fprintf(out, "class:      %s\n", t.Class())
	fmt.Fprintf(out, "server:     %s\n", version)
	fmt.Fprintf(out, "interfaces: %s\n", strings.Join(t.Interfaces(), ", "))
	if fields := t.Fields(); len(fields) > 0 {
		fmt.Fprintf(out, "fields:     %s\n", strings.Join(fields, ", "))
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tWIRE\tRETURNS\tPARAMS\tOVERLOADS")
	for _, m := range t.Methods() {
		params := make([]string, len(m.Params))
		for i, p := range m.Params {
			params[i] = p.Name + " " + string(p.Type)
			if p.Optional {
				params[i] += "?"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t(%s)\t%d\n",
			m.Name, m.WireName, m.Returns, strings.Join(params, ", "), len(m.Overloads))
	}
	w.Flush()
}
