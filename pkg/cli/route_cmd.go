package cli

import (
	"github.com/spf13/cobra"

	"cutover/internal/domain"
)

type routeDecision struct {
	Identity string         `json:"identity,omitempty"`
	Backend  domain.Backend `json:"backend"`
}

func newRouteCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "route [identity...]",
		Short: "Show which backend would serve a query for the given identities",
		Long: "Resolves the current routing decision for each identity against the live " +
			"flag snapshot. With no arguments, shows one anonymous (random) decision.",
		RunE: func(cmd *cobra.Command, args []string) error {
			identities := args
			if len(identities) == 0 {
				identities = []string{""}
			}

			decisions := make([]routeDecision, 0, len(identities))
			for _, id := range identities {
				decisions = append(decisions, routeDecision{
					Identity: id,
					Backend:  env.app.Router.Route(cmd.Context(), id),
				})
			}

			if env.output == "json" {
				return printJSON(cmd.OutOrStdout(), decisions)
			}
			for _, d := range decisions {
				name := d.Identity
				if name == "" {
					name = "(anonymous)"
				}
				cmd.Printf("%-30s -> %s\n", name, d.Backend)
			}
			return nil
		},
	}
}
