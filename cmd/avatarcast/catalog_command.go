package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"avatarcast/internal/api"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	var refresh bool
	var lang string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:       "catalog [avatar|voice]",
		Short:     "List selectable avatars or voices",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"avatar", "voice"},
		RunE: func(cmd *cobra.Command, args []string) error {
			category := "avatar"
			if len(args) == 1 {
				category = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(args[0])), "s")
			}
			return ctx.withBackend(cmd.Context(), func(b backend) error {
				snap, err := b.Catalog(cmd.Context(), category, refresh, lang)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, snap)
				}
				renderCatalog(cmd, snap)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Refetch from the provider before listing")
	cmd.Flags().StringVarP(&lang, "language", "l", "", "Only list voices in this language (code or name)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func renderCatalog(cmd *cobra.Command, snap api.CatalogResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	if snap.Degraded {
		message := "provider unreachable; showing built-in defaults"
		if snap.Error != "" {
			message += " (" + snap.Error + ")"
		}
		fmt.Fprintln(out, renderStatusLine("Catalog", statusWarn, message, colorize))
	}

	rows := make([][]string, 0, len(snap.Assets))
	for _, asset := range snap.Assets {
		rows = append(rows, []string{asset.ID, asset.DisplayName, formatAttributes(asset.Attributes)})
	}
	fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Attributes"}, rows, nil, 0, 0, 60))
	fmt.Fprintf(out, "%d %ss (%s, fetched %s)\n", len(snap.Assets), snap.Category, snap.Source, snap.FetchedAt)
}

func formatAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if attrs[key] == "" {
			continue
		}
		parts = append(parts, key+"="+attrs[key])
	}
	return strings.Join(parts, " ")
}
