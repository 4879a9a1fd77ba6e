package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func runModels(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	ctx := cmd.Context()

	_, backend := newPersistence(logger)
	reg, err := newRegistry(ctx, backend, logger)
	if err != nil {
		return err
	}

	probe, _ := cmd.Flags().GetBool("probe")
	if probe {
		selected, err := reg.Selected(ctx)
		if err != nil {
			return err
		}
		if selected == nil {
			return fmt.Errorf("no model selected")
		}
		dispatcher, err := newDispatcher(ctx, logger)
		if err != nil {
			return err
		}
		models, err := dispatcher.ListModels(ctx, *selected)
		if err != nil {
			return fmt.Errorf("failed to probe %s: %w", selected.BaseURL, err)
		}
		for _, m := range models {
			fmt.Println(m.ID)
		}
		return nil
	}

	models, err := reg.List(ctx)
	if err != nil {
		return err
	}
	selected, err := reg.Selected(ctx)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Println("No models configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tNAME\tMODEL\tBASE URL\tMAX TOKENS\tSOURCE")
	for _, m := range models {
		marker := ""
		if selected != nil && selected.ID == m.ID && selected.Name == m.Name {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", marker, m.Name, m.RequestModel(), m.BaseURL, m.EffectiveMaxTokens(), m.Source)
	}
	return w.Flush()
}
