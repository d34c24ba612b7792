package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/medcache/pkg/classifier"
	"github.com/pario-ai/medcache/pkg/models"
)

func newClassifyCmd() *cobra.Command {
	var (
		configPath string
		subject    string
		emr        bool
		notes      int
		opts       models.Options
	)

	cmd := &cobra.Command{
		Use:   "classify <query>",
		Short: "Show the category, TTL, tags and priority a query would get",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			q := models.Query{
				Text:      strings.Join(args, " "),
				SubjectID: subject,
				Options:   opts,
			}
			if emr {
				q.Context = &models.QueryContext{Type: models.ContextEMR}
			}
			for i := 0; i < notes; i++ {
				q.Notes = append(q.Notes, models.Note{ID: fmt.Sprintf("note-%d", i+1)})
			}

			c := classifier.New(cfg.ClassifierConfig())
			return writeClassification(cmd.OutOrStdout(), c, q)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&subject, "subject", "", "patient identifier")
	cmd.Flags().BoolVar(&emr, "emr", false, "scope the query to a medical record")
	cmd.Flags().IntVar(&notes, "notes", 0, "number of attached clinical notes")
	cmd.Flags().IntVar(&opts.MaxTokens, "max-tokens", 0, "max tokens option")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "provider option")
	cmd.Flags().StringVar(&opts.Language, "lang", "", "language option")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority option (high marks the query critical)")
	return cmd
}

func writeClassification(out io.Writer, c *classifier.Classifier, q models.Query) error {
	canonical := models.Canonical(q)
	md := c.GenerateMetadata(canonical, time.Now())
	ttl := c.ComputeTTL(canonical)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Category:\t%s\n", md.Category)
	if ttl > 0 {
		fmt.Fprintf(w, "TTL:\t%s\n", ttl)
	} else {
		fmt.Fprintf(w, "TTL:\t0 (not cached)\n")
	}
	fmt.Fprintf(w, "Priority:\t%d\n", md.Priority)
	fmt.Fprintf(w, "Tags:\t%s\n", strings.Join(md.Tags, ", "))
	fmt.Fprintf(w, "Key:\t%s\n", models.CacheKey(q))
	return w.Flush()
}
