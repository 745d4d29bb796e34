package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"yashubustudio/orgtrends/internal/api"
	"yashubustudio/orgtrends/internal/app"
)

func newServeCommand(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := c.settings
			if cmd.Flags().Changed("addr") {
				s.Server.Addr = addr
			}

			var opts []app.Option
			reg := prometheus.NewRegistry()
			if s.Server.Metrics {
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
				opts = append(opts, app.WithRegistry(reg))
			}

			ctx := cmd.Context()
			a, err := app.New(ctx, s, c.logger, opts...)
			if err != nil {
				return err
			}
			defer a.Close()

			routerOpts := api.Options{
				Version:    version,
				Backend:    a.Classifier.ID(),
				Source:     a.SourceName,
				MaxRecords: s.Server.MaxRecords,
				Logger:     c.logger,
			}
			if a.Metrics != nil {
				routerOpts.Metrics = a.Metrics.Handler()
			}
			return api.Serve(ctx, s.Server.Addr, api.NewRouter(a, routerOpts), c.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from settings, :8080)")
	return cmd
}
