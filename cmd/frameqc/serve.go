// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noga-astro/frameqc/internal/api"
	"github.com/noga-astro/frameqc/internal/grading"
	"github.com/noga-astro/frameqc/internal/imaging"
	"github.com/noga-astro/frameqc/internal/pipeline"
	"github.com/noga-astro/frameqc/internal/store"
)

var (
	serveAddr string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for frame processing and grading",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "0.0.0.0", "Bind address")
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Bind port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	backend := imaging.Select(logger)
	s := &api.Server{
		Store:       store.NewMemoryStore(),
		Backend:     backend,
		PipelineCfg: pipeline.DefaultConfig(),
		GradingCfg:  grading.DefaultConfig(),
		Logger:      logger,
	}
	r := api.NewRouter(s)
	addr := fmt.Sprintf("%s:%d", serveAddr, servePort)
	logger.Info("listening", "addr", addr)
	return r.Run(addr)
}
