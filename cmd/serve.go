/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/speca-google/goes-agents-poc/internal/agent"
	"github.com/speca-google/goes-agents-poc/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the agent over HTTP",
	Example: `goes-agent serve --addr :8080`,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setupAgent(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessions := agent.NewStore(rt.newChat, cfg.Server.SessionIdle)
	srv := server.New(rt.agent, sessions, rt.toolset, logger)
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (defaults to :8080)")
	serveCmd.Flags().Duration("session-idle", 0, "Drop chat sessions idle for longer than this (defaults to 30m)")
	_ = v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("server.session_idle", serveCmd.Flags().Lookup("session-idle"))
}
