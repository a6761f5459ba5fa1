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
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/speca-google/goes-agents-poc/internal/agent"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the agent a question, or start an interactive chat",
	Example: `goes-agent ask "¿Cuál fue el monto devengado por el Ministerio de Salud en 2024?"
goes-agent ask --context glosario.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

var (
	agentLabel = color.New(color.FgCyan, color.Bold)
	errorLabel = color.New(color.FgRed, color.Bold)
	hintLabel  = color.New(color.Faint)
)

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := setupAgent(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sess := agent.NewStore(rt.newChat, 0).Get("")
	out := cmd.OutOrStdout()
	raw, _ := cmd.Flags().GetBool("raw")
	render := markdownRenderer(raw)

	if len(args) == 1 {
		answer, err := rt.agent.Ask(ctx, sess, args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(out, render(answer))
		return nil
	}

	hintLabel.Fprintln(out, "Escriba su pregunta. 'salir' para terminar.")
	for {
		var question string
		err := survey.AskOne(&survey.Input{Message: "Pregunta:"}, &question)
		if errors.Is(err, terminal.InterruptErr) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		question = strings.TrimSpace(question)
		switch strings.ToLower(question) {
		case "":
			continue
		case "salir", "exit", "quit":
			return nil
		}

		answer, err := rt.agent.Ask(ctx, sess, question)
		if err != nil {
			errorLabel.Fprint(out, "Error: ")
			fmt.Fprintln(out, err)
			continue
		}
		agentLabel.Fprintln(out, "Agente:")
		fmt.Fprint(out, render(answer))
	}
}

// markdownRenderer renders answers for the terminal, falling back to plain text.
func markdownRenderer(raw bool) func(string) string {
	plain := func(s string) string { return s + "\n" }
	if raw {
		return plain
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return plain
	}
	return func(s string) string {
		rendered, err := r.Render(s)
		if err != nil {
			return plain(s)
		}
		return rendered
	}
}

func init() {
	askCmd.Flags().Bool("raw", false, "Print answers without markdown rendering")
}
