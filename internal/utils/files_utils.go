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
package utils

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/afero"
)

// ReadSQLStatementsFromFile splits a file into statements separated by ";\n".
func ReadSQLStatementsFromFile(fs afero.Fs, filePath string) ([]string, error) {
	content, err := afero.ReadFile(fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	sqlStatements := strings.Split(string(content), ";\n")
	var trimmedStatements []string
	for _, stmt := range sqlStatements {
		trimmedStmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
		if trimmedStmt != "" {
			trimmedStatements = append(trimmedStatements, trimmedStmt)
		}
	}
	return trimmedStatements, nil
}

// ReadContextFiles reads the content of the specified context files and combines them into a single string.
func ReadContextFiles(fs afero.Fs, paths []string) (string, error) {
	var combinedContext strings.Builder
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		content, err := afero.ReadFile(fs, path)
		if err != nil {
			return "", fmt.Errorf("failed to read context file '%s': %w", path, err)
		}
		combinedContext.WriteString("\n-- Context from file: " + path + " --\n")
		combinedContext.Write(content)
	}
	return combinedContext.String(), nil
}

// WriteOutputFile writes content to path, creating or truncating it.
func WriteOutputFile(fs afero.Fs, path, content string) error {
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write output file '%s': %w", path, err)
	}
	return nil
}

func GetDefaultOutputFilePath(datasetID, commandName string) string {
	switch commandName {
	case "schema":
		return fmt.Sprintf("%s_schema.sql", datasetID)
	default:
		return fmt.Sprintf("%s_%s.txt", datasetID, commandName)
	}
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ConfirmAction asks the user to confirm an action on the terminal.
func ConfirmAction(actionDescription string) bool {
	confirmed := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("%s. Continue?", actionDescription),
		Default: false,
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false
	}
	return confirmed
}
