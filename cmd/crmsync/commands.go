package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/homemade/crmsync/sync"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch leads changed since the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		result, err := a.agent.FetchUpdatedLeads(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "accounts=%d users=%d failed=%d\n", result.Accounts, result.Users, result.Failed)
		return nil
	},
}

var messagesPath string

var sendCmd = &cobra.Command{
	Use:       "send accounts|users",
	Short:     "Send platform change messages read as JSON lines",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"accounts", "users"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = os.Stdin
		if messagesPath != "" && messagesPath != "-" {
			f, err := os.Open(messagesPath)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		messages, err := readMessages(in)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		var result sync.BatchResult
		switch args[0] {
		case "accounts":
			result = a.agent.SendAccountMessages(cmd.Context(), messages)
		case "users":
			result = a.agent.SendUserMessages(cmd.Context(), messages)
		default:
			return fmt.Errorf("unknown entity %q, expected accounts or users", args[0])
		}
		fmt.Fprintf(os.Stderr, "inserted=%d updated=%d skipped=%d failed=%d\n", result.Inserted, result.Updated, result.Skipped, result.Failed)
		return nil
	},
}

func readMessages(r io.Reader) ([]sync.Message, error) {
	var messages []sync.Message
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var msg sync.Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return nil, fmt.Errorf("invalid message on line %d: %w", line, err)
		}
		messages = append(messages, msg)
	}
	return messages, scanner.Err()
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Bulk import leads through a full export",
}

var exportTriggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Start a full lead export",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.agent.TriggerLeadsExport(cmd.Context())
	},
}

var exportHandleCmd = &cobra.Command{
	Use:   "handle",
	Short: "Import the pending export into S3",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		jobs, err := a.agent.HandleLeadsExport(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		for _, job := range jobs {
			if err := enc.Encode(job); err != nil {
				return err
			}
		}
		fmt.Fprintf(os.Stderr, "next run in %s\n", a.agent.ExportPollInterval(cmd.Context()))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the connector configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		status := a.agent.StatusCheck(cmd.Context())
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			return err
		}
		if status.Status == sync.StatusError {
			return fmt.Errorf("connector status is %s", status.Status)
		}
		return nil
	},
}

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Print the field mapping as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		var customFields []sync.CustomField
		if a.agent.Client().HasValidAPIKey() {
			if customFields, err = a.agent.Client().LeadCustomFields(cmd.Context()); err != nil {
				return err
			}
		}
		doc := sync.GenerateFieldDocumentation(a.agent.Settings(), connector, customFields)
		out, err := doc.FormatCSV()
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, out)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVarP(&messagesPath, "file", "f", "-", "file of JSON line messages, - for stdin")
	exportCmd.AddCommand(exportTriggerCmd, exportHandleCmd)
}
