package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rzbill/coedit/internal/ot"
)

// document mirrors the HTTP document response.
type document struct {
	Str          string                     `json:"str"`
	Revision     int                        `json:"revision"`
	BaseRevision int                        `json:"base_revision"`
	Clients      map[string]json.RawMessage `json:"clients"`
}

type submitRequest struct {
	ClientID  string          `json:"client_id,omitempty"`
	Revision  int             `json:"revision"`
	Operation json.RawMessage `json:"operation"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

type submitResponse struct {
	ID    string `json:"id"`
	Shard int    `json:"shard"`
}

// NewDocCommand constructs the `doc` command group and subcommands.
func NewDocCommand(baseURL BaseURLFunc) *cobra.Command {
	docCmd := &cobra.Command{Use: "doc", Short: "Document operations"}
	docCmd.AddCommand(
		newDocShowCommand(baseURL),
		newDocSubmitCommand(baseURL),
		newDocInsertCommand(baseURL),
		newDocFilesCommand(baseURL),
	)
	return docCmd
}

func addDocFlags(cmd *cobra.Command) {
	cmd.Flags().Int("room", 0, "Room id")
	cmd.Flags().String("path", "", "File path inside the room (empty = global document)")
}

func docFlags(cmd *cobra.Command) (int, string) {
	room, _ := cmd.Flags().GetInt("room")
	path, _ := cmd.Flags().GetString("path")
	return room, path
}

func newDocShowCommand(baseURL BaseURLFunc) *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current text and revision of a document",
		RunE: func(cmd *cobra.Command, _ []string) error {
			room, path := docFlags(cmd)
			raw, _ := cmd.Flags().GetBool("raw")
			var doc document
			if err := getJSON(cmd.Context(), docURL(baseURL(), room, path), &doc); err != nil {
				return err
			}
			if raw {
				_, err := fmt.Fprint(cmd.OutOrStdout(), doc.Str)
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	addDocFlags(showCmd)
	showCmd.Flags().Bool("raw", false, "Print only the document text")
	return showCmd
}

// newDocSubmitCommand constructs `doc submit`, which sends an operation in
// its JSON wire form, e.g. --op '[3,"abc",-2]'.
func newDocSubmitCommand(baseURL BaseURLFunc) *cobra.Command {
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an operation against a revision",
		RunE: func(cmd *cobra.Command, _ []string) error {
			room, path := docFlags(cmd)
			rev, _ := cmd.Flags().GetInt("revision")
			opStr, _ := cmd.Flags().GetString("op")
			selStr, _ := cmd.Flags().GetString("selection")
			clientID, _ := cmd.Flags().GetString("client-id")
			if opStr == "" {
				return errors.New("--op is required")
			}
			if _, err := ot.ParseOperation([]byte(opStr)); err != nil {
				return fmt.Errorf("invalid --op: %w", err)
			}
			if _, err := ot.ParseSelection([]byte(selStr)); err != nil {
				return fmt.Errorf("invalid --selection: %w", err)
			}
			req := submitRequest{ClientID: clientID, Revision: rev, Operation: json.RawMessage(opStr)}
			if selStr != "" {
				req.Selection = json.RawMessage(selStr)
			}
			return submit(cmd, baseURL, room, path, req)
		},
	}
	addDocFlags(submitCmd)
	submitCmd.Flags().Int("revision", 0, "Revision the operation was written against")
	submitCmd.Flags().String("op", "", "Operation as JSON")
	submitCmd.Flags().String("selection", "", "Selection as JSON (optional)")
	submitCmd.Flags().String("client-id", "", "Client id to submit as (default: generated)")
	return submitCmd
}

// newDocInsertCommand constructs `doc insert`, which reads the current
// document and inserts text at a character offset.
func newDocInsertCommand(baseURL BaseURLFunc) *cobra.Command {
	insertCmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert text at an offset of the current revision",
		RunE: func(cmd *cobra.Command, _ []string) error {
			room, path := docFlags(cmd)
			text, _ := cmd.Flags().GetString("text")
			at, _ := cmd.Flags().GetInt("at")
			clientID, _ := cmd.Flags().GetString("client-id")
			if text == "" {
				return errors.New("--text is required")
			}
			var doc document
			if err := getJSON(cmd.Context(), docURL(baseURL(), room, path), &doc); err != nil {
				return err
			}
			n := utf8.RuneCountInString(doc.Str)
			if at < 0 {
				at = n
			}
			if at > n {
				return fmt.Errorf("--at %d is past the end of the document (%d)", at, n)
			}
			op := ot.New().Retain(at).Insert(text).Retain(n - at)
			if err := op.Err(); err != nil {
				return err
			}
			opJSON, err := json.Marshal(op)
			if err != nil {
				return err
			}
			selJSON, err := json.Marshal(ot.Cursor(at + utf8.RuneCountInString(text)))
			if err != nil {
				return err
			}
			return submit(cmd, baseURL, room, path, submitRequest{
				ClientID:  clientID,
				Revision:  doc.Revision,
				Operation: opJSON,
				Selection: selJSON,
			})
		},
	}
	addDocFlags(insertCmd)
	insertCmd.Flags().String("text", "", "Text to insert")
	insertCmd.Flags().Int("at", -1, "Character offset (default: end of document)")
	insertCmd.Flags().String("client-id", "", "Client id to submit as (default: generated)")
	return insertCmd
}

func submit(cmd *cobra.Command, baseURL BaseURLFunc, room int, path string, req submitRequest) error {
	if req.ClientID == "" {
		req.ClientID = "cli-" + uuid.NewString()
	}
	var resp submitResponse
	if err := postJSON(cmd.Context(), docURL(baseURL(), room, path), req, &resp); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "queued id=%s shard=%d\n", resp.ID, resp.Shard)
	return err
}

func newDocFilesCommand(baseURL BaseURLFunc) *cobra.Command {
	filesCmd := &cobra.Command{
		Use:   "files",
		Short: "List the files stored for a room",
		RunE: func(cmd *cobra.Command, _ []string) error {
			room, _ := cmd.Flags().GetInt("room")
			var out struct {
				Files []json.RawMessage `json:"files"`
			}
			u := fmt.Sprintf("%s/v1/rooms/%d/files", baseURL(), room)
			if err := getJSON(cmd.Context(), u, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	filesCmd.Flags().Int("room", 0, "Room id")
	return filesCmd
}
