package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	alloyerr "github.com/alloysearch/alloy/internal/errors"
	"github.com/alloysearch/alloy/internal/output"
	"github.com/alloysearch/alloy/internal/retrieval"
)

// addOptions holds CLI flags for add.
type addOptions struct {
	file   string
	source string
}

// jsonlDocument is one line of a JSONL ingest file.
type jsonlDocument struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func newAddCmd() *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add [text]...",
		Short: "Add documents to both indexes",
		Long: `Add documents to the vector and keyword indexes.

Documents can be given as arguments (one document per argument) or read from
a JSONL file where each line is {"content": "...", "metadata": {...}}.

Examples:
  alloy add "Apple stock rose 5% after earnings"
  alloy add --file documents.jsonl
  alloy add --file notes.jsonl --source quarterly-notes`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "JSONL file to ingest")
	cmd.Flags().StringVar(&opts.source, "source", "", "Source label stored in each chunk's metadata")

	return cmd
}

func runAdd(cmd *cobra.Command, args []string, opts addOptions) error {
	out := output.New(cmd.OutOrStdout())

	chunks, err := collectChunks(args, opts)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("nothing to add: pass document text or --file")
	}

	e, err := openEngine(projectDir)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.retriever.AddDocuments(cmd.Context(), chunks); err != nil {
		return err
	}
	if err := e.saveVector(); err != nil {
		return alloyerr.Wrap(alloyerr.ErrCodeStoreFailed,
			fmt.Errorf("persist vector index: %w", err))
	}

	out.Successf("added %d document(s)", len(chunks))
	if !e.cfg.InMemory() {
		out.Dim("index data: " + e.cfg.Paths.DataDir)
	} else {
		out.Warning("no data_dir configured: documents were indexed in memory only")
	}
	return nil
}

// collectChunks builds document chunks from CLI arguments and the optional
// JSONL file.
func collectChunks(args []string, opts addOptions) ([]retrieval.DocumentChunk, error) {
	var chunks []retrieval.DocumentChunk

	for _, text := range args {
		if strings.TrimSpace(text) == "" {
			continue
		}
		chunks = append(chunks, retrieval.DocumentChunk{
			Content:  text,
			Metadata: baseMetadata(opts.source),
		})
	}

	if opts.file != "" {
		fileChunks, err := readJSONL(opts.file, opts.source)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, fileChunks...)
	}

	return chunks, nil
}

// readJSONL parses one document per non-empty line.
func readJSONL(path, source string) ([]retrieval.DocumentChunk, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ingest file: %w", err)
	}
	defer file.Close()

	var chunks []retrieval.DocumentChunk
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var doc jsonlDocument
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			return nil, fmt.Errorf("%s:%d: invalid JSON: %w", path, lineNo, err)
		}
		if strings.TrimSpace(doc.Content) == "" {
			return nil, alloyerr.ValidationError(
				fmt.Sprintf("%s:%d: missing content field", path, lineNo), nil)
		}

		metadata := baseMetadata(source)
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		chunks = append(chunks, retrieval.DocumentChunk{
			Content:  doc.Content,
			Metadata: metadata,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ingest file: %w", err)
	}

	return chunks, nil
}

func baseMetadata(source string) map[string]string {
	metadata := map[string]string{}
	if source != "" {
		metadata["source"] = source
	}
	return metadata
}
