package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/storymill/storymill-render/internal/jobs"
	"github.com/storymill/storymill-render/internal/scene"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var (
		title  string
		output string
		keep   bool
	)

	cmd := &cobra.Command{
		Use:   "render <scenes.json|->",
		Short: "Render one job and print its artifact contract",
		Long: `Render reads either a job object ({"title", "output", "scenes"}) or a bare
array of scenes, runs it to completion and prints the artifact contract as JSON.
With --keep a finished video is copied into the permanent store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			req, err := readRequest(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if title != "" {
				req.Title = title
			}
			if output != "" {
				req.Output = output
			}

			a, err := newApp(cfg, ctx.logger())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.jobs.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			if keep {
				if err := a.jobs.Keep(cmd.Context(), res.ArtifactID, a.resolver.LegacyPath(res.ArtifactID)); err != nil {
					return err
				}
				res.Temporary = false
			}

			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Override the job title")
	cmd.Flags().StringVar(&output, "output", "", "Output strategy: auto, video or package")
	cmd.Flags().BoolVar(&keep, "keep", false, "Copy the finished video into the permanent store")
	return cmd
}

func readRequest(path string, stdin io.Reader) (jobs.Request, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return jobs.Request{}, fmt.Errorf("read scenes: %w", err)
	}
	return parseRequest(data)
}

func parseRequest(data []byte) (jobs.Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return jobs.Request{}, fmt.Errorf("parse scenes: empty input")
	}

	var req jobs.Request
	if trimmed[0] == '[' {
		var scenes []scene.Descriptor
		if err := json.Unmarshal(trimmed, &scenes); err != nil {
			return jobs.Request{}, fmt.Errorf("parse scenes: %w", err)
		}
		req.Scenes = scenes
		return req, nil
	}

	if err := json.Unmarshal(trimmed, &req); err != nil {
		return jobs.Request{}, fmt.Errorf("parse scenes: %w", err)
	}
	req.Title = strings.TrimSpace(req.Title)
	return req, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
