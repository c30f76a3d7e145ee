package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/imagechoom/imagechoom/pkg/workflows"
)

// Config carries the per-run parameters the runner needs.
type Config struct {
	ServiceURL      string
	Timeout         time.Duration
	CancelOnTimeout bool
	ArtifactsDir    string
	Output          io.Writer
}

// Runner executes one normalized script against an image backend.
type Runner interface {
	Run(ctx context.Context, script string) error
}

var ErrNoToolCall = errors.New("script contains no toolcall line")

// A1111Runner drives the Automatic1111 txt2img HTTP API. It executes the
// single toolcall line of a normalized script and writes each returned image
// into the artifacts directory.
type A1111Runner struct {
	config Config
	client *http.Client
}

func NewA1111Runner(config Config) Runner {
	return &A1111Runner{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	SamplerName    string  `json:"sampler_name"`
	Seed           int64   `json:"seed"`
	BatchSize      int     `json:"batch_size"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

func (r *A1111Runner) Run(ctx context.Context, script string) error {
	call, err := findToolCall(script)
	if err != nil {
		return err
	}

	request := requestFromArgs(call)

	fmt.Fprintf(r.config.Output, "Submitting txt2img: %dx%d steps=%d n=%d sampler=%s\n",
		request.Width, request.Height, request.Steps, request.BatchSize, request.SamplerName)

	response, err := r.submit(ctx, request)
	if err != nil {
		if r.config.CancelOnTimeout && isTimeout(err) {
			r.interrupt(ctx)
		}

		return fmt.Errorf("txt2img request failed: %w", err)
	}

	if len(response.Images) == 0 {
		fmt.Fprintln(r.config.Output, "Backend returned no images")

		return nil
	}

	for i, encoded := range response.Images {
		name := fmt.Sprintf("%03d.png", i)

		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("decoding image %d: %w", i, err)
		}

		path := filepath.Join(r.config.ArtifactsDir, name)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return fmt.Errorf("writing image %d: %w", i, err)
		}

		fmt.Fprintf(r.config.Output, "Saved %s (%d bytes)\n", name, len(data))
	}

	return nil
}

func (r *A1111Runner) submit(ctx context.Context, request txt2imgRequest) (*txt2imgResponse, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	url := strings.TrimRight(r.config.ServiceURL, "/") + "/sdapi/v1/txt2img"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decoding txt2img response: %w", err)
	}

	return &response, nil
}

// interrupt asks the backend to abandon the in-flight generation. Best effort.
func (r *A1111Runner) interrupt(ctx context.Context) {
	url := strings.TrimRight(r.config.ServiceURL, "/") + "/sdapi/v1/interrupt"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return
	}

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		fmt.Fprintf(r.config.Output, "Interrupt request failed: %v\n", err)

		return
	}

	resp.Body.Close()
	fmt.Fprintln(r.config.Output, "Sent interrupt after timeout")
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

// findToolCall returns the parsed arguments of the first toolcall line.
// Comment and blank lines are skipped.
func findToolCall(script string) (map[string]string, error) {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, workflows.ToolCallPrefix) {
			return parseToolCallArgs(line), nil
		}
	}

	return nil, ErrNoToolCall
}

// parseToolCallArgs splits a toolcall line into key=value pairs. Values are
// either double-quoted strings with backslash escapes or bare tokens.
func parseToolCallArgs(line string) map[string]string {
	args := make(map[string]string)
	rest := strings.TrimSpace(strings.TrimPrefix(line, workflows.ToolCallPrefix))

	for rest != "" {
		rest = strings.TrimLeft(rest, " \t")

		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			break
		}

		key := rest[:eq]
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			value, rest = readQuoted(rest)
		} else {
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				end = len(rest)
			}

			value = rest[:end]
			rest = rest[end:]
		}

		args[key] = value
	}

	return args
}

func readQuoted(s string) (string, string) {
	var out strings.Builder

	escaped := false
	for i := 1; i < len(s); i++ {
		c := s[i]

		switch {
		case escaped:
			out.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			return out.String(), s[i+1:]
		default:
			out.WriteByte(c)
		}
	}

	// Unterminated quote; take everything.
	return out.String(), ""
}

func requestFromArgs(args map[string]string) txt2imgRequest {
	return txt2imgRequest{
		Prompt:         args["prompt"],
		NegativePrompt: args["negative"],
		Width:          intArg(args, "width", workflows.DefaultWidth),
		Height:         intArg(args, "height", workflows.DefaultHeight),
		Steps:          intArg(args, "steps", workflows.DefaultSteps),
		CFGScale:       floatArg(args, "cfg", workflows.DefaultCFGScale),
		SamplerName:    stringArg(args, "sampler", workflows.DefaultSampler),
		Seed:           int64Arg(args, "seed", workflows.DefaultSeed),
		BatchSize:      intArg(args, "n", workflows.DefaultBatchSize),
	}
}

func stringArg(args map[string]string, key, fallback string) string {
	if v, ok := args[key]; ok && v != "" {
		return v
	}

	return fallback
}

func intArg(args map[string]string, key string, fallback int) int {
	if v, ok := args[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}

	return fallback
}

func int64Arg(args map[string]string, key string, fallback int64) int64 {
	if v, ok := args[key]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}

	return fallback
}

func floatArg(args map[string]string, key string, fallback float64) float64 {
	if v, ok := args[key]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}

	return fallback
}
