package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/refhook/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdProcess() *cli.Command {
	var (
		glRepository string
		glID         string
		pushOptions  []string
		runtimeCfg   runtimeConfig
	)

	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:        "gl-repository",
			Usage:       "Pushed repository, e.g. project-42 or wiki-42",
			Required:    true,
			Destination: &glRepository,
			Sources:     cli.EnvVars("GL_REPOSITORY"),
		},
		&cli.StringFlag{
			Name:        "gl-id",
			Usage:       "Pushing user, e.g. user-10",
			Required:    true,
			Destination: &glID,
			Sources:     cli.EnvVars("GL_ID"),
		},
		&cli.StringSliceFlag{
			Name:        "push-option",
			Aliases:     []string{"o"},
			Usage:       "Push option (key or key=value). Defaults to GIT_PUSH_OPTION_* variables.",
			Destination: &pushOptions,
		},
	}, runtimeCfg.Flags()...)

	return &cli.Command{
		Name:      "process",
		Aliases:   []string{"p"},
		Usage:     "Process post-receive lines read from stdin synchronously",
		ArgsUsage: "< <oldrev> <newrev> <ref> lines",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			userID, err := parseGLID(glID)
			if err != nil {
				return err
			}
			changes, err := readChanges(os.Stdin)
			if err != nil {
				return err
			}
			if len(pushOptions) == 0 {
				pushOptions = envPushOptions(os.Getenv)
			}

			rt, err := runtimeCfg.build(ctx, c)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.uc.PostReceive(ctx, &model.PostReceiveRequest{
				GLRepository: glRepository,
				UserID:       userID,
				Changes:      changes,
				PushOptions:  pushOptions,
				ReceivedAt:   time.Now(),
			})
			if err != nil {
				return err
			}

			printSummary(os.Stdout, result)
			return nil
		},
	}
}

// parseGLID accepts "user-<id>" or a bare numeric id
func parseGLID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "user-"), 10, 64)
	if err != nil || id <= 0 {
		return 0, goerr.New("invalid GL_ID", goerr.V("gl_id", s))
	}
	return id, nil
}

func readChanges(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read ref changes")
	}
	return lines, nil
}

// envPushOptions reads the options git exports to receive hooks
func envPushOptions(getenv func(string) string) []string {
	count, err := strconv.Atoi(getenv("GIT_PUSH_OPTION_COUNT"))
	if err != nil {
		return nil
	}
	var opts []string
	for i := range count {
		if opt := getenv("GIT_PUSH_OPTION_" + strconv.Itoa(i)); opt != "" {
			opts = append(opts, opt)
		}
	}
	return opts
}

func printSummary(w io.Writer, result *model.PushResult) {
	var (
		header  = color.New(color.Bold)
		ok      = color.New(color.FgGreen)
		failed  = color.New(color.FgRed)
		skipped = color.New(color.FgHiBlack)
	)

	for _, change := range result.Changes {
		header.Fprintf(w, "%s %s\n", change.Change.Action(), change.Change.Ref)
		for _, step := range change.Steps {
			switch {
			case step.Error != nil:
				failed.Fprintf(w, "  ✗ %s: %v\n", step.Name, step.Error)
			case step.Skipped:
				skipped.Fprintf(w, "  - %s\n", step.Name)
			default:
				ok.Fprintf(w, "  ✓ %s\n", step.Name)
			}
		}
	}
	if result.WikiEvents > 0 {
		fmt.Fprintf(w, "wiki events: %d\n", result.WikiEvents)
	}

	summary := fmt.Sprintf("hooks executed: %d, pipelines requested: %d", result.HooksExecuted, result.PipelinesQueued)
	if errs := result.Errors(); len(errs) > 0 {
		failed.Fprintf(w, "%s, errors: %d\n", summary, len(errs))
		return
	}
	ok.Fprintln(w, summary)
}
