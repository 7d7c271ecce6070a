package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/guildmod/warden/trivia"

	cli "github.com/urfave/cli/v2"
)

var triviaCmd = &cli.Command{
	Name:  "trivia",
	Usage: "trivia question bank tools",
	Subcommands: []*cli.Command{
		&cli.Command{
			Name:      "lint",
			Usage:     "list incomplete questions in a YAML or JSON question file",
			ArgsUsage: "<file>",
			Action:    runTriviaLint,
		},
	},
}

func runTriviaLint(cctx *cli.Context) error {
	if cctx.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one question file argument")
	}
	bank := trivia.NewBank()
	if err := bank.LoadFile(cctx.Args().First()); err != nil {
		return err
	}
	issues := bank.Lint()
	printLintIssues(cctx.App.Writer, bank.NumQuestions(), issues)
	if len(issues) > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func printLintIssues(w io.Writer, total int, issues []trivia.LintIssue) {
	for _, issue := range issues {
		fmt.Fprintf(w, "%s\t%s\tmissing: %s\n", issue.ID, issue.Bucket, strings.Join(issue.Missing, ", "))
	}
	fmt.Fprintf(w, "%d questions, %d incomplete\n", total, len(issues))
}
