package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/rehearse/cli/render"
	"github.com/justapithecus/rehearse/types"
)

// QuestionsCommand returns the questions command.
func QuestionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "questions",
		Usage: "List interview questions of one difficulty",
		Flags: append(append(ReadOnlyFlags(), apiFlags()...),
			&cli.StringFlag{
				Name:    "difficulty",
				Aliases: []string{"d"},
				Usage:   "Question difficulty: easy, medium, hard",
				Value:   string(types.DifficultyEasy),
			},
		),
		Action: questionsAction,
	}
}

func questionsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for questions command", exitUsage)
	}

	difficulty, err := types.ParseDifficulty(c.String("difficulty"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	client, err := newAPIClient(c, cfg.API)
	if err != nil {
		return err
	}

	questions, err := client.Questions(c.Context, difficulty)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	return r.Render(questions)
}
