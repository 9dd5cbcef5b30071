package cli

import (
	"github.com/urfave/cli/v2"
)

var (
	streamIDFlag = &cli.Int64Flag{
		Name:     "stream-id",
		Usage:    "ID of the stream",
		Required: true,
	}
	executionIDFlag = &cli.Int64Flag{
		Name:     "execution-id",
		Usage:    "ID of the stream execution",
		Required: true,
	}
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum number of items to return",
		Value: 50,
	}
	offsetFlag = &cli.IntFlag{
		Name:  "offset",
		Usage: "Number of items to skip",
	}
)

func (a *App) streamCommand() *cli.Command {
	return &cli.Command{
		Name:  "stream",
		Usage: "Work with Domo streams and their executions",
		Subcommands: []*cli.Command{
			a.uploadCommand(),
			{
				Name:   "commit",
				Usage:  "Commit a stream execution",
				Flags:  []cli.Flag{streamIDFlag, executionIDFlag},
				Action: a.commitAction,
			},
			{
				Name:   "abort",
				Usage:  "Abort a stream execution",
				Flags:  []cli.Flag{streamIDFlag, executionIDFlag},
				Action: a.abortAction,
			},
			{
				Name:   "info",
				Usage:  "Show a stream",
				Flags:  []cli.Flag{streamIDFlag},
				Action: a.infoAction,
			},
			{
				Name:   "list",
				Usage:  "List streams",
				Flags:  []cli.Flag{limitFlag, offsetFlag},
				Action: a.listAction,
			},
			{
				Name:   "executions",
				Usage:  "List the executions of a stream",
				Flags:  []cli.Flag{streamIDFlag, limitFlag, offsetFlag},
				Action: a.executionsAction,
			},
			{
				Name:   "execution",
				Usage:  "Show a stream execution",
				Flags:  []cli.Flag{streamIDFlag, executionIDFlag},
				Action: a.executionAction,
			},
		},
	}
}

func (a *App) commitAction(c *cli.Context) error {
	s, err := a.newSession(c)
	if err != nil {
		return err
	}

	execution, err := s.api.CommitExecution(c.Context, c.Int64(streamIDFlag.Name), c.Int64(executionIDFlag.Name))
	if err != nil {
		return err
	}
	a.logger.Donef("Execution %d committed", execution.ID)
	return printJSON(c, execution)
}

func (a *App) abortAction(c *cli.Context) error {
	s, err := a.newSession(c)
	if err != nil {
		return err
	}

	execution, err := s.api.AbortExecution(c.Context, c.Int64(streamIDFlag.Name), c.Int64(executionIDFlag.Name))
	if err != nil {
		return err
	}
	a.logger.Donef("Execution %d aborted", execution.ID)
	return printJSON(c, execution)
}

func (a *App) infoAction(c *cli.Context) error {
	s, err := a.newSession(c)
	if err != nil {
		return err
	}

	stream, err := s.api.GetStream(c.Context, c.Int64(streamIDFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(c, stream)
}

func (a *App) listAction(c *cli.Context) error {
	s, err := a.newSession(c)
	if err != nil {
		return err
	}

	list, err := s.api.ListStreams(c.Context, c.Int(limitFlag.Name), c.Int(offsetFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(c, list)
}

func (a *App) executionsAction(c *cli.Context) error {
	s, err := a.newSession(c)
	if err != nil {
		return err
	}

	list, err := s.api.ListExecutions(c.Context, c.Int64(streamIDFlag.Name), c.Int(limitFlag.Name), c.Int(offsetFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(c, list)
}

func (a *App) executionAction(c *cli.Context) error {
	s, err := a.newSession(c)
	if err != nil {
		return err
	}

	execution, err := s.api.GetExecution(c.Context, c.Int64(streamIDFlag.Name), c.Int64(executionIDFlag.Name))
	if err != nil {
		return err
	}
	return printJSON(c, execution)
}
