package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/rehearse/cli/render"
	"github.com/justapithecus/rehearse/device"
)

// DevicesCommand returns the devices command.
func DevicesCommand() *cli.Command {
	return &cli.Command{
		Name:  "devices",
		Usage: "List cameras and microphones found on this host",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "root",
				Usage: "Device directory to scan",
				Value: device.DefaultRoot,
			},
		),
		Action: devicesAction,
	}
}

func devicesAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for devices command", exitUsage)
	}

	infos, err := device.List(c.String("root"))
	if err != nil {
		return err
	}
	if infos == nil {
		infos = []device.Info{}
	}
	return r.Render(infos)
}
