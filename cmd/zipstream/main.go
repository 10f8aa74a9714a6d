package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/nguyengg/zipstream/internal/cmd/read"
	"github.com/nguyengg/zipstream/internal/cmd/write"
)

var opts struct {
	Profile string        `long:"profile" description:"override AWS_PROFILE if given"`
	Read    read.Command  `command:"read" description:"list, and optionally extract, the entries of a ZIP archive"`
	Write   write.Command `command:"write" description:"write local files and directories into a ZIP archive"`
}

func main() {
	p := flags.NewParser(&opts, flags.Default)
	p.CommandHandler = func(command flags.Commander, args []string) error {
		if opts.Profile != "" {
			if err := os.Setenv("AWS_PROFILE", opts.Profile); err != nil {
				return fmt.Errorf("set AWS_PROFILE error: %w", err)
			}
		}

		return command.Execute(args)
	}

	_, err := p.Parse()
	exit(err)
}
